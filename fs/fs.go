// Package appfs embeds the assets shipped with the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql all:templates site common-passwords.txt
var FS embed.FS
