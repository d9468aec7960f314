// Package sqlxrepos implements the domain repositories with sqlx; queries run on postgres and sqlite.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/kalamu/core"
)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRows maps sql.ErrNoRows to the domain's not found error.
func trapNoRows(err, notFound error) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return err
}

// in expands a `?` query holding IN placeholders, then rebinds it for exe's driver.
func in(exe core.DBExecutor, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return exe.Rebind(q), a, nil
}

func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		list = append(list, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(list) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(list, ", ")
}
