package echoapi

import (
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"

	appfs "github.com/trezcool/kalamu/fs"
)

// registerSite serves the embedded marketing site at the root.
func registerSite(app *echo.Echo) {
	site, err := fs.Sub(appfs.FS, "site")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	files := echo.WrapHandler(http.FileServer(http.FS(site)))
	app.GET("/", files)
	app.GET("/style.css", files)
	app.GET("/healthz", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
}
