package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/note"
)

type folderAPI struct {
	svc      note.Service
	validate *validator.Validate
}

func registerFolderAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc note.Service, validate *validator.Validate) {
	api := folderAPI{svc: svc, validate: validate}

	fg := g.Group("/folders", authed...)
	fg.GET("", api.query)
	fg.POST("", api.create)
	fg.GET("/:id", api.retrieve)
	fg.PATCH("/:id", api.update)
	fg.DELETE("/:id", api.destroy)
}

func (api *folderAPI) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	folders, err := api.svc.QueryFolders(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying folders")
	}
	return ctx.JSON(http.StatusOK, folders)
}

func (api *folderAPI) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data note.NewFolder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFolder")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.CreateFolder(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating folder")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *folderAPI) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	f, err := api.svc.GetFolder(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting folder")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *folderAPI) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data note.UpdateFolder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFolder")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.UpdateFolder(ctx.Request().Context(), usr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating folder")
	}
	return ctx.JSON(http.StatusOK, f)
}

// destroy unassigns the folder's notes and deletes its flashcard sets.
func (api *folderAPI) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteFolder(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting folder")
	}
	return ctx.NoContent(http.StatusNoContent)
}
