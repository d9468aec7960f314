package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/reference"
)

type noteAPI struct {
	svc      note.Service
	refs     reference.Service
	validate *validator.Validate
}

func registerNoteAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	aiLimit echo.MiddlewareFunc,
	svc note.Service,
	refs reference.Service,
	validate *validator.Validate,
) {
	api := noteAPI{
		svc:      svc,
		refs:     refs,
		validate: validate,
	}

	ng := g.Group("/notes", authed...)
	ng.GET("", api.query)
	ng.POST("", api.create)
	ng.GET("/:id", api.retrieve)
	ng.PATCH("/:id", api.update)
	ng.DELETE("/:id", api.destroy)
	ng.POST("/:id/favorite", api.toggleFavorite)
	ng.GET("/:id/export", api.export)
	ng.GET("/:id/references", api.queryReferences)
	ng.POST("/:id/references", api.fetchReferences, aiLimit)

	g.GET("/search", api.search, authed...)
}

// Handlers

func (api *noteAPI) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(note.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []note.Note{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	notes, err := api.svc.QueryNotes(ctx.Request().Context(), usr.ID, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying notes")
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *noteAPI) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data note.NewNote
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNote")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.svc.CreateNote(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating note")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *noteAPI) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.GetNote(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting note")
	}
	return ctx.JSON(http.StatusOK, n)
}

// update applies a partial update; `?skip_embedding=true` is sent by autosaves.
func (api *noteAPI) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var patch note.NotePatch
	if err := ctx.Bind(&patch); err != nil {
		return errors.Wrap(err, "binding to NotePatch")
	}
	if err := patch.Validate(api.validate); err != nil {
		return err
	}
	skip, _ := strconv.ParseBool(ctx.QueryParam("skip_embedding"))

	n, err := api.svc.UpdateNote(ctx.Request().Context(), usr.ID, ctx.Param("id"), patch, skip)
	if err != nil {
		return errors.Wrap(err, "updating note")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *noteAPI) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteNote(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting note")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *noteAPI) toggleFavorite(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.ToggleFavorite(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling favorite")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *noteAPI) export(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	format := note.ExportFormat(ctx.QueryParam("format"))
	body, err := api.svc.Export(ctx.Request().Context(), usr.ID, ctx.Param("id"), format)
	if err != nil {
		return errors.Wrap(err, "exporting note")
	}

	contentType, ext := echo.MIMETextHTMLCharsetUTF8, "html"
	if format == note.FormatMarkdown {
		contentType, ext = "text/markdown; charset=UTF-8", "md"
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="note.%s"`, ext))
	return ctx.Blob(http.StatusOK, contentType, []byte(body))
}

func (api *noteAPI) search(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	results, err := api.svc.Search(ctx.Request().Context(), usr.ID, ctx.QueryParam("q"), limit)
	if err != nil {
		return errors.Wrap(err, "searching notes")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *noteAPI) queryReferences(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	refs, err := api.refs.Query(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying references")
	}
	return ctx.JSON(http.StatusOK, refs)
}

func (api *noteAPI) fetchReferences(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data reference.FetchRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FetchRequest")
	}

	refs, err := api.refs.Fetch(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "fetching references")
	}
	return ctx.JSON(http.StatusOK, refs)
}
