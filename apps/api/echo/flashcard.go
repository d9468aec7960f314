package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/flashcard"
)

type flashcardAPI struct {
	svc      flashcard.Service
	validate *validator.Validate
}

func registerFlashcardAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	aiLimit echo.MiddlewareFunc,
	svc flashcard.Service,
	validate *validator.Validate,
) {
	api := flashcardAPI{svc: svc, validate: validate}

	fg := g.Group("/flashcards", authed...)
	fg.GET("/sets", api.querySets)
	fg.GET("/sets/:id", api.retrieveSet)
	fg.DELETE("/sets/:id", api.destroySet)
	fg.GET("/stats", api.stats)
	fg.POST("/generate", api.generate, aiLimit)
	fg.POST("/cards/:id/review", api.review)
}

// querySets lists the sets without their cards; `?module_id=` narrows them to a folder.
func (api *flashcardAPI) querySets(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	sets, err := api.svc.QuerySets(ctx.Request().Context(), usr.ID, ctx.QueryParam("module_id"))
	if err != nil {
		return errors.Wrap(err, "querying flashcard sets")
	}
	return ctx.JSON(http.StatusOK, sets)
}

func (api *flashcardAPI) retrieveSet(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.GetSet(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting flashcard set")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *flashcardAPI) destroySet(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSet(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting flashcard set")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *flashcardAPI) stats(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), usr.ID, ctx.QueryParam("module_id"))
	if err != nil {
		return errors.Wrap(err, "computing flashcard stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *flashcardAPI) generate(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data flashcard.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Generate(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "generating flashcards")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *flashcardAPI) review(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data flashcard.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}

	card, err := api.svc.RecordReview(ctx.Request().Context(), usr.ID, ctx.Param("id"), data.Correct)
	if err != nil {
		return errors.Wrap(err, "recording review")
	}
	return ctx.JSON(http.StatusOK, card)
}
