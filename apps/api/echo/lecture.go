package echoapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
)

const (
	formFile       = "file"
	formTitle      = "title"
	formFolderID   = "module_id"
	formProgressID = "progress_id"
	formDetail     = "detail_level"
	formModel      = "model"
)

type (
	lectureAPIDeps struct {
		svc       lecture.Service
		tracker   *progress.Tracker
		converter core.PDFConverter // optional
		quota     quota.Service
		logger    core.Logger
	}

	lectureAPI struct {
		lectureAPIDeps
	}

	UsageResponse struct {
		Plan  quota.Plan    `json:"plan"`
		Usage []quota.Usage `json:"usage"`
	}
)

func registerLectureAPI(g *echo.Group, authed []echo.MiddlewareFunc, aiLimit echo.MiddlewareFunc, deps lectureAPIDeps) {
	api := lectureAPI{deps}

	g.POST("/lectures", api.upload, append(authed, aiLimit)...)
	g.POST("/convert/pdf", api.convert, authed...)
	g.GET("/usage", api.usage, authed...)

	pg := g.Group("/progress")
	pg.POST("", api.createProgress, authed...)
	// the id is an unguessable capability; EventSource cannot send an Authorization header
	pg.GET("/stream", api.streamProgress)
}

// readUpload reads the uploaded file after checking its type and size.
func readUpload(ctx echo.Context) (*multipart.FileHeader, []byte, lecture.Kind, error) {
	fh, err := ctx.FormFile(formFile)
	if err != nil {
		return nil, nil, "", core.NewValidationError(err, core.FieldError{Field: formFile, Error: "this field is required"})
	}
	kind, err := lecture.ValidateUpload(fh.Filename, fh.Header.Get(echo.HeaderContentType), fh.Size)
	if err != nil {
		return nil, nil, "", core.NewValidationError(err, core.FieldError{Field: formFile, Error: err.Error()})
	}

	f, err := fh.Open()
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "opening upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, lecture.MaxUploadBytes+1))
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "reading upload")
	}
	if len(data) > lecture.MaxUploadBytes {
		return nil, nil, "", core.NewValidationError(lecture.ErrFileTooLarge,
			core.FieldError{Field: formFile, Error: lecture.ErrFileTooLarge.Error()})
	}
	return fh, data, kind, nil
}

// upload processes the lecture synchronously and returns the created note.
// Progress is published on the optional `progress_id` channel meanwhile.
func (api *lectureAPI) upload(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	fh, data, _, err := readUpload(ctx)
	if err != nil {
		return err
	}

	req := lecture.Request{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
		Title:       ctx.FormValue(formTitle),
		ProgressID:  ctx.FormValue(formProgressID),
		Detail:      lecture.Detail(ctx.FormValue(formDetail)),
		Model:       ctx.FormValue(formModel),
	}
	if folderID := core.CleanString(ctx.FormValue(formFolderID)); folderID != "" {
		req.FolderID = &folderID
	}
	if req.ProgressID != "" {
		if owner, ok := api.tracker.Owner(req.ProgressID); !ok || owner != usr.ID {
			req.ProgressID = "" // not theirs: process without publishing
		}
	}

	n, err := api.svc.Process(ctx.Request().Context(), usr, req)
	if err != nil {
		return errors.Wrap(err, "processing lecture")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *lectureAPI) convert(ctx echo.Context) error {
	if api.converter == nil {
		return &core.Unavailable{Feature: "PowerPoint conversion"}
	}
	fh, data, kind, err := readUpload(ctx)
	if err != nil {
		return err
	}
	if !kind.NeedsConversion() {
		return core.NewValidationError(lecture.ErrUnsupportedType,
			core.FieldError{Field: formFile, Error: "only PowerPoint files (.pptx/.ppt) can be converted"})
	}

	pdf, err := api.converter.ConvertToPDF(ctx.Request().Context(), fh.Filename, data)
	if err != nil {
		return errors.Wrap(err, "converting to pdf")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, lecture.PDFFilename(fh.Filename)))
	return ctx.Blob(http.StatusOK, "application/pdf", pdf)
}

func (api *lectureAPI) usage(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	usage, err := api.quota.Usage(ctx.Request().Context(), usr.ID, usr.Plan)
	if err != nil {
		return errors.Wrap(err, "getting usage")
	}
	return ctx.JSON(http.StatusOK, UsageResponse{Plan: usr.Plan, Usage: usage})
}

func (api *lectureAPI) createProgress(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, IDResponse{ID: api.tracker.Create(usr.ID)})
}

// streamProgress relays the updates of `?id=` as server-sent events until done or the client leaves.
func (api *lectureAPI) streamProgress(ctx echo.Context) error {
	sub, err := api.tracker.Subscribe(ctx.QueryParam("id"))
	if err != nil {
		return err
	}
	defer sub.Close()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case u, ok := <-sub.C():
			if !ok {
				return nil
			}
			b, err := json.Marshal(u)
			if err != nil {
				return errors.Wrap(err, "encoding progress")
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", b); err != nil {
				api.logger.Debug(fmt.Sprintf("progress stream closed: %v", err))
				return nil
			}
			res.Flush()
		}
	}
}
