package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/reference"
	"github.com/trezcool/kalamu/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc      user.Service
		NoteSvc      note.Service
		FlashcardSvc flashcard.Service
		ReferenceSvc reference.Service
		LectureSvc   lecture.Service
		QuotaSvc     quota.Service
		Tracker      *progress.Tracker
		Converter    core.PDFConverter // optional
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.app.Use(middleware.BodyLimit("30M"))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	registerSite(s.app)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	authed := []echo.MiddlewareFunc{jwt, contextUserMiddleware(s.deps.UserSvc)}
	aiLimit := rateLimitMiddleware(conf.Server.AIRequestsPerMinute)

	registerUserAPI(v1, authed, s.auth, s.deps.UserSvc, s.deps.Validate, s.deps.Logger)
	registerNoteAPI(v1, authed, aiLimit, s.deps.NoteSvc, s.deps.ReferenceSvc, s.deps.Validate)
	registerFolderAPI(v1, authed, s.deps.NoteSvc, s.deps.Validate)
	registerFlashcardAPI(v1, authed, aiLimit, s.deps.FlashcardSvc, s.deps.Validate)
	registerLectureAPI(v1, authed, aiLimit, lectureAPIDeps{
		svc:       s.deps.LectureSvc,
		tracker:   s.deps.Tracker,
		converter: s.deps.Converter,
		quota:     s.deps.QuotaSvc,
		logger:    s.deps.Logger,
	})
}

// Start blocks until the server stops; failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
