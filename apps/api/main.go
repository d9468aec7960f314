package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/kalamu/apps/api/echo"
	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/reference"
	"github.com/trezcool/kalamu/core/user"
	aisvc "github.com/trezcool/kalamu/services/ai"
	convertsvc "github.com/trezcool/kalamu/services/convert"
	emailsvc "github.com/trezcool/kalamu/services/email"
	logsvc "github.com/trezcool/kalamu/services/logger"
	pdfsvc "github.com/trezcool/kalamu/services/pdf"
	"github.com/trezcool/kalamu/services/scheduler"
	"github.com/trezcool/kalamu/storage/database"
	sqlxrepos "github.com/trezcool/kalamu/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up external services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(logger, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	var (
		ai       core.AIService
		embedder core.Embedder
	)
	router, err := aisvc.NewRouter(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up AI providers: %v", err), err)
	}
	if router != nil {
		ai = router
		embedder = router.Embedder()
	}

	converter := convertsvc.NewHTTPConverter(conf)
	if converter == nil {
		logger.Warn("no conversion service is configured: PowerPoint uploads are disabled")
	}
	tracker := progress.NewTracker()

	// set up domain services
	quotaSvc := quota.NewService(sqlxrepos.NewUsageRepository(db), nil)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	noteSvc := note.NewService(db, sqlxrepos.NewNoteRepository(db), embedder, logger)
	fcSvc := flashcard.NewService(db, sqlxrepos.NewFlashcardRepository(db), noteSvc, ai, quotaSvc, logger, conf)
	refSvc := reference.NewService(db, sqlxrepos.NewReferenceRepository(db), noteSvc, ai, quotaSvc, logger, conf)
	lectureSvc := lecture.NewService(
		noteSvc,
		converter,
		pdfsvc.NewExtractor(logger),
		ai,
		quotaSvc,
		tracker,
		mailSvc,
		logger,
		conf,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	jobs := scheduler.New(tracker, quotaSvc, logger, conf)
	if err = jobs.Start(); err != nil {
		logger.Fatal(fmt.Sprintf("starting scheduler: %v", err), err)
	}
	defer jobs.Stop()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Validate:     validate,
			Translator:   translator,
			UserSvc:      usrSvc,
			NoteSvc:      noteSvc,
			FlashcardSvc: fcSvc,
			ReferenceSvc: refSvc,
			LectureSvc:   lectureSvc,
			QuotaSvc:     quotaSvc,
			Tracker:      tracker,
			Converter:    converter,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
