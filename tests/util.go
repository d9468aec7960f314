package testutil

import (
	"context"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
	"github.com/trezcool/kalamu/storage/database"
)

// NewConfig returns the configuration used by tests: sqlite in memory, no external services.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:                   "Kalamu",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "Kalamu", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		ProgressTTL:               time.Hour,
		Server: core.ServerConfig{
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			AIRequestsPerMinute:       1000,
			DisableReqLogs:            true,
		},
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Path:   ":memory:",
		},
		AI: core.AIConfig{
			Provider:  "fake",
			MaxTokens: 1024,
			Timeout:   10 * time.Second,
		},
	}
}

// NewValidator returns a validator with every custom validation and translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

type nopLogger struct{}

// NewLogger returns a core.Logger that discards everything but Fatal.
func NewLogger() core.Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(msg string, _ ...interface{}) {
	log.Fatal(msg)
}

// PrepareDB opens a fresh migrated in-memory database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(NewConfig())
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	plan quota.Plan,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if plan == "" {
		plan = quota.PlanFree
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Plan:      plan,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateFolder(t *testing.T, repo note.Repository, ownerID, name string) note.Folder {
	t.Helper()
	now := time.Now().UTC()
	f, err := repo.CreateFolder(context.Background(), note.Folder{
		OwnerID:   ownerID,
		Name:      name,
		Color:     note.DefaultFolderColor,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateFolder() failed: %v", err)
	}
	return f
}

func CreateNote(t *testing.T, repo note.Repository, ownerID, title, content string, folderID *string, createdAt ...time.Time) note.Note {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	n, err := repo.CreateNote(context.Background(), note.Note{
		OwnerID:   ownerID,
		FolderID:  folderID,
		Title:     title,
		Content:   content,
		Type:      note.TypeManual,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	return n
}
