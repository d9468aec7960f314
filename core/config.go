package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		AIRequestsPerMinute       int
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite file (or ":memory:")
	}

	AIConfig struct {
		Provider            string // anthropic | gemini | fake
		Model               string
		EmbeddingModel      string
		EmbeddingDimensions int
		AnthropicAPIKey     string
		GeminiAPIKey        string
		MaxTokens           int
		Temperature         float64
		Timeout             time.Duration
	}

	ConverterConfig struct {
		URL     string
		Timeout time.Duration
	}

	Config struct {
		AppName                   string
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridApiKey            string
		NotifyLectureReady        bool
		ProgressTTL               time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		AI        AIConfig
		Converter ConverterConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration for the current ENV: defaults, then `config/.env.<env>`, then env vars.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("APP_NAME", "Kalamu")
	v.SetDefault("BUILD", "dev")
	v.SetDefault("DEBUG", true)
	v.SetDefault("SECRET_KEY", "h7#w2k!q^v9m@x4p(e8r)t6y$u1i&o3a*s5d+f0g=j-l_z")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:3000")
	v.SetDefault("DEFAULT_FROM_EMAIL", "Kalamu <noreply@localhost>")
	v.SetDefault("PASSWORD_RESET_TIMEOUT_DELTA", 3*24*time.Hour)
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFY_LECTURE_READY", true)
	v.SetDefault("PROGRESS_TTL", time.Hour)

	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_ADDRESS", ":8000")
	v.SetDefault("SERVER_DEBUG_HOST", ":4000")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER_JWT_EXPIRATION_DELTA", 7*24*time.Hour)
	v.SetDefault("SERVER_JWT_REFRESH_EXPIRATION_DELTA", 30*24*time.Hour)
	v.SetDefault("SERVER_AI_REQUESTS_PER_MINUTE", 10)
	v.SetDefault("SERVER_DISABLE_REQ_LOGS", false)

	v.SetDefault("DATABASE_ENGINE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "kalamu")
	v.SetDefault("DATABASE_USER", "kalamu")
	v.SetDefault("DATABASE_PASSWORD", "kalamu")
	v.SetDefault("DATABASE_ADMIN_USER", "postgres")
	v.SetDefault("DATABASE_ADMIN_PASSWORD", "")
	v.SetDefault("DATABASE_DISABLE_TLS", true)
	v.SetDefault("DATABASE_PATH", "kalamu.db")

	v.SetDefault("AI_PROVIDER", "anthropic")
	v.SetDefault("AI_MODEL", "claude-sonnet-4-5")
	v.SetDefault("AI_EMBEDDING_MODEL", "gemini-embedding-001")
	v.SetDefault("AI_EMBEDDING_DIMENSIONS", 768)
	v.SetDefault("AI_ANTHROPIC_API_KEY", "")
	v.SetDefault("AI_GEMINI_API_KEY", "")
	v.SetDefault("AI_MAX_TOKENS", 8192)
	v.SetDefault("AI_TEMPERATURE", 0.3)
	v.SetDefault("AI_TIMEOUT", 5*time.Minute)

	v.SetDefault("CONVERTER_URL", "")
	v.SetDefault("CONVERTER_TIMEOUT", 2*time.Minute)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("TEST_MODE", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("DEFAULT_FROM_EMAIL"))
	if err != nil {
		log.Fatalf("config.DEFAULT_FROM_EMAIL: %v", err)
	}

	return &Config{
		AppName:                   v.GetString("APP_NAME"),
		Env:                       env,
		Build:                     v.GetString("BUILD"),
		Debug:                     v.GetBool("DEBUG"),
		TestMode:                  v.GetBool("TEST_MODE"),
		SecretKey:                 v.GetString("SECRET_KEY"),
		FrontendBaseURL:           v.GetString("FRONTEND_BASE_URL"),
		DefaultFromEmail:          *from,
		PasswordResetTimeoutDelta: v.GetDuration("PASSWORD_RESET_TIMEOUT_DELTA"),
		RollbarToken:              v.GetString("ROLLBAR_TOKEN"),
		SendgridApiKey:            v.GetString("SENDGRID_API_KEY"),
		NotifyLectureReady:        v.GetBool("NOTIFY_LECTURE_READY"),
		ProgressTTL:               v.GetDuration("PROGRESS_TTL"),
		Server: ServerConfig{
			Host:                      v.GetString("SERVER_HOST"),
			Address:                   v.GetString("SERVER_ADDRESS"),
			DebugHost:                 v.GetString("SERVER_DEBUG_HOST"),
			ShutdownTimeout:           v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			JWTExpirationDelta:        v.GetDuration("SERVER_JWT_EXPIRATION_DELTA"),
			JWTRefreshExpirationDelta: v.GetDuration("SERVER_JWT_REFRESH_EXPIRATION_DELTA"),
			AIRequestsPerMinute:       v.GetInt("SERVER_AI_REQUESTS_PER_MINUTE"),
			DisableReqLogs:            v.GetBool("SERVER_DISABLE_REQ_LOGS"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("DATABASE_ENGINE"),
			Host:          v.GetString("DATABASE_HOST"),
			Port:          v.GetString("DATABASE_PORT"),
			Name:          v.GetString("DATABASE_NAME"),
			User:          v.GetString("DATABASE_USER"),
			Password:      v.GetString("DATABASE_PASSWORD"),
			AdminUser:     v.GetString("DATABASE_ADMIN_USER"),
			AdminPassword: v.GetString("DATABASE_ADMIN_PASSWORD"),
			DisableTLS:    v.GetBool("DATABASE_DISABLE_TLS"),
			Path:          v.GetString("DATABASE_PATH"),
		},
		AI: AIConfig{
			Provider:            v.GetString("AI_PROVIDER"),
			Model:               v.GetString("AI_MODEL"),
			EmbeddingModel:      v.GetString("AI_EMBEDDING_MODEL"),
			EmbeddingDimensions: v.GetInt("AI_EMBEDDING_DIMENSIONS"),
			AnthropicAPIKey:     v.GetString("AI_ANTHROPIC_API_KEY"),
			GeminiAPIKey:        v.GetString("AI_GEMINI_API_KEY"),
			MaxTokens:           v.GetInt("AI_MAX_TOKENS"),
			Temperature:         v.GetFloat64("AI_TEMPERATURE"),
			Timeout:             v.GetDuration("AI_TIMEOUT"),
		},
		Converter: ConverterConfig{
			URL:     v.GetString("CONVERTER_URL"),
			Timeout: v.GetDuration("CONVERTER_TIMEOUT"),
		},
	}
}
