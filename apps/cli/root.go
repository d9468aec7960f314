package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trezcool/kalamu/client"
	"github.com/trezcool/kalamu/core"
)

const defaultServer = "http://localhost:8000"

var errNotLoggedIn = errors.New(`not logged in: run "kalamu login" first`)

var (
	verbose         bool
	jsonOutput      bool
	serverFlag      string
	credentialsFlag string

	logger core.Logger = core.NopLogger{}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kalamu",
	Short: "Take notes, turn lectures into notes and study them with flashcards",
	Long: `kalamu talks to a Kalamu server on your behalf.
Log in once with "kalamu login"; the token is kept in your config directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slogLogger{slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Kalamu server URL (env KALAMU_SERVER)")
	rootCmd.PersistentFlags().StringVar(&credentialsFlag, "credentials", "", "Credentials file (env KALAMU_CREDENTIALS)")

	viper.SetEnvPrefix("kalamu")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("credentials", rootCmd.PersistentFlags().Lookup("credentials"))
}

// slogLogger reports the client packages' logs through slog.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) log(level slog.Level, msg string, args []interface{}) {
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			s.l.Log(context.Background(), level, msg, "error", err)
			return
		}
	}
	s.l.Log(context.Background(), level, msg)
}

func (s slogLogger) Debug(msg string, args ...interface{}) { s.log(slog.LevelDebug, msg, args) }
func (s slogLogger) Info(msg string, args ...interface{})  { s.log(slog.LevelInfo, msg, args) }
func (s slogLogger) Warn(msg string, args ...interface{})  { s.log(slog.LevelWarn, msg, args) }
func (s slogLogger) Error(msg string, args ...interface{}) { s.log(slog.LevelError, msg, args) }

func (s slogLogger) Fatal(msg string, args ...interface{}) {
	s.log(slog.LevelError, msg, args)
	os.Exit(1)
}

// serverURL resolves the server from the flag, the environment, then the credentials.
func serverURL(creds *credentials) string {
	if s := viper.GetString("server"); s != "" {
		return s
	}
	if creds != nil && creds.Server != "" {
		return creds.Server
	}
	return defaultServer
}

// newClient returns a client authenticated with the saved token, if any.
func newClient() (*client.Client, *credentials, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, nil, err
	}
	c := client.New(serverURL(creds), client.WithToken(creds.Token))
	return c, creds, nil
}

// authedClient fails early when nobody is logged in.
func authedClient() (*client.Client, error) {
	c, creds, err := newClient()
	if err != nil {
		return nil, err
	}
	if creds.Token == "" {
		return nil, errNotLoggedIn
	}
	return c, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 10*time.Minute)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
