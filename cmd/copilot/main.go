package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/config"
)

var (
	version = "0.1.0"
	logger  *slog.Logger

	logLevel   string
	apiBaseURL string
	authToken  string
)

func main() {
	root := &cobra.Command{
		Use:   "copilot",
		Short: "AidCare clinical copilot client engine",
		Long: `copilot drives multilingual triage conversations, clinician dashboards
and OpenER emergency routing against the AidCare backend.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(logLevel)
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (default COPILOT_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&apiBaseURL, "api", "", "backend base URL (default COPILOT_API_BASE_URL)")
	root.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (default COPILOT_AUTH_TOKEN)")

	root.AddCommand(serveCmd())
	root.AddCommand(triageCmd())
	root.AddCommand(dashboardCmd())
	root.AddCommand(openerCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(whoamiCmd())
	root.AddCommand(perfCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if v := strings.TrimSpace(apiBaseURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(authToken); v != "" {
		cfg.AuthToken = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv("COPILOT_LOG_LEVEL")
	}
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the copilot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "copilot %s\n", version)
		},
	}
}
