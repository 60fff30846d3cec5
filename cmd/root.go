package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vidcoach/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	verbose bool
	logJSON bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vidcoach",
		Short: "Technique analysis for sports videos",
		Long: `vidcoach downloads a video, samples frames from it and asks a multimodal
model for concrete technique observations. The model drives the pipeline
through three capabilities; vidcoach runs them and keeps the transcript.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(logLevel(), logJSON)
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $VIDCOACH_CONFIG or "+config.DefaultConfigPath+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON lines on stderr")

	root.AddCommand(analyzeCmd())
	root.AddCommand(capabilitiesCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("VIDCOACH_CONFIG"); v != "" {
		return v
	}
	return config.DefaultConfigPath
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if !verbose && os.Getenv("VIDCOACH_LOG_LEVEL") == "" {
		setupLogging(cfg.Log.Level, logJSON || cfg.Log.JSON)
	}
	return cfg
}

func logLevel() string {
	if verbose {
		return "debug"
	}
	if v := os.Getenv("VIDCOACH_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}

func setupLogging(level string, asJSON bool) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("vidcoach", Version)
		},
	}
}
