package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/config"
)

const (
	AppName = "assistant-bridge"
	Version = "0.3.0"

	logFilename = "assistant-bridge.log"
)

var (
	logger  *slog.Logger
	homeDir string
	baseDir string
	cfgMgr  *config.Manager
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger = slog.New(handler)

	var err error
	homeDir, err = os.UserHomeDir()
	if err != nil {
		logger.Error("Failed to get home directory", "error", err)
		os.Exit(1)
	}

	baseDir = filepath.Join(homeDir, "."+AppName)
	cfgMgr = config.NewManager(baseDir)
}

var rootCmd = &cobra.Command{
	Use:   "abr",
	Short: "Assistant Bridge - one chat API for OpenAI and Anthropic backends",
	Long: `Assistant Bridge accepts OpenAI chat-completions requests and serves them from
either an OpenAI-compatible backend or the Anthropic Messages API, translating
tool calls and messages in both directions.`,
	Version: Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolP("log-file", "l", false, "also write logs to "+logFilename+" in the config directory")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging replaces the logger; the returned closer releases the log
// file when one was opened.
func setupLogging(verbose, logFile bool) io.Closer {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)

	if logFile {
		path := filepath.Join(baseDir, logFilename)
		f, err := openLogFile(path)
		if err != nil {
			color.Yellow("File logging unavailable (%v), using stdout", err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
			closer = f
		}
	}

	logger = slog.New(slog.NewTextHandler(out, opts))
	return closer
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return f, nil
}

// loadConfig reads the config file, or falls back to defaults plus
// environment variables when none exists.
func loadConfig() (*config.Config, error) {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration file found, using environment variables. Run 'abr config init' to create one.")
	}

	cfg, err := cfgMgr.LoadOrDefault()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	return cfg, nil
}
