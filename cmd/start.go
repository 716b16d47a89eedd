package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/process"
	"github.com/Davincible/assistant-bridge/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge service",
	Long:  `Start the assistant bridge HTTP service in the foreground.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetBool("log-file")
	defer setupLogging(verbose, logFile).Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		// Missing credentials for one family are tolerated; calls to it
		// answer with a configuration error.
		for _, line := range strings.Split(err.Error(), "\n") {
			logger.Warn("Configuration problem", "problem", line)
		}
	}

	procMgr := process.NewManager(baseDir)
	if procMgr.IsRunning() {
		return fmt.Errorf("service already running with pid %d", procMgr.ReadPID())
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("Loaded configuration",
		"host", cfg.Host,
		"port", cfg.Port,
		"providers", len(cfg.Providers),
		"auth", authMode(cfg.APIKey, cfg.SecretKey),
	)

	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	srv := server.New(cfgMgr, logger)
	return srv.Start()
}

func authMode(apiKey, secret string) string {
	switch {
	case apiKey != "" && secret != "":
		return "api-key+jwt"
	case apiKey != "":
		return "api-key"
	case secret != "":
		return "jwt"
	default:
		return "open"
	}
}
