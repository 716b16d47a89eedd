package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/process"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the bridge service",
	Long:  `Stop the running assistant bridge service, even while chat sessions still use it.`,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, _ []string) error {
	procMgr := process.NewManager(baseDir)

	if !procMgr.IsRunning() {
		color.Yellow("Service is not running")
		procMgr.CleanupRef()
		return nil
	}

	pid := procMgr.ReadPID()
	if refs := procMgr.ReadRef(); refs > 0 {
		color.Yellow("%d chat session(s) still active", refs)
	}

	color.Yellow("Stopping %s (pid %d)...", AppName, pid)
	if err := procMgr.Stop(); err != nil {
		return fmt.Errorf("stop service: %w", err)
	}

	procMgr.CleanupRef()

	color.Green("Service stopped successfully")
	return nil
}
