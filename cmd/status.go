package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge service status",
	Long:  `Display the current status of the assistant bridge service.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir)
	cfg := cfgMgr.Get()

	running := procMgr.IsRunning()
	pid := procMgr.ReadPID()
	refs := procMgr.ReadRef()

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-15s: %v\n", "Running", running)
	fmt.Printf("  %-15s: %d\n", "PID", pid)

	if cfg != nil {
		fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
		fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
		fmt.Printf("  %-15s: %s\n", "Endpoint", endpointURL(cfg.Host, cfg.Port))
		fmt.Printf("  %-15s: %s\n", "Auth", authMode(cfg.APIKey, cfg.SecretKey))
		fmt.Printf("  %-15s: %q\n", "Vendor Prefix", cfg.Router.VendorPrefix)
		fmt.Printf("  %-15s: %s\n", "OpenAI", familyStatus(cfg.OpenAI() != nil && cfg.OpenAI().APIKey != "", providerName(cfg.OpenAI())))
		fmt.Printf("  %-15s: %s\n", "Anthropic", familyStatus(cfg.Anthropic() != nil && cfg.Anthropic().APIKey != "", providerName(cfg.Anthropic())))
	}

	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: %d\n", "References", refs)
	fmt.Printf("  %-15s: v%s\n", "Version", Version)
}

func endpointURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d", host, port)
}

func familyStatus(configured bool, name string) string {
	if !configured {
		return "not configured"
	}
	return "configured (" + name + ")"
}
