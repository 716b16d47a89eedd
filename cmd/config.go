package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the assistant bridge configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long: `Initialize configuration by prompting for backend credentials.
With --example an annotated example YAML file is written instead.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, including environment overrides.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configInitCmd.Flags().Bool("example", false, "write an example config.yaml instead of prompting")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if example, _ := cmd.Flags().GetBool("example"); example {
		if err := cfgMgr.CreateExampleYAML(); err != nil {
			return fmt.Errorf("failed to write example configuration: %w", err)
		}
		color.Green("Example configuration written to: %s", cfgMgr.GetPath())
		return nil
	}

	color.Blue("Assistant Bridge Configuration Setup")
	color.Yellow("Follow the prompts to configure your backends. Leave a key empty to skip that backend.")

	cfg, err := promptConfig(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	if err := cfgMgr.SaveAsYAML(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the bridge with: abr start")

	return nil
}

// promptConfig reads backend credentials and bridge auth settings from in.
func promptConfig(in io.Reader, out io.Writer) (*config.Config, error) {
	reader := bufio.NewReader(in)

	ask := func(label string) (string, error) {
		fmt.Fprint(out, label)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
		}
		return strings.TrimSpace(line), nil
	}

	var answers [6]string
	labels := [...]string{
		"\nOpenAI-compatible provider name (default openai): ",
		"OpenAI-compatible API key: ",
		"OpenAI-compatible base URL (empty for the provider default): ",
		"Anthropic API key: ",
		"Bridge API key (optional, for authentication): ",
		"JWT secret (optional, for per-user tokens): ",
	}
	for i, label := range labels {
		answer, err := ask(label)
		if err != nil {
			return nil, err
		}
		answers[i] = answer
	}

	name, openAIKey, baseURL, anthropicKey := answers[0], answers[1], answers[2], answers[3]
	if name == "" {
		name = config.OpenAIProvider
	}

	cfg := &config.Config{
		APIKey:    answers[4],
		SecretKey: answers[5],
	}
	if openAIKey != "" {
		cfg.Providers = append(cfg.Providers, config.Provider{Name: name, APIBase: baseURL, APIKey: openAIKey})
	}
	if anthropicKey != "" {
		cfg.Providers = append(cfg.Providers, config.Provider{Name: config.AnthropicProvider, APIKey: anthropicKey})
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one backend API key is required")
	}

	return cfg, nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %s\n", "JWT Secret", maskString(cfg.SecretKey))
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nProviders:")
	for _, provider := range cfg.Providers {
		family := "openai"
		if provider.IsAnthropic() {
			family = "anthropic"
		}
		fmt.Printf("  - Name: %s (%s)\n", provider.Name, family)
		fmt.Printf("    API Base: %s\n", provider.APIBase)
		fmt.Printf("    API Key: %s\n", maskString(provider.APIKey))
		fmt.Println()
	}

	fmt.Println("Router Configuration:")
	fmt.Printf("  %-15s: %s\n", "Vendor Prefix", cfg.Router.VendorPrefix)
	fmt.Printf("  %-15s: %s\n", "Default Model", cfg.Router.Default)

	fmt.Println("\nDefaults:")
	fmt.Printf("  %-15s: %g\n", "Temperature", cfg.Temperature())
	fmt.Printf("  %-15s: %d\n", "Max Tokens", cfg.Defaults.MaxTokens)
	fmt.Printf("  %-15s: %s\n", "Retry Backoff", cfg.Transport.RetryBackoff)
	fmt.Printf("  %-15s: %s\n", "Timeout", cfg.Transport.RequestTimeout)

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		color.Red("Configuration validation failed:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("  - %s\n", line)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

func providerName(p *config.Provider) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
