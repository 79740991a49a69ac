package commands

import (
	"fmt"

	"github.com/biodoia/smartwatcher/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigCmd rappresenta il comando config
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate the SmartWatcher configuration.`,
	Example: `  # Show current configuration (credentials masked)
  smartwatcher config show

  # Validate configuration file
  smartwatcher config validate -c config.yaml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the loaded configuration, including defaults and environment overrides. Credentials are masked.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# Current Configuration")
	fmt.Fprintln(out, "# =====================")
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("✗ Configuration is invalid"))
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("✓ Configuration is valid"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration summary:")
	fmt.Fprintf(out, "  Server:     %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  Model:      %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "  Cache:      %s\n", cfg.Cache.Backend)
	fmt.Fprintf(out, "  Prometheus: %v\n", cfg.Monitoring.Prometheus.Enabled)
	fmt.Fprintf(out, "  Tracing:    %v\n", cfg.Monitoring.Tracing.Enabled)
	return nil
}
