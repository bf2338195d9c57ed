package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pagelift/pagelift/internal/config"
)

// configCmd represents the config command.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration",
	Long: `Inspect the resolved configuration or generate a starter config file.

Examples:
  pagelift config show
  pagelift config init
  pagelift config init --output /etc/pagelift/pagelift.yaml`,
}

// configShowCmd prints the fully resolved configuration.
var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Show the resolved configuration",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}

		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# defaults (searched: %s)\n",
				strings.Join(config.GetConfigSearchPaths(), ", "))
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// configInitCmd writes a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:          "init",
	Short:        "Write a configuration file with default values",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = config.ConfigFileName + ".yaml"
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(output); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", output)
		}

		defaults := config.DefaultConfig()
		data, err := yaml.Marshal(defaults)
		if err != nil {
			return fmt.Errorf("encode defaults: %w", err)
		}

		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().StringP("output", "o", "", "output file (default pagelift.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}
