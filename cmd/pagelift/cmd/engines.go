package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// enginesCmd represents the engines command.
var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List registered OCR engines",
	Long: `List every configured engine with its capability class, priority and
availability. Engines that failed to initialize show the failure reason.

Examples:
  pagelift engines
  pagelift engines --format json`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		// Build only the registry so unavailable engines still get listed.
		reg := cfg.BuildRegistry(1)
		defer func() { _ = reg.Close() }()

		descs := reg.Descriptors()

		format, _ := cmd.Flags().GetString("format")
		if format == outputFormatJSON {
			data, err := json.MarshalIndent(descs, "", "  ")
			if err != nil {
				return fmt.Errorf("encode engines: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		for _, d := range descs {
			state := "available"
			if !d.Available {
				state = "unavailable"
				if d.Detail != "" {
					state += ": " + d.Detail
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-12s class=%-9s priority=%-3d %s\n",
				d.Name, d.ClassName, d.Priority, state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enginesCmd)
	enginesCmd.Flags().StringP("format", "f", outputFormatText, "output format: text or json")
}
