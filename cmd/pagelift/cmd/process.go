package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

// processCmd represents the process command.
var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process documents for OCR text recognition",
	Long: `Process one or more documents to extract text using OCR.

Supported formats: JPEG, PNG, BMP, TIFF, PDF

Examples:
  pagelift process scan.pdf
  pagelift process photo.png --engine tesseract
  pagelift process *.pdf --format json --output results.json`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files provided")
		}

		cfg := GetConfig()

		engineName, _ := cmd.Flags().GetString("engine")
		dpi, _ := cmd.Flags().GetInt("dpi")
		format, _ := cmd.Flags().GetString("format")
		outputFile, _ := cmd.Flags().GetString("output")
		timeoutSec, _ := cmd.Flags().GetInt("timeout")
		pageTimeoutSec, _ := cmd.Flags().GetInt("page-timeout")
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")

		if format != outputFormatText && format != outputFormatJSON {
			return fmt.Errorf("invalid output format: %s (must be text or json)", format)
		}

		svcs, err := buildServices(cmd, cfg)
		if err != nil {
			return err
		}
		defer svcs.close()

		opts := orchestrate.Options{Engine: engineName, DPI: dpi}
		if timeoutSec > 0 {
			opts.Timeout = time.Duration(timeoutSec) * time.Second
		}
		if pageTimeoutSec > 0 {
			opts.PageTimeout = time.Duration(pageTimeoutSec) * time.Second
		}
		if maxAttempts > 0 {
			opts.MaxAttempts = maxAttempts
		}

		results := make(map[string]*orchestrate.Result, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path) //nolint:gosec // G304: user-provided input file
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			doc := document.New(path, "", data)
			res, err := svcs.service.Process(context.Background(), doc, opts)
			if err != nil {
				return fmt.Errorf("process %s: %w", path, err)
			}
			results[path] = res
		}

		out, err := renderResults(args, results, format)
		if err != nil {
			return err
		}

		if outputFile != "" {
			if err := os.WriteFile(outputFile, []byte(out), 0o600); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

// renderResults formats per-file results in input order.
func renderResults(paths []string, results map[string]*orchestrate.Result, format string) (string, error) {
	if format == outputFormatJSON {
		ordered := make([]struct {
			File   string              `json:"file"`
			Result *orchestrate.Result `json:"result"`
		}, 0, len(paths))
		for _, p := range paths {
			ordered = append(ordered, struct {
				File   string              `json:"file"`
				Result *orchestrate.Result `json:"result"`
			}{File: p, Result: results[p]})
		}
		data, err := json.MarshalIndent(ordered, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode results: %w", err)
		}
		return string(data) + "\n", nil
	}

	var out string
	for _, p := range paths {
		res := results[p]
		out += fmt.Sprintf("File: %s (engine: %s, pages: %d", p, res.Engine, len(res.Pages))
		if res.PartialSuccess {
			out += ", partial"
		}
		out += ")\n"
		out += res.Text()
		out += "\n"
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringP("engine", "e", "", "engine to use (tesseract, paddle, remote, auto)")
	processCmd.Flags().Int("dpi", 0, "render DPI for PDF pages (0 uses the configured default)")
	processCmd.Flags().StringP("format", "f", outputFormatText, "output format: text or json")
	processCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
	processCmd.Flags().Int("timeout", 0, "whole-document timeout in seconds (0 disables)")
	processCmd.Flags().Int("page-timeout", 0, "per-page timeout in seconds (0 uses the configured default)")
	processCmd.Flags().Int("max-attempts", 0, "attempts per page including the first (0 uses the configured default)")
}
