package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raysh454/zapdash/internal/report"
)

// NewFormatCmd creates the format command.
func NewFormatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format [report.json]",
		Short: "Render a stored scan report as Markdown",
		Long: `Format reads a scan report (or any JSON document) and prints it rendered as
GitHub-flavoured Markdown. With no argument, or "-", the report is read from stdin.

Examples:
  zapdash format report.json > report.md
  curl -s localhost:8080/records/ID/artifact | zapdash format --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFormatCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Print the structured document as JSON instead of Markdown")
	return cmd
}

func runFormatCmd(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open report: %w", err)
		}
		defer f.Close()
		in = f
	}

	v, err := report.ParseReader(in)
	if err != nil {
		return fmt.Errorf("parse report: %w", err)
	}
	doc := report.Format(v)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := doc.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	return report.RenderMarkdown(doc, out)
}
