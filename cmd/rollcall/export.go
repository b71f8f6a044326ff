package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/goodtune/rollcall/internal/export"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export [flags] ID",
	Short: "Export a stored session as JSON or CSV",
	Example: `  rollcall export session_1741942800000_a1b2c3d4e5
  rollcall export --format csv --output - session_1741942800000_a1b2c3d4e5`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format (json or csv)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file, - for stdout (default: generated file name)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	kind := export.Kind(exportFormat)
	if kind != export.KindJSON && kind != export.KindCSV {
		return fmt.Errorf("unsupported export format: %s (must be json or csv)", exportFormat)
	}

	store, err := openCLIStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := store.Sessions().Load(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", args[0], err)
	}

	now := time.Now()
	doc := export.Build(*session, now)

	output := exportOutput
	if output == "" {
		output = export.Filename(kind, session.Platform.String(), now)
	}

	var w io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if kind == export.KindCSV {
		err = export.WriteCSV(w, doc, time.Local)
	} else {
		err = export.WriteJSON(w, doc)
	}
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	if output != "-" {
		fmt.Fprintf(os.Stderr, "Exported %d participant(s) to %s\n", len(doc.Participants), output)
	}
	return nil
}
