package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/scanner"
	"github.com/goodtune/rollcall/internal/source"
)

var (
	scanURL      string
	scanPlatform string
	scanJSON     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [flags] FILE",
	Short: "Scan a saved meeting page once",
	Long:  `Parse a saved HTML page and print the participant names rollcall would extract from it.`,
	Example: `  rollcall scan --url https://meet.google.com/abc-defg-hij meet.html
  rollcall scan --platform zoom --json zoom.html`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanURL, "url", "", "Page URL used for platform detection")
	scanCmd.Flags().StringVar(&scanPlatform, "platform", "", "Force a platform (google-meet, zoom, teams, webex)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(scanCmd)
}

type scanOutput struct {
	URL           string   `json:"url"`
	Platform      string   `json:"platform"`
	Strategy      string   `json:"strategy"`
	Ended         bool     `json:"ended"`
	ReportedCount int      `json:"reportedCount"`
	Candidates    []string `json:"candidates"`
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := cliLogger()

	src := source.NewFile(args[0], scanURL, logger)
	snap, err := src.Snapshot(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	p := platform.Detect(snap.URL)
	if scanPlatform != "" {
		p = platform.Parse(scanPlatform)
		if p == platform.Unknown {
			return fmt.Errorf("unknown platform: %s", scanPlatform)
		}
	}

	res := scanner.New(logger).Scan(snap, p)
	out := scanOutput{
		URL:           snap.URL,
		Platform:      p.String(),
		Strategy:      res.Strategy.String(),
		Ended:         res.Ended,
		ReportedCount: res.ReportedCount,
		Candidates:    res.Candidates,
	}
	if out.Candidates == nil {
		out.Candidates = []string{}
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Printf("%s (%s)\n", p.DisplayName(), out.URL)
	if res.Ended {
		_, _ = color.New(color.FgYellow).Println("The page shows the meeting has ended.")
		return nil
	}
	fmt.Printf("Strategy: %s\n", out.Strategy)
	if out.ReportedCount > 0 {
		fmt.Printf("Platform reports %d participant(s)\n", out.ReportedCount)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Name"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, name := range out.Candidates {
		table.Append([]string{fmt.Sprint(i + 1), name})
	}
	table.Render()
	return nil
}
