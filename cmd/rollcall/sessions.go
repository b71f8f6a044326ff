package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/goodtune/rollcall/internal/config"
	"github.com/goodtune/rollcall/internal/export"
	"github.com/goodtune/rollcall/internal/roster"
	"github.com/goodtune/rollcall/internal/storage"
)

const displayTime = "2006-01-02 15:04:05"

var clearYes bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the roster of a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored session",
	Args:  cobra.NoArgs,
	RunE:  runSessionsClear,
}

func init() {
	sessionsClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// openCLIStore loads the configuration and opens its primary store.
func openCLIStore() (storage.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := openStorage(cfg.Storage, cliLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openCLIStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.Sessions().List(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	current, _ := store.Sessions().Current(context.Background())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session", "Platform", "Started", "Updated", "Present", "Participants"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, s := range sessions {
		id := s.ID
		if id == current {
			id += " *"
		}
		present := lo.CountBy(s.Participants, func(p roster.Participant) bool { return p.CurrentlyPresent })
		table.Append([]string{
			id,
			s.Platform.DisplayName(),
			s.Started().Local().Format(displayTime),
			s.LastUpdated.Local().Format(displayTime),
			strconv.Itoa(present),
			strconv.Itoa(len(s.Participants)),
		})
	}
	table.Render()
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openCLIStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := store.Sessions().Load(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", args[0], err)
	}

	doc := export.Build(*session, time.Now())

	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Printf("%s  %s\n", doc.SessionInfo.SessionID, doc.SessionInfo.Platform)
	fmt.Printf("URL:       %s\n", doc.SessionInfo.URL)
	fmt.Printf("Started:   %s\n", doc.SessionInfo.StartTime.Local().Format(displayTime))
	fmt.Printf("Duration:  %s\n", export.FormatDuration(time.Duration(doc.SessionInfo.SessionDuration)*time.Millisecond))
	fmt.Printf("Attendees: %d (%d present, %d sessions)\n\n",
		doc.Summary.TotalParticipants, doc.Summary.CurrentlyPresent, doc.Summary.TotalSessions)

	green := color.New(color.FgGreen).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Joined", "Left", "Duration", "Sessions", "Present"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, p := range doc.Participants {
		present := faint("No")
		if p.CurrentlyPresent {
			present = green("Yes")
		}
		left := p.LeaveTime
		if t, err := time.Parse(time.RFC3339, left); err == nil {
			left = t.Local().Format(displayTime)
		}
		table.Append([]string{
			p.Name,
			p.JoinTime.Local().Format(displayTime),
			left,
			p.Duration,
			strconv.Itoa(p.TotalSessions),
			present,
		})
	}
	table.Render()
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	if !clearYes && !confirm("Delete all stored sessions?") {
		fmt.Println("Aborted.")
		return nil
	}

	store, err := openCLIStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Sessions().Clear(context.Background())
	if err != nil {
		return err
	}
	_, _ = color.New(color.FgGreen).Printf("Deleted %d session(s)\n", n)
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
