package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/deployer/internal/shell/journal"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the decisions of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath, bindFlags(cmd, map[string]string{"journal-dsn": "journal.dsn"}))
			if err != nil {
				return withExitCode(ExitConfigError, err)
			}
			j, err := openJournal(cfg.Journal.DSN)
			if err != nil {
				return withExitCode(ExitJournalError, err)
			}
			defer j.Close()

			if runID != "" {
				return withExitCode(ExitJournalError, printDecisions(cmd, j, runID))
			}
			runs, err := j.ListRuns(cmd.Context(), journal.ListOptions{Limit: limit})
			if err != nil {
				return withExitCode(ExitJournalError, err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show the decisions of this run")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().String("journal-dsn", "", "journal database")
	return cmd
}

func printRuns(w io.Writer, runs []journal.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tNETWORK\tBLOCK\tSTATUS\tSTARTED\tREGISTRY\tERROR")
	for _, r := range runs {
		network := r.NetworkID
		if r.NetworkName != "" {
			network += " (" + r.NetworkName + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, network, r.StartBlock, r.Status, r.StartedAt.Format(time.RFC3339), r.Registry, r.Error)
	}
	return tw.Flush()
}

func printDecisions(cmd *cobra.Command, j journal.Journal, runID string) error {
	run, err := j.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	decisions, err := j.ListDecisions(cmd.Context(), runID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s: %s on network %s from block %d\n", run.ID, run.Status, run.NetworkID, run.StartBlock)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tARTIFACT\tKEY\tACTION\tADDRESS\tREASON")
	for _, d := range decisions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.Stage, d.Artifact, d.Key, d.Action, d.Address, d.Reason)
	}
	return tw.Flush()
}
