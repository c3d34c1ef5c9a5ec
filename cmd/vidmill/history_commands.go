package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vidmill/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past batch runs",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			batches, err := store.ListBatches(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batches recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(batches))
			for _, b := range batches {
				rows = append(rows, []string{
					b.BatchID,
					b.StartedAt.Local().Format("2006-01-02 15:04:05"),
					b.FinishedAt.Sub(b.StartedAt).Round(time.Second).String(),
					strconv.Itoa(b.Total),
					strconv.Itoa(b.Finished),
					strconv.Itoa(b.Failed),
					fmt.Sprintf("%.0f%%", b.SuccessRate*100),
				})
			}
			headers := []string{"BATCH", "STARTED", "DURATION", "TOTAL", "FINISHED", "FAILED", "SUCCESS"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
			fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to show")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show the per-task outcomes of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			summary, tasks, err := store.GetBatch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load batch %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Batch %s\n", summary.BatchID)
			fmt.Fprintf(out, "  started:  %s\n", summary.StartedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  duration: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
			fmt.Fprintf(out, "  finished: %d/%d (%.0f%% success, %d failed)\n\n",
				summary.Finished, summary.Total, summary.SuccessRate*100, summary.Failed)

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				detail := t.OutputPath
				if t.ErrorMessage != "" {
					detail = t.ErrorMessage
				}
				rows = append(rows, []string{
					t.TaskID,
					taskRowLabel(t),
					t.Status,
					strconv.Itoa(t.RetryCount),
					truncate(detail, 60),
				})
			}
			headers := []string{"TASK", "TITLE", "STATUS", "RETRIES", "OUTPUT / ERROR"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
			return nil
		},
	}
}

func taskRowLabel(t history.TaskRow) string {
	if t.Title != "" {
		return t.Title
	}
	return truncate(t.Content, 30)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
