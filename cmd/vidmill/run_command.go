package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vidmill/internal/config"
	"vidmill/internal/history"
	"vidmill/internal/ingest"
	"vidmill/internal/logging"
	"vidmill/internal/notifications"
	"vidmill/internal/orchestrator"
	"vidmill/internal/services/asr"
	"vidmill/internal/services/bitable"
	"vidmill/internal/services/coze"
	"vidmill/internal/services/keywords"
	"vidmill/internal/synthesis"
	"vidmill/internal/task"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var tasksFile string
	var resultsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a batch of video tasks",
		Long: "Fetches pending tasks from the configured table (or a local JSON file), " +
			"submits them to the workflow API, polls until completion, and synthesizes " +
			"a draft project for each finished video.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, tasksFile, resultsPath)
		},
	}

	cmd.Flags().StringVarP(&tasksFile, "tasks-file", "f", "", "JSON file with tasks to process instead of the table backend")
	cmd.Flags().StringVarP(&resultsPath, "results", "o", "", "Path for the results JSON (defaults to the output directory)")
	return cmd
}

func runBatch(cmd *cobra.Command, cmdCtx *commandContext, tasksFile, resultsPath string) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "vidmill.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another vidmill run is already in progress")
	}
	defer func() { _ = lock.Unlock() }()

	out := cmd.OutOrStdout()

	var tableClient *bitable.Client
	if cfg.Bitable.Enabled {
		tableClient = bitable.NewClient(bitable.Config{
			BaseURL:        cfg.Bitable.BaseURL,
			Token:          cfg.Bitable.Token,
			AppToken:       cfg.Bitable.AppToken,
			TableID:        cfg.Bitable.TableID,
			StatusField:    cfg.Bitable.StatusField,
			ErrorField:     cfg.Bitable.ErrorField,
			RequestTimeout: cfg.Bitable.RequestTimeout,
		})
	}

	params, err := loadTasks(signalCtx, cfg, tableClient, tasksFile, out)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		fmt.Fprintln(out, "No pending tasks to process")
		return nil
	}

	runner := coze.NewClient(coze.Config{
		BaseURL:        cfg.Coze.BaseURL,
		Token:          cfg.Coze.Token,
		WorkflowID:     cfg.Coze.WorkflowID,
		RequestTimeout: cfg.Coze.RequestTimeout,
		RatePerSecond:  cfg.Coze.RatePerSecond,
	})

	var synthOpts []synthesis.Option
	if cfg.ASR.Enabled {
		synthOpts = append(synthOpts, synthesis.WithTranscriber(asr.NewClient(asr.Config{
			BaseURL:        cfg.ASR.BaseURL,
			APIKey:         cfg.ASR.APIKey,
			RequestTimeout: cfg.ASR.RequestTimeout,
		})))
	}
	if cfg.Keywords.Enabled {
		synthOpts = append(synthOpts, synthesis.WithKeywordExtractor(keywords.NewClient(keywords.Config{
			APIKey:         cfg.Keywords.APIKey,
			BaseURL:        cfg.Keywords.BaseURL,
			Model:          cfg.Keywords.Model,
			TimeoutSeconds: cfg.Keywords.TimeoutSeconds,
		})))
	}
	synth := synthesis.New(synthesis.Config{DraftDir: cfg.Paths.DraftDir}, logger, synthOpts...)

	notifier := notifications.NewService(cfg)
	listeners := []orchestrator.Listener{notifications.NewBatchListener(notifier, logger)}
	if tableClient != nil {
		listeners = append(listeners, bitable.NewStatusSink(tableClient, logger))
	}

	orch := orchestrator.New(orchestrator.FromConfig(cfg.Orchestrator), runner, synth, logger, listeners...)
	orch.AddTasks(params)

	if err := notifier.NotifyBatchStarted(signalCtx, len(params)); err != nil {
		logger.Warn("batch start notification failed", logging.Args(logging.Error(err))...)
	}

	fmt.Fprintf(out, "Processing %d tasks (batch %s)\n", len(params), orch.BatchID())
	if err := orch.StartBatchProcessing(signalCtx); err != nil {
		return fmt.Errorf("start batch: %w", err)
	}
	stats := orch.WaitForCompletion()

	if resultsPath == "" {
		resultsPath = filepath.Join(cfg.Paths.OutputDir, fmt.Sprintf("results-%s.json", orch.BatchID()))
	}
	if err := orch.SaveResults(resultsPath); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	recordHistory(cfg, logger, orch, stats)
	printBatchSummary(out, orch, stats, resultsPath)

	if signalCtx.Err() != nil {
		return signalCtx.Err()
	}
	return nil
}

func loadTasks(ctx context.Context, cfg *config.Config, tableClient *bitable.Client, tasksFile string, out io.Writer) ([]task.Params, error) {
	if tasksFile != "" {
		return ingest.LoadTasksFile(tasksFile)
	}
	if tableClient == nil {
		return nil, fmt.Errorf("no task source: enable the bitable backend or pass --tasks-file")
	}
	params, skipped, err := ingest.FetchPending(ctx, tableClient, cfg.Bitable.StatusField)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped %d rows without content\n", skipped)
	}
	return params, nil
}

// recordHistory archives the batch outcome. Failures are logged rather than
// returned so a history problem never masks a successful run.
func recordHistory(cfg *config.Config, logger *slog.Logger, orch *orchestrator.Orchestrator, stats orchestrator.Stats) {
	store, err := history.Open(cfg)
	if err != nil {
		logger.Warn("history store unavailable", logging.Args(logging.Error(err))...)
		return
	}
	defer store.Close()
	if err := store.RecordBatch(context.Background(), orch.BatchID(), stats, orch.Results()); err != nil {
		logger.Warn("record batch history failed", logging.Args(logging.Error(err))...)
	}
}

func printBatchSummary(out io.Writer, orch *orchestrator.Orchestrator, stats orchestrator.Stats, resultsPath string) {
	duration := time.Duration(0)
	if stats.FinishedAt != nil {
		duration = stats.FinishedAt.Sub(stats.StartedAt).Round(time.Second)
	}
	fmt.Fprintf(out, "\nBatch %s complete in %s\n", orch.BatchID(), duration)
	fmt.Fprintf(out, "  finished: %d\n  failed:   %d\n  success:  %.1f%%\n", stats.Finished, stats.Failed, stats.SuccessRate*100)
	if stats.Failed > 0 {
		for _, t := range orch.Results() {
			if t.Status == task.StatusFailed {
				fmt.Fprintf(out, "  FAILED %s: %s\n", taskLabel(t), t.ErrorMessage)
			}
		}
	}
	fmt.Fprintf(out, "Results written to %s\n", resultsPath)
}

func taskLabel(t *task.Task) string {
	if t.Title != "" {
		return t.Title
	}
	return t.ID
}
