// Command ctxeval runs the context evaluation engine: a Temporal worker
// hosting the pipeline evaluation workflow, or a local simulation that
// compares structured and freeform handoff encodings.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/contextscope/ctxeval/internal/evaluation"
	"github.com/contextscope/ctxeval/internal/judge"
	"github.com/contextscope/ctxeval/internal/simulator"
	"github.com/contextscope/ctxeval/internal/storage/badgerstore"
	"github.com/contextscope/ctxeval/internal/storage/memstore"
	"github.com/contextscope/ctxeval/internal/worker"
	"github.com/contextscope/ctxeval/pkg/events"
)

const defaultTaskQueue = "ctxeval-pipeline"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	dataDir       string
	inMemory      bool
	judgeEndpoint string
	verbose       bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "ctxeval",
		Short: "Score information fidelity across agent-to-agent context handoffs",
		Long: `ctxeval evaluates how well context survives each handoff of a
multi-agent pipeline. It computes per-handoff heuristic scores, optionally
blends in an external judge verdict, and rolls handoffs up into pipeline
level summaries.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flags.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "ctxeval-data",
		"directory for the embedded evaluation store")
	cmd.PersistentFlags().BoolVar(&flags.inMemory, "in-memory", false,
		"keep evaluations in memory instead of on disk")
	cmd.PersistentFlags().StringVar(&flags.judgeEndpoint, "judge-endpoint", os.Getenv("CTXEVAL_JUDGE_ENDPOINT"),
		"judge service URL; empty disables the judge and scores stay heuristic-only")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"enable debug logging")

	cmd.AddCommand(newWorkerCmd(flags))
	cmd.AddCommand(newSimulateCmd(flags))
	cmd.AddCommand(newRecentCmd(flags))
	return cmd
}

// buildEvaluator wires the store and optional judge into an evaluator.
// The returned closer releases the store.
func buildEvaluator(flags *rootFlags) (*evaluation.Evaluator, func() error, error) {
	logger := slog.Default()

	var store evaluation.Store
	closer := func() error { return nil }
	if flags.inMemory {
		store = memstore.New()
	} else {
		cfg := badgerstore.DefaultConfig(flags.dataDir)
		bs, err := badgerstore.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		store = bs
		closer = bs.Close
	}

	opts := []evaluation.Option{evaluation.WithLogger(logger)}
	if flags.judgeEndpoint != "" {
		cfg := judge.DefaultConfig()
		cfg.Endpoint = flags.judgeEndpoint
		cfg.APIKey = os.Getenv("CTXEVAL_JUDGE_API_KEY")
		cfg.Logger = logger
		judgeClient, err := judge.NewClient(cfg)
		if err != nil {
			closer() //nolint:errcheck // already failing
			return nil, nil, fmt.Errorf("build judge client: %w", err)
		}
		opts = append(opts, evaluation.WithJudge(judgeClient))
	}

	evaluator, err := evaluation.NewEvaluator(store, opts...)
	if err != nil {
		closer() //nolint:errcheck // already failing
		return nil, nil, err
	}
	return evaluator, closer, nil
}

func newWorkerCmd(flags *rootFlags) *cobra.Command {
	var (
		hostPort  string
		namespace string
		taskQueue string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker hosting the pipeline evaluation workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluator, closeStore, err := buildEvaluator(flags)
			if err != nil {
				return err
			}
			defer closeStore() //nolint:errcheck // best-effort shutdown

			c, err := client.Dial(client.Options{
				HostPort:  hostPort,
				Namespace: namespace,
				Logger:    newTemporalLogger(slog.Default()),
			})
			if err != nil {
				return fmt.Errorf("connect to temporal at %s: %w", hostPort, err)
			}
			defer c.Close()

			w := sdkworker.New(c, taskQueue, sdkworker.Options{})
			worker.RegisterAll(w, evaluator, events.NewNoOpEventSink())

			slog.Info("worker starting", "task_queue", taskQueue, "namespace", namespace)
			return w.Run(sdkworker.InterruptCh())
		},
	}

	cmd.Flags().StringVar(&hostPort, "temporal-address", client.DefaultHostPort, "Temporal frontend address")
	cmd.Flags().StringVar(&namespace, "temporal-namespace", client.DefaultNamespace, "Temporal namespace")
	cmd.Flags().StringVar(&taskQueue, "task-queue", defaultTaskQueue, "task queue to poll")
	return cmd
}

func newSimulateCmd(flags *rootFlags) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run matched structured/freeform sample pipelines locally",
		Long: `simulate evaluates matched pipeline pairs over a built-in sample
catalog without Temporal: the same facts flow through the same agent chain
once as structured JSON and once as freeform prose, and both rollups are
printed for comparison.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluator, closeStore, err := buildEvaluator(flags)
			if err != nil {
				return err
			}
			defer closeStore() //nolint:errcheck // best-effort shutdown

			runner := simulator.NewRunner(evaluator, slog.Default())
			results, err := runner.RunBatch(cmd.Context(), batch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 1, "number of pipeline pairs to run")
	return cmd
}

func newRecentCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent pipeline rollups from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluator, closeStore, err := buildEvaluator(flags)
			if err != nil {
				return err
			}
			defer closeStore() //nolint:errcheck // best-effort shutdown

			rollups, err := evaluator.RecentPipelines(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rollups)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum rollups to return")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}

// temporalLogger adapts slog to the Temporal SDK's logger interface.
type temporalLogger struct{ logger *slog.Logger }

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger.With("component", "temporal")}
}

func (l *temporalLogger) Debug(msg string, keyvals ...any) { l.logger.Debug(msg, keyvals...) }
func (l *temporalLogger) Info(msg string, keyvals ...any)  { l.logger.Info(msg, keyvals...) }
func (l *temporalLogger) Warn(msg string, keyvals ...any)  { l.logger.Warn(msg, keyvals...) }
func (l *temporalLogger) Error(msg string, keyvals ...any) { l.logger.Error(msg, keyvals...) }
