package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/secbench/internal/eval"
	"github.com/stellarlinkco/secbench/internal/metrics"
)

type benchOptions struct {
	datasetID   string
	modelID     string
	providerKey string
	caps        []int
}

// newBenchCmd sweeps a batch over several explicit concurrency caps without
// persisting anything, to find a workable setting for a provider.
func newBenchCmd(st *cliState) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:     "bench",
		Short:   "Time one dataset batch under different concurrency caps",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.datasetID, "dataset", "", "dataset id")
	cmd.Flags().StringVar(&opts.modelID, "model", "", "model id")
	cmd.Flags().StringVar(&opts.providerKey, "provider-key", "", "provider api key (overrides config)")
	cmd.Flags().IntSliceVar(&opts.caps, "caps", []int{1, 3, 5}, "concurrency caps to sweep")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runBench(cmd *cobra.Command, st *cliState, opts *benchOptions) error {
	str, err := st.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = str.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := str.GetModel(ctx, opts.modelID)
	if err != nil {
		return fmt.Errorf("secbench: load model: %w", err)
	}
	questions, err := str.QuestionsByDataset(ctx, opts.datasetID)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("secbench: dataset %s has no questions", opts.datasetID)
	}

	client, err := st.providerClient(model, opts.providerKey)
	if err != nil {
		return err
	}

	exec := eval.NewExecutor(client)
	if st.cfg.Evaluation.MaxAttempts > 0 {
		exec.MaxAttempts = st.cfg.Evaluation.MaxAttempts
	}
	if st.cfg.Evaluation.InitialDelay > 0 {
		exec.InitialDelay = st.cfg.Evaluation.InitialDelay
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAP\tELAPSED\tQUESTIONS\tFAILED")
	for _, c := range opts.caps {
		if c <= 0 {
			return fmt.Errorf("secbench: invalid concurrency cap %d", c)
		}

		sched := &eval.Scheduler{
			FreeConcurrency: c,
			PaidConcurrency: c,
			FreePacing:      st.cfg.Evaluation.FreePacing,
		}

		start := time.Now()
		outcomes, err := sched.Run(ctx, exec, model, questions)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		failed := 0
		for _, out := range outcomes {
			if out.Answer == metrics.Failed {
				failed++
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", c, elapsed.Round(time.Millisecond), len(outcomes), failed)
	}
	return w.Flush()
}
