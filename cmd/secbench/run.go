package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/secbench/internal/eval"
	"github.com/stellarlinkco/secbench/internal/metrics"
	"github.com/stellarlinkco/secbench/internal/store"
)

type runOptions struct {
	datasetID   string
	modelID     string
	providerKey string
	owner       string
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run one evaluation of a dataset against a model",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.datasetID, "dataset", "", "dataset id")
	cmd.Flags().StringVar(&opts.modelID, "model", "", "model id")
	cmd.Flags().StringVar(&opts.providerKey, "provider-key", "", "provider api key (overrides config)")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "owner recorded on the test")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runEvaluation(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	str, err := st.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = str.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataset, err := str.GetDataset(ctx, opts.datasetID)
	if err != nil {
		return fmt.Errorf("secbench: load dataset: %w", err)
	}
	model, err := str.GetModel(ctx, opts.modelID)
	if err != nil {
		return fmt.Errorf("secbench: load model: %w", err)
	}
	questions, err := str.QuestionsByDataset(ctx, dataset.ID)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("secbench: dataset %s has no questions", dataset.ID)
	}

	client, err := st.providerClient(model, opts.providerKey)
	if err != nil {
		return err
	}

	test := &store.Test{
		DatasetID: dataset.ID,
		ModelID:   model.ID,
		Owner:     opts.owner,
	}
	if err := str.CreateTest(ctx, test); err != nil {
		return err
	}

	engine := eval.NewEngine(str, st.cfg)
	summary, err := engine.RunEvaluation(ctx, test, questions, model, client)
	if err != nil {
		_ = str.DeleteTest(ctx, test.ID)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "test %s: %s on %s\n", test.ID, dataset.Name, model.ModelID)
	printSummary(out, summary)
	return nil
}

func printSummary(out io.Writer, s *metrics.Summary) {
	fmt.Fprintf(out, "  questions: %d (failed queries: %d)\n", s.TotalQuestions, s.FailedQueries)
	fmt.Fprintf(out, "  accuracy:  %.2f%% (%d correct, 95%% CI %.2f-%.2f)\n",
		s.AccuracyPercentage, s.CorrectAnswers, s.ConfidenceIntervalLow, s.ConfidenceIntervalHigh)
	fmt.Fprintf(out, "  macro:     precision %.3f  recall %.3f  f1 %.3f\n", s.PrecisionAvg, s.RecallAvg, s.F1Avg)

	keys := make([]string, 0, len(s.AnswerDistribution))
	for k := range s.AnswerDistribution {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "  answers:  ")
	for _, k := range keys {
		fmt.Fprintf(out, " %s=%d", k, s.AnswerDistribution[k])
	}
	fmt.Fprintln(out)
}
