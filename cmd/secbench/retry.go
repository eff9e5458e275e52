package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/secbench/internal/eval"
)

func newRetryCmd(st *cliState) *cobra.Command {
	var providerKey string

	cmd := &cobra.Command{
		Use:     "retry <test-id>",
		Short:   "Re-run the failed questions of a test",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			str, err := st.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = str.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			test, err := str.GetTest(ctx, args[0])
			if err != nil {
				return fmt.Errorf("secbench: load test: %w", err)
			}
			model, err := str.GetModel(ctx, test.ModelID)
			if err != nil {
				return fmt.Errorf("secbench: load model: %w", err)
			}
			client, err := st.providerClient(model, providerKey)
			if err != nil {
				return err
			}

			engine := eval.NewEngine(str, st.cfg)
			retried, err := engine.RetryFailed(ctx, test.ID, client)
			if err != nil {
				return err
			}
			if retried == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "test %s: nothing to retry\n", test.ID)
				return nil
			}

			summary, err := engine.RecomputeMetrics(ctx, test.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test %s: retried %d questions\n", test.ID, retried)
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerKey, "provider-key", "", "provider api key (overrides config)")
	return cmd
}
