package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/secbench/internal/eval"
	"github.com/stellarlinkco/secbench/internal/store"
)

func newRecomputeCmd(st *cliState) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "recompute [<test-id>]",
		Short:   "Rebuild cached metrics from stored result rows",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("secbench: --all and a test id are mutually exclusive")
			case !all && len(args) == 0:
				return errors.New("secbench: specify a test id or --all")
			}

			str, err := st.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = str.Close() }()

			ctx := context.Background()
			engine := eval.NewEngine(str, st.cfg)

			ids := args
			if all {
				tests, err := str.ListTests(ctx, store.TestFilter{Limit: -1})
				if err != nil {
					return err
				}
				ids = make([]string, 0, len(tests))
				for _, t := range tests {
					ids = append(ids, t.ID)
				}
			}

			for _, id := range ids {
				summary, err := engine.RecomputeMetrics(ctx, id)
				if err != nil {
					return fmt.Errorf("secbench: recompute %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "test %s: accuracy %.2f%% (%d/%d, %d failed)\n",
					id, summary.AccuracyPercentage, summary.CorrectAnswers,
					summary.TotalQuestions-summary.FailedQueries, summary.FailedQueries)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "recompute every stored test")
	return cmd
}
