package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/secbench/internal/store"
)

func newTestsCmd(st *cliState) *cobra.Command {
	var datasetID, modelID, owner string
	var limit int

	cmd := &cobra.Command{
		Use:     "tests",
		Short:   "List stored tests with their summary metrics",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigPreRun(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			str, err := st.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = str.Close() }()

			tests, err := str.ListTests(context.Background(), store.TestFilter{
				DatasetID: datasetID,
				ModelID:   modelID,
				Owner:     owner,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATASET\tMODEL\tSTARTED\tACCURACY\tFAILED\tCOMPLETE")
			for _, t := range tests {
				complete := "no"
				if !t.CompletedAt.IsZero() {
					complete = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f%%\t%d\t%s\n",
					t.ID, t.DatasetID, t.ModelID,
					t.StartedAt.Format("2006-01-02 15:04"),
					t.AccuracyPercentage, t.FailedQueries, complete)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&datasetID, "dataset", "", "filter by dataset id")
	cmd.Flags().StringVar(&modelID, "model", "", "filter by model id")
	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner")
	cmd.Flags().IntVar(&limit, "limit", 0, "max tests to list (0 = default page, -1 = all)")
	return cmd
}
