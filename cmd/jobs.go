package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List imported jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(ctx, jobsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tCUSTOMER\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", j.ID, j.CustomerName, j.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}
