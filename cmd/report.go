package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lifecycle-cli/internal/model"
	"github.com/sells-group/lifecycle-cli/internal/store"
)

var (
	reportBasis    string
	reportCustomer string
	reportOutDir   string
)

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Generate a lifecycle report for an imported job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := initEngine()
		if err != nil {
			return err
		}
		orch := initOrchestrator(st, engine)

		basis := reportBasis
		if basis == "" {
			basis = cfg.Report.DefaultBasis
		}
		customer := reportCustomer
		if customer == "" {
			if job, err := st.GetJob(ctx, jobID); err == nil {
				customer = job.CustomerName
			}
		}

		result, err := orch.GenerateReport(ctx, jobID, model.ReportOptions{
			EOLYearBasis: basis,
			CustomerName: customer,
		})
		if err != nil {
			return eris.Wrapf(err, "generate report for job %s", jobID)
		}

		outPath := filepath.Join(reportOutDir, result.Filename)
		if err := os.WriteFile(outPath, result.Payload, 0o644); err != nil {
			return eris.Wrapf(err, "write report %s", outPath)
		}

		zap.L().Info("report written",
			zap.String("report_id", result.ReportID),
			zap.String("status", string(result.Status)),
			zap.String("path", outPath),
			zap.Int("products", result.Statistics.TotalProducts),
			zap.Int("critical_risk", result.Statistics.CriticalRiskCount),
		)
		fmt.Println(outPath)
		return nil
	},
}

var (
	reportsJobID  string
	reportsStatus string
	reportsLimit  int
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List generated reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reports, err := st.ListReports(ctx, store.ReportFilter{
			JobID:  reportsJobID,
			Status: model.ReportStatus(reportsStatus),
			Limit:  reportsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REPORT ID\tJOB ID\tSTATUS\tPROGRESS\tFILENAME")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", r.ID, r.JobID, r.Status, r.Progress, r.Filename)
		}
		return w.Flush()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportBasis, "basis", "", "EOL year basis: lastDayOfSupport or endOfSale (default from config)")
	reportCmd.Flags().StringVar(&reportCustomer, "customer", "", "customer name on the summary sheet (default from job)")
	reportCmd.Flags().StringVar(&reportOutDir, "out", ".", "output directory for the XLSX file")
	rootCmd.AddCommand(reportCmd)

	reportsCmd.Flags().StringVar(&reportsJobID, "job", "", "filter by job ID")
	reportsCmd.Flags().StringVar(&reportsStatus, "status", "", "filter by status")
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 50, "maximum reports to list")
	rootCmd.AddCommand(reportsCmd)
}
