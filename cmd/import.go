package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lifecycle-cli/internal/fetcher"
)

var importCustomer string

var importCmd = &cobra.Command{
	Use:   "import <file-or-url>",
	Short: "Import a customer product list (XLSX or CSV) as a new job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := args[0]
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			local, err := downloadProductList(ctx, path)
			if err != nil {
				return err
			}
			path = local
		}

		products, err := fetcher.ReadProducts(ctx, path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		job, err := st.CreateJob(ctx, importCustomer)
		if err != nil {
			return eris.Wrap(err, "create job")
		}
		if err := st.AddProducts(ctx, job.ID, products); err != nil {
			return eris.Wrapf(err, "add products to job %s", job.ID)
		}

		zap.L().Info("import complete",
			zap.String("job_id", job.ID),
			zap.String("customer", importCustomer),
			zap.Int("products", len(products)),
			zap.String("file", args[0]),
		)
		fmt.Println(job.ID)
		return nil
	},
}

// downloadProductList fetches a remote product list into a temp file,
// keeping the extension so the parser can dispatch on it.
func downloadProductList(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "parse url %s", rawURL)
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("products-%d%s", time.Now().UnixNano(), filepath.Ext(u.Path)))

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RateLimiters: fetcher.DefaultRateLimiters()})
	n, err := f.DownloadToFile(ctx, rawURL, path)
	if err != nil {
		return "", eris.Wrapf(err, "download %s", rawURL)
	}
	zap.L().Info("product list downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))
	return path, nil
}

func init() {
	importCmd.Flags().StringVar(&importCustomer, "customer", "", "customer name for the job")
	rootCmd.AddCommand(importCmd)
}
