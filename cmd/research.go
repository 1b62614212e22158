package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

var (
	researchManufacturer string
	researchDescription  string
)

var researchCmd = &cobra.Command{
	Use:   "research <product-id>",
	Short: "Research lifecycle dates for a single product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		engine, err := initEngine()
		if err != nil {
			return err
		}

		product := model.Product{
			ProductID:    args[0],
			Manufacturer: researchManufacturer,
			Description:  researchDescription,
			Quantity:     1,
		}

		record, err := engine.PerformResearch(ctx, product)
		if err != nil {
			return eris.Wrapf(err, "research %s", product.ProductID)
		}

		zap.L().Info("research complete",
			zap.String("product_id", record.ProductID),
			zap.Int("overall_confidence", record.OverallConfidence),
			zap.String("research_error", string(record.ResearchError)),
		)

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal record")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchManufacturer, "manufacturer", "", "product manufacturer")
	researchCmd.Flags().StringVar(&researchDescription, "description", "", "product description")
	rootCmd.AddCommand(researchCmd)
}
