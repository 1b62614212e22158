package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// ReportData is the ordered output handed to a Writer: one record per
// requested product plus summary statistics. AtRisk runs parallel to
// Records.
type ReportData struct {
	Records     []model.LifecycleRecord
	AtRisk      []bool
	Statistics  model.Statistics
	Options     model.ReportOptions
	GeneratedAt time.Time
}

// Writer renders a finished report. The orchestrator does not care
// about the format; the XLSX implementation is the default.
type Writer interface {
	Write(data ReportData) (filename string, payload []byte, err error)
}

// XLSXWriter renders a lifecycle sheet and a summary sheet.
type XLSXWriter struct{}

// NewXLSXWriter creates an XLSX report writer.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

var lifecycleHeader = []string{
	"Product ID", "Manufacturer", "Description", "Quantity",
	"End of Sale", "EOS Confidence",
	"Last Day of Support", "LDoS Confidence",
	"End of SW Maintenance", "SW Maint Confidence",
	"End of Vulnerability Support", "Vuln Confidence",
	"Overall Confidence",
	"Vendor Sources", "Third-Party Sources", "Manual Sources",
	"Current Product", "At Risk", "Research Error",
}

func (w *XLSXWriter) Write(data ReportData) (string, []byte, error) {
	f := xlsx.NewFile()

	lifecycle, err := f.AddSheet("Lifecycle")
	if err != nil {
		return "", nil, eris.Wrap(err, "report: add lifecycle sheet")
	}
	writeRow(lifecycle, lifecycleHeader...)

	for i, rec := range data.Records {
		cells := []string{
			rec.ProductID,
			rec.Product.Manufacturer,
			rec.Product.Description,
			strconv.Itoa(rec.Product.Quantity),
		}
		for _, field := range model.Fields {
			fv := rec.FieldValueFor(field)
			cells = append(cells, fv.ISODate(), strconv.Itoa(fv.Confidence))
		}
		cells = append(cells,
			strconv.Itoa(rec.OverallConfidence),
			strconv.Itoa(rec.DataSourceCounts.VendorSite),
			strconv.Itoa(rec.DataSourceCounts.ThirdParty),
			strconv.Itoa(rec.DataSourceCounts.ManualEntry),
			yesNo(rec.IsCurrentProduct),
			yesNo(i < len(data.AtRisk) && data.AtRisk[i]),
			string(rec.ResearchError),
		)
		writeRow(lifecycle, cells...)
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return "", nil, eris.Wrap(err, "report: add summary sheet")
	}
	writeRow(summary, "Customer", data.Options.CustomerName)
	writeRow(summary, "Generated At", data.GeneratedAt.UTC().Format(time.RFC3339))
	writeRow(summary, "EOL Year Basis", string(data.Options.BasisField()))
	writeRow(summary, "Total Products", strconv.Itoa(data.Statistics.TotalProducts))
	writeRow(summary, "Total Quantity", strconv.Itoa(data.Statistics.TotalQuantity))
	writeRow(summary, "Critical Risk Count", strconv.Itoa(data.Statistics.CriticalRiskCount))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return "", nil, eris.Wrap(err, "report: serialize workbook")
	}

	filename := fmt.Sprintf("lifecycle_report_%s.xlsx", data.GeneratedAt.UTC().Format("2006-01-02"))
	return filename, buf.Bytes(), nil
}

func writeRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().Value = v
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
