package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// productColumns holds the resolved column index for each product
// attribute. Only the product ID column is mandatory; -1 marks an
// absent optional column.
type productColumns struct {
	id           int
	manufacturer int
	description  int
	quantity     int
}

var productHeaderAliases = map[string]string{
	"product id":    "id",
	"product_id":    "id",
	"productid":     "id",
	"part number":   "id",
	"part_number":   "id",
	"model":         "id",
	"sku":           "id",
	"manufacturer":  "manufacturer",
	"vendor":        "manufacturer",
	"make":          "manufacturer",
	"description":   "description",
	"product name":  "description",
	"quantity":      "quantity",
	"qty":           "quantity",
	"count":         "quantity",
	"units":         "quantity",
}

func mapProductColumns(header []string) (productColumns, error) {
	cols := productColumns{id: -1, manufacturer: -1, description: -1, quantity: -1}
	for i, h := range header {
		switch productHeaderAliases[strings.ToLower(strings.TrimSpace(h))] {
		case "id":
			if cols.id == -1 {
				cols.id = i
			}
		case "manufacturer":
			cols.manufacturer = i
		case "description":
			cols.description = i
		case "quantity":
			cols.quantity = i
		}
	}
	if cols.id == -1 {
		return cols, eris.Errorf("products: no product ID column in header %v", header)
	}
	return cols, nil
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// rowProduct maps one data row. Rows with an empty product ID are
// skipped; a missing or unparseable quantity defaults to 1.
func rowProduct(cols productColumns, row []string, index int) (model.Product, bool) {
	id := cellAt(row, cols.id)
	if id == "" {
		return model.Product{}, false
	}
	qty := 1
	if n, err := strconv.Atoi(cellAt(row, cols.quantity)); err == nil && n > 0 {
		qty = n
	}
	return model.Product{
		ProductID:    id,
		Manufacturer: cellAt(row, cols.manufacturer),
		Description:  cellAt(row, cols.description),
		Quantity:     qty,
		Index:        index,
	}, true
}

func rowsToProducts(header []string, rows [][]string) ([]model.Product, error) {
	cols, err := mapProductColumns(header)
	if err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		if p, ok := rowProduct(cols, row, len(products)); ok {
			products = append(products, p)
		}
	}
	if len(products) == 0 {
		return nil, eris.New("products: no rows with a product ID")
	}
	return products, nil
}

// ReadProductsXLSX parses a customer product list from the first sheet
// of an XLSX workbook. The first row is the header.
func ReadProductsXLSX(path string) ([]model.Product, error) {
	headerCh := make(chan []string, 1)
	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1, HeaderCh: headerCh})
	if err != nil {
		return nil, err
	}
	select {
	case header := <-headerCh:
		return rowsToProducts(header, rows)
	default:
		return nil, eris.Errorf("products: %s is empty", path)
	}
}

// ReadProductsCSV parses a customer product list from CSV. The first
// row is the header.
func ReadProductsCSV(ctx context.Context, r io.Reader) ([]model.Product, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	select {
	case header := <-headerCh:
		return rowsToProducts(header, rows)
	default:
		return nil, eris.New("products: empty CSV input")
	}
}

// ReadProducts dispatches on the file extension. XLSX and CSV product
// lists are supported.
func ReadProducts(ctx context.Context, path string) ([]model.Product, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadProductsXLSX(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "products: open %s", path)
		}
		defer f.Close()
		return ReadProductsCSV(ctx, f)
	default:
		return nil, eris.Errorf("products: unsupported file type %s", filepath.Ext(path))
	}
}
