package fetcher

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

func TestReadProductsCSV(t *testing.T) {
	csv := strings.Join([]string{
		"Part Number,Vendor,Description,QTY",
		"MR33-HW,Cisco Meraki,Access point,12",
		"FG-60F,Fortinet,Firewall,",
		",Cisco,,3",
		"WS-C2960X-48TS-L,Cisco,Switch,not-a-number",
	}, "\n")

	products, err := ReadProductsCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, model.Product{
		ProductID:    "MR33-HW",
		Manufacturer: "Cisco Meraki",
		Description:  "Access point",
		Quantity:     12,
		Index:        0,
	}, products[0])

	// Missing and unparseable quantities default to 1; the row with no
	// product ID is dropped and indexes stay dense.
	assert.Equal(t, 1, products[1].Quantity)
	assert.Equal(t, "WS-C2960X-48TS-L", products[2].ProductID)
	assert.Equal(t, 1, products[2].Quantity)
	assert.Equal(t, 2, products[2].Index)
}

func TestReadProductsCSV_NoIDColumn(t *testing.T) {
	csv := "Vendor,QTY\nCisco,3\n"
	_, err := ReadProductsCSV(context.Background(), strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no product ID column")
}

func TestReadProductsCSV_NoRows(t *testing.T) {
	csv := "Product ID,Manufacturer\n,\n"
	_, err := ReadProductsCSV(context.Background(), strings.NewReader(csv))
	require.Error(t, err)
}

func TestReadProductsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Products")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"Product ID", "Manufacturer", "Description", "Quantity"},
		{"MS120-8LP-HW", "Cisco Meraki", "Switch", "4"},
		{"PA-220", "Palo Alto", "Firewall", "2"},
	} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().Value = v
		}
	}
	require.NoError(t, f.Save(path))

	products, err := ReadProducts(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "MS120-8LP-HW", products[0].ProductID)
	assert.Equal(t, 4, products[0].Quantity)
	assert.Equal(t, "PA-220", products[1].ProductID)
	assert.Equal(t, 1, products[1].Index)
}

func TestReadProducts_UnsupportedExtension(t *testing.T) {
	_, err := ReadProducts(context.Background(), "products.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
