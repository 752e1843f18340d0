package reconcile_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/billing-engine/generic"
	"github.com/warp/billing-engine/reconcile"
)

func sampleStatement(t *testing.T) *reconcile.Statement {
	t.Helper()
	return reconcileOctober(t,
		[]generic.Voucher{
			incomeVoucher("V100", oct(5), "1180"),
			incomeVoucher("V200", oct(7), "500"),
		},
		[]generic.Voucher{receivableVoucher("V100", oct(5), "1180")},
	)
}

func TestTable_ColumnsMatchMergedRows(t *testing.T) {
	table := sampleStatement(t).Table()

	require.Len(t, table, 4) // opening, 2 rows, closing
	assert.Equal(t, []string{"2026-10-01", "", "", "", "Opening Balance", "", "", "0.00 Dr"}, table[0])
	assert.Equal(t, []string{"2026-10-05", "V100", "Sales", "V100", "Water for A/101", "1180.00", "1180.00", "0.00 Dr"}, table[1])
	// V200 has no receivable leg: debit column blank, not zero
	assert.Equal(t, "", table[2][5])
	assert.Equal(t, "500.00", table[2][6])
	assert.Equal(t, "Closing Balance", table[3][4])
	assert.Equal(t, "500.00 Cr", table[3][7])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reconcile.WriteCSV(&buf, sampleStatement(t)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, reconcile.Header, records[0])
	assert.Equal(t, "V200", records[3][1])
}

func TestBuildStatementXLSX(t *testing.T) {
	data, err := reconcile.BuildStatementXLSX(sampleStatement(t))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("transactions", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Date", header)

	voucher, err := f.GetCellValue("transactions", "B3")
	require.NoError(t, err)
	assert.Equal(t, "V100", voucher)

	closing, err := f.GetCellValue("summary", "B8")
	require.NoError(t, err)
	assert.Equal(t, "500.00 Cr", closing)
}

func TestBuildStatementPDF(t *testing.T) {
	data, err := reconcile.BuildStatementPDF(sampleStatement(t))

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
