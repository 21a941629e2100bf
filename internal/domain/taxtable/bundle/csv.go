package bundle

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// Placeholder replaces characters that Shift_JIS cannot represent.
const Placeholder = '〓'

// AccountSeparator joins account names in the detail CSV.
const AccountSeparator = "・"

type detailRow struct {
	Category string `csv:"税区分"`
	Count    int    `csv:"件数"`
	Taxable  int64  `csv:"課税対象額"`
	Accounts string `csv:"勘定科目"`
}

type summaryRow struct {
	Name    string `csv:"区分"`
	Count   int    `csv:"件数"`
	Taxable int64  `csv:"課税対象額"`
}

func detailRows(s taxtable.SideSummary) []*detailRow {
	rows := make([]*detailRow, 0, len(s.Categories)+1)
	for _, c := range s.Categories {
		rows = append(rows, &detailRow{
			Category: c.Label,
			Count:    c.Count,
			Taxable:  c.TaxableAmount,
			Accounts: strings.Join(c.Accounts, AccountSeparator),
		})
	}
	return append(rows, &detailRow{Category: "合計", Count: s.Count, Taxable: s.TaxableTotal})
}

func summaryRows(res taxtable.AggregationResult) []*summaryRow {
	var rows []*summaryRow
	for _, s := range []taxtable.SideSummary{res.Sales, res.Purchases} {
		for _, c := range s.Categories {
			rows = append(rows, &summaryRow{
				Name:    s.Side.Label() + " " + c.Label,
				Count:   c.Count,
				Taxable: c.TaxableAmount,
			})
		}
		rows = append(rows, &summaryRow{Name: s.Side.Label() + " 合計", Count: s.Count, Taxable: s.TaxableTotal})
	}
	return append(rows,
		&summaryRow{Name: "課税売上合計", Count: res.Sales.Count, Taxable: res.Sales.TaxableTotal},
		&summaryRow{Name: "課税仕入合計", Count: res.Purchases.Count, Taxable: res.Purchases.TaxableTotal},
	)
}

// renderCSV marshals rows with CRLF line endings.
func renderCSV(rows any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(w)); err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return buf.Bytes(), nil
}

// toUTF8BOM prefixes UTF-8 text with a byte order mark.
func toUTF8BOM(data []byte) ([]byte, error) {
	out, err := unicode.UTF8BOM.NewEncoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encode utf-8: %w", err)
	}
	return out, nil
}

// toShiftJIS encodes UTF-8 text as Shift_JIS. Callers substitute free text
// first, so a failure here means a fixed label is not representable.
func toShiftJIS(data []byte) ([]byte, error) {
	out, err := japanese.ShiftJIS.NewEncoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("encode shift_jis: %w", err)
	}
	return out, nil
}

// sjisSafe replaces every rune of s that Shift_JIS cannot encode with
// Placeholder and returns the replaced runes in order of appearance.
func sjisSafe(s string) (string, []rune) {
	enc := japanese.ShiftJIS.NewEncoder()
	var (
		b       strings.Builder
		missing []rune
	)
	for _, r := range s {
		if _, err := enc.String(string(r)); err != nil {
			b.WriteRune(Placeholder)
			missing = append(missing, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), missing
}
