package parser

import (
	"strings"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/sniffer"
)

// headerScanRows bounds how far down a sheet the header row is searched.
const headerScanRows = 30

var mfLongColumns = []column{
	{field: taxtable.FieldAccount, keywords: []string{"勘定科目"}, required: true},
	{field: taxtable.FieldTaxLabel, keywords: []string{"税区分"}, required: true},
	{field: taxtable.FieldAmount, keywords: []string{"金額", "税込金額", "合計金額", "合計"}, required: true},
	{field: taxtable.FieldTaxableAmount, keywords: []string{"課税対象額"}},
	{field: taxtable.FieldTaxAmount, keywords: []string{"消費税額"}},
	{field: taxtable.FieldSide, keywords: []string{"取引区分", "売上仕入区分"}},
}

var mfAccountColumn = []column{
	{field: taxtable.FieldAccount, keywords: []string{"勘定科目"}, required: true},
}

// taxColumnMarkers identify wide-layout columns that hold one tax
// classification each, e.g. "課税売上 10%".
var taxColumnMarkers = []string{"%", "課税", "課対", "非課", "不課税", "対象外", "輸出", "免税", "売上", "仕入"}

// MoneyForwardParser reads the マネーフォワード 勘定科目別税区分集計表 workbook.
// Two layouts are supported: long (one row per account and tax
// classification) and wide (one column per tax classification).
type MoneyForwardParser struct{}

// NewMoneyForwardParser creates a マネーフォワード parser.
func NewMoneyForwardParser() *MoneyForwardParser {
	return &MoneyForwardParser{}
}

func (p *MoneyForwardParser) Vendor() taxtable.Vendor {
	return taxtable.VendorMoneyForward
}

func (p *MoneyForwardParser) Accepts(kind taxtable.DocumentKind) bool {
	return kind == taxtable.KindSpreadsheet
}

func (p *MoneyForwardParser) Parse(doc *Document) (taxtable.Outcome[[]taxtable.RawLineRecord], error) {
	var out taxtable.Outcome[[]taxtable.RawLineRecord]
	if doc.Empty() {
		out.Diagnostics.Warn(taxtable.StageParse, taxtable.SourceRef{}, "", "ブックにデータがありません")
		return out, nil
	}

	found := false
	for _, g := range doc.Grids {
		start, hdr, wide, ok := p.findHeader(g)
		if !ok {
			continue
		}
		found = true
		if wide != nil {
			p.parseWide(g, start, hdr, wide, &out)
		} else {
			p.parseLong(g, start, hdr, &out)
		}
	}

	if !found {
		return out, taxtable.NewParseError(taxtable.ErrInvalidStructure,
			"マネーフォワードの集計表の見出し行（勘定科目・税区分・金額）が見つかりません", nil)
	}
	if len(out.Value) == 0 {
		out.Diagnostics.Warn(taxtable.StageParse, taxtable.SourceRef{}, "", "明細行が見つかりませんでした")
	}
	return out, nil
}

// findHeader locates the header row of a sheet. wide is non-nil for the
// wide layout and maps column index to the printed tax classification.
func (p *MoneyForwardParser) findHeader(g Grid) (int, header, map[int]string, bool) {
	for i, row := range g.Rows {
		if i >= headerScanRows {
			break
		}
		if h, ok := matchHeader(row.Cells, mfLongColumns); ok {
			return i, h, nil, true
		}
		h, ok := matchHeader(row.Cells, mfAccountColumn)
		if !ok {
			continue
		}
		acc, _ := h.index(taxtable.FieldAccount)
		wide := make(map[int]string)
		for j, cell := range row.Cells {
			if j == acc || cell == "" {
				continue
			}
			f := sniffer.Fold(cell)
			if strings.Contains(f, "合計") || f == "計" {
				continue
			}
			for _, m := range taxColumnMarkers {
				if strings.Contains(f, m) {
					wide[j] = cell
					break
				}
			}
		}
		if len(wide) > 0 {
			return i, h, wide, true
		}
	}
	return 0, header{}, nil, false
}

func (p *MoneyForwardParser) parseLong(g Grid, start int, hdr header, out *taxtable.Outcome[[]taxtable.RawLineRecord]) {
	acc, _ := hdr.index(taxtable.FieldAccount)
	section := ""
	lastAccount := ""
	for _, row := range g.Rows[start+1:] {
		if isBlank(row.Cells) || isTotalRow(row.Cells) {
			continue
		}
		if _, ok := matchHeader(row.Cells, mfLongColumns); ok {
			continue
		}
		if title, ok := sectionTitle(row.Cells); ok && cell(row.Cells, acc) == title {
			section, lastAccount = title, ""
			continue
		}

		rec := newRecord(row.Ref, section)
		for _, col := range mfLongColumns {
			if i, ok := hdr.index(col.field); ok {
				if v := cell(row.Cells, i); v != "" {
					rec.Set(col.field, v)
				}
			}
		}
		// merged account cells only carry the value in their first row
		account, ok := rec.Get(taxtable.FieldAccount)
		switch {
		case ok:
			lastAccount = account
		case lastAccount != "":
			rec.Set(taxtable.FieldAccount, lastAccount)
		}
		if _, ok := rec.Get(taxtable.FieldAmount); !ok && !hasDigit(row.Cells) {
			// label-only rows carry no amount to report
			continue
		}
		out.Value = append(out.Value, rec)
	}
}

func (p *MoneyForwardParser) parseWide(g Grid, start int, hdr header, wide map[int]string, out *taxtable.Outcome[[]taxtable.RawLineRecord]) {
	acc, _ := hdr.index(taxtable.FieldAccount)
	section := ""
	for _, row := range g.Rows[start+1:] {
		if isBlank(row.Cells) || isTotalRow(row.Cells) {
			continue
		}
		if title, ok := sectionTitle(row.Cells); ok && cell(row.Cells, acc) == title {
			section = title
			continue
		}
		account := cell(row.Cells, acc)
		for j := range row.Cells {
			label, ok := wide[j]
			if !ok {
				continue
			}
			v := cell(row.Cells, j)
			if isZeroCell(v) {
				continue
			}
			rec := newRecord(taxtable.SourceRef{Sheet: row.Ref.Sheet, Row: row.Ref.Row}, section)
			rec.Set(taxtable.FieldAccount, account)
			rec.Set(taxtable.FieldTaxLabel, label)
			rec.Set(taxtable.FieldAmount, v)
			out.Value = append(out.Value, rec)
		}
	}
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func isZeroCell(v string) bool {
	switch sniffer.Fold(v) {
	case "", "0", "-", "ー", "―":
		return true
	}
	return false
}
