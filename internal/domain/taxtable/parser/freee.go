package parser

import (
	"sort"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

var freeeColumns = []column{
	{field: taxtable.FieldAccount, keywords: []string{"勘定科目"}, required: true},
	{field: taxtable.FieldTaxLabel, keywords: []string{"税区分"}, required: true},
	{field: taxtable.FieldAmount, keywords: []string{"金額", "税込金額", "取引金額"}, required: true},
	{field: taxtable.FieldTaxAmount, keywords: []string{"消費税額", "税額"}},
	{field: taxtable.FieldTaxableAmount, keywords: []string{"課税対象額"}},
}

// FreeeParser reads the freee 消費税区分別表 PDF: one table of
// account, tax classification and amounts, repeated across pages.
type FreeeParser struct{}

// NewFreeeParser creates a freee parser.
func NewFreeeParser() *FreeeParser {
	return &FreeeParser{}
}

func (p *FreeeParser) Vendor() taxtable.Vendor {
	return taxtable.VendorFreee
}

func (p *FreeeParser) Accepts(kind taxtable.DocumentKind) bool {
	return kind == taxtable.KindPDF
}

func (p *FreeeParser) Parse(doc *Document) (taxtable.Outcome[[]taxtable.RawLineRecord], error) {
	var out taxtable.Outcome[[]taxtable.RawLineRecord]
	if doc.Empty() {
		out.Diagnostics.Warn(taxtable.StageParse, taxtable.SourceRef{}, "", "文書にデータ行がありません")
		return out, nil
	}

	var (
		hdr     header
		found   bool
		numeric []string
		section string
	)
	for _, g := range doc.Grids {
		for _, row := range g.Rows {
			if isBlank(row.Cells) || isPageMarker(row.Cells) {
				continue
			}
			cells := cellsOf(row)
			if h, ok := matchHeader(cells, freeeColumns); ok {
				if !found {
					hdr, found = h, true
					numeric = numericFields(hdr)
				}
				continue
			}
			if !found {
				continue
			}
			if isTotalRow(cells) {
				continue
			}
			if title, ok := sectionTitle(cells); ok {
				section = title
				continue
			}

			account, label, amounts := splitPrinted(cells, len(numeric))
			if account == "" {
				if hasDigit(row.Cells) {
					out.Diagnostics.Warn(taxtable.StageParse, row.Ref, "", "列数が不足しているため読み飛ばしました: %s", row.Text())
				}
				continue
			}

			rec := newRecord(row.Ref, section)
			rec.Set(taxtable.FieldAccount, account)
			rec.Set(taxtable.FieldTaxLabel, label)
			for i, a := range amounts {
				rec.Set(numeric[i], a)
			}
			out.Value = append(out.Value, rec)
		}
	}

	if !found {
		return out, taxtable.NewParseError(taxtable.ErrInvalidStructure,
			"freee の消費税区分別表の見出し行（勘定科目・税区分・金額）が見つかりません", nil)
	}
	if len(out.Value) == 0 {
		out.Diagnostics.Warn(taxtable.StageParse, taxtable.SourceRef{}, "", "明細行が見つかりませんでした")
	}
	return out, nil
}

// numericFields lists the amount-like columns of a header in printed order.
func numericFields(h header) []string {
	var fields []string
	for _, f := range []string{taxtable.FieldAmount, taxtable.FieldTaxAmount, taxtable.FieldTaxableAmount} {
		if _, ok := h.index(f); ok {
			fields = append(fields, f)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		a, _ := h.index(fields[i])
		b, _ := h.index(fields[j])
		return a < b
	})
	return fields
}
