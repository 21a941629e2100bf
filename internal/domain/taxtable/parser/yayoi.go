package parser

import (
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// FieldInvoiceClass holds the 請求書区分 (qualified invoice, transitional
// measure) column printed by newer 弥生 versions.
const FieldInvoiceClass = "invoice_class"

var yayoiColumns = []column{
	{field: taxtable.FieldAccount, keywords: []string{"勘定科目"}, required: true},
	{field: taxtable.FieldTaxLabel, keywords: []string{"税区分"}, required: true},
	{field: FieldInvoiceClass, keywords: []string{"請求書区分"}},
	{field: taxtable.FieldAmount, keywords: []string{"金額", "税込金額", "税抜金額"}, required: true},
	{field: taxtable.FieldTaxAmount, keywords: []string{"消費税額", "税額"}},
}

// YayoiParser reads the 弥生 勘定科目別税区分表 PDF. The table is split into
// sections (売上, 仕入 ...) whose heading lines carry the transaction side.
type YayoiParser struct{}

// NewYayoiParser creates a 弥生 parser.
func NewYayoiParser() *YayoiParser {
	return &YayoiParser{}
}

func (p *YayoiParser) Vendor() taxtable.Vendor {
	return taxtable.VendorYayoi
}

func (p *YayoiParser) Accepts(kind taxtable.DocumentKind) bool {
	return kind == taxtable.KindPDF
}

func (p *YayoiParser) Parse(doc *Document) (taxtable.Outcome[[]taxtable.RawLineRecord], error) {
	var out taxtable.Outcome[[]taxtable.RawLineRecord]
	if doc.Empty() {
		out.Diagnostics.Warn(taxtable.StageParse, taxtable.SourceRef{}, "", "文書にデータ行がありません")
		return out, nil
	}

	var (
		hdr     header
		found   bool
		section string
	)
	for _, g := range doc.Grids {
		for _, row := range g.Rows {
			if isBlank(row.Cells) || isPageMarker(row.Cells) {
				continue
			}
			cells := cellsOf(row)
			if h, ok := matchHeader(cells, yayoiColumns); ok {
				if !found {
					hdr, found = h, true
				}
				continue
			}
			// headings may precede the first table header
			if title, ok := sectionTitle(cells); ok {
				section = title
				continue
			}
			if !found || isTotalRow(cells) {
				continue
			}
			row.Cells = cells

			rec, ok := p.record(row, hdr, section)
			if !ok {
				if hasDigit(row.Cells) {
					out.Diagnostics.Warn(taxtable.StageParse, row.Ref, "", "列数が不足しているため読み飛ばしました: %s", row.Text())
				}
				continue
			}
			out.Value = append(out.Value, rec)
		}
	}

	if !found {
		return out, taxtable.NewParseError(taxtable.ErrInvalidStructure,
			"弥生の勘定科目別税区分表の見出し行（勘定科目・税区分・金額）が見つかりません", nil)
	}
	if len(out.Value) == 0 {
		out.Diagnostics.Warn(taxtable.StageParse, taxtable.SourceRef{}, "", "明細行が見つかりませんでした")
	}
	return out, nil
}

// record maps a row by column position when the text layer kept the cell
// boundaries, and falls back to account/label/amount splitting otherwise.
func (p *YayoiParser) record(row Row, hdr header, section string) (taxtable.RawLineRecord, bool) {
	rec := newRecord(row.Ref, section)
	if len(row.Cells) == hdr.width {
		for _, col := range yayoiColumns {
			if i, ok := hdr.index(col.field); ok && row.Cells[i] != "" {
				rec.Set(col.field, row.Cells[i])
			}
		}
		_, hasAccount := rec.Get(taxtable.FieldAccount)
		return rec, hasAccount
	}

	numeric := numericFields(hdr)
	account, label, amounts := splitPrinted(row.Cells, len(numeric))
	if account == "" {
		return rec, false
	}
	rec.Set(taxtable.FieldAccount, account)
	rec.Set(taxtable.FieldTaxLabel, label)
	for i, a := range amounts {
		rec.Set(numeric[i], a)
	}
	return rec, true
}
