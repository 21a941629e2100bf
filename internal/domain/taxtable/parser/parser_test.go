package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// pdfDoc builds a document the way the PDF text layer delivers it: one grid
// per page, one row per printed line.
func pdfDoc(pages ...[][]string) *Document {
	doc := &Document{Kind: taxtable.KindPDF}
	for p, lines := range pages {
		g := Grid{Page: p + 1}
		for i, cells := range lines {
			g.Rows = append(g.Rows, Row{
				Ref:   taxtable.SourceRef{Page: p + 1, Row: i + 1},
				Cells: cells,
			})
		}
		doc.Grids = append(doc.Grids, g)
	}
	return doc
}

func field(t *testing.T, rec taxtable.RawLineRecord, name string) string {
	t.Helper()
	v, ok := rec.Get(name)
	require.True(t, ok, "missing field %s in %+v", name, rec)
	return v
}

func TestFreeeParser(t *testing.T) {
	p := NewFreeeParser()

	t.Run("table across pages", func(t *testing.T) {
		doc := pdfDoc(
			[][]string{
				{"消費税区分別表"},
				{"株式会社サンプル"},
				{"勘 定 科 目", "税区分", "金額", "消費税額"},
				{"売上高", "課税売上10%", "1,100,000", "100,000"},
				{"売上高", "課税売上8%(軽)", "１０８，０００", "8,000"},
				{},
				{"合計", "", "1,208,000", "108,000"},
			},
			[][]string{
				{"勘定科目", "税区分", "金額", "消費税額"},
				{"仕入高", "課対仕入10%", "550,000", "50,000"},
				{"受取利息", "非課売上", "1,200"},
				{"1 / 2"},
			},
		)

		out, err := p.Parse(doc)
		require.NoError(t, err)
		require.Len(t, out.Value, 4)
		assert.Empty(t, out.Diagnostics)

		first := out.Value[0]
		assert.Equal(t, "売上高", field(t, first, taxtable.FieldAccount))
		assert.Equal(t, "課税売上10%", field(t, first, taxtable.FieldTaxLabel))
		assert.Equal(t, "1,100,000", field(t, first, taxtable.FieldAmount))
		assert.Equal(t, "100,000", field(t, first, taxtable.FieldTaxAmount))
		assert.Equal(t, taxtable.SourceRef{Page: 1, Row: 4}, first.Ref)

		assert.Equal(t, "１０８，０００", field(t, out.Value[1], taxtable.FieldAmount))
		assert.Equal(t, "仕入高", field(t, out.Value[2], taxtable.FieldAccount))
		assert.Equal(t, 2, out.Value[2].Ref.Page)

		last := out.Value[3]
		assert.Equal(t, "1,200", field(t, last, taxtable.FieldAmount))
		_, hasTax := last.Get(taxtable.FieldTaxAmount)
		assert.False(t, hasTax)
	})

	t.Run("merged text line", func(t *testing.T) {
		doc := pdfDoc([][]string{
			{"勘定科目 税区分 金額"},
			{"売上高 課税売上 10% 110,000"},
		})
		out, err := p.Parse(doc)
		require.NoError(t, err)
		require.Len(t, out.Value, 1)
		assert.Equal(t, "課税売上 10%", field(t, out.Value[0], taxtable.FieldTaxLabel))
		assert.Equal(t, "110,000", field(t, out.Value[0], taxtable.FieldAmount))
	})

	t.Run("merged line keeps spaces in the account name", func(t *testing.T) {
		doc := pdfDoc([][]string{
			{"勘定科目 税区分 金額"},
			{"売上高 (物販) 課税売上10% 110,000"},
			{"支払 手数料 課対仕入 10% 5,500"},
		})
		out, err := p.Parse(doc)
		require.NoError(t, err)
		require.Len(t, out.Value, 2)
		assert.Equal(t, "売上高 (物販)", field(t, out.Value[0], taxtable.FieldAccount))
		assert.Equal(t, "課税売上10%", field(t, out.Value[0], taxtable.FieldTaxLabel))
		assert.Equal(t, "110,000", field(t, out.Value[0], taxtable.FieldAmount))
		assert.Equal(t, "支払 手数料", field(t, out.Value[1], taxtable.FieldAccount))
		assert.Equal(t, "課対仕入 10%", field(t, out.Value[1], taxtable.FieldTaxLabel))
	})

	t.Run("malformed amount is kept for the normalizer", func(t *testing.T) {
		doc := pdfDoc([][]string{
			{"勘定科目", "税区分", "金額"},
			{"売上高", "課税売上10%", "不明"},
		})
		out, err := p.Parse(doc)
		require.NoError(t, err)
		require.Len(t, out.Value, 1)
		assert.Equal(t, "不明", field(t, out.Value[0], taxtable.FieldAmount))
	})

	t.Run("short row with digits is warned and skipped", func(t *testing.T) {
		doc := pdfDoc([][]string{
			{"勘定科目", "税区分", "金額"},
			{"売上高", "110,000"},
			{"売上高", "課税売上10%", "110,000"},
		})
		out, err := p.Parse(doc)
		require.NoError(t, err)
		assert.Len(t, out.Value, 1)
		require.Len(t, out.Diagnostics, 1)
		assert.Equal(t, taxtable.SeverityWarning, out.Diagnostics[0].Severity)
		assert.Equal(t, 2, out.Diagnostics[0].Ref.Row)
	})

	t.Run("missing header is a structural error", func(t *testing.T) {
		doc := pdfDoc([][]string{
			{"消費税区分別表"},
			{"売上高", "課税売上10%", "110,000"},
		})
		_, err := p.Parse(doc)
		require.Error(t, err)
		assert.ErrorIs(t, err, taxtable.ErrInvalidStructure)
	})

	t.Run("empty document is a warning", func(t *testing.T) {
		out, err := p.Parse(pdfDoc([][]string{}))
		require.NoError(t, err)
		assert.Empty(t, out.Value)
		require.Len(t, out.Diagnostics, 1)
		assert.Equal(t, taxtable.SeverityWarning, out.Diagnostics[0].Severity)
	})

	t.Run("header without rows is a warning", func(t *testing.T) {
		out, err := p.Parse(pdfDoc([][]string{{"勘定科目", "税区分", "金額"}}))
		require.NoError(t, err)
		assert.Empty(t, out.Value)
		assert.Len(t, out.Diagnostics.Warnings(), 1)
	})
}

func TestYayoiParser(t *testing.T) {
	p := NewYayoiParser()

	t.Run("sections carry the side", func(t *testing.T) {
		doc := pdfDoc([][]string{
			{"勘定科目別税区分表"},
			{"令和6年4月1日 〜 令和7年3月31日"},
			{"勘定科目", "税区分", "請求書区分", "税込金額", "消費税額"},
			{"【売上】"},
			{"売上高", "課税売上込10%", "", "2,200,000", "200,000"},
			{"売上高", "課税売上込軽減8%", "", "540,000", "40,000"},
			{"売上 合計", "", "", "2,740,000", "240,000"},
			{"【仕入】"},
			{"仕入高", "課対仕入込10%", "適格", "1,100,000", "100,000"},
			{"地代家賃 非課仕入 (120,000)"},
		})

		out, err := p.Parse(doc)
		require.NoError(t, err)
		require.Len(t, out.Value, 4)

		assert.Equal(t, "【売上】", out.Value[0].Section)
		assert.Equal(t, "【売上】", out.Value[1].Section)
		assert.Equal(t, "【仕入】", out.Value[2].Section)
		assert.Equal(t, "適格", field(t, out.Value[2], FieldInvoiceClass))
		assert.Equal(t, "1,100,000", field(t, out.Value[2], taxtable.FieldAmount))

		rent := out.Value[3]
		assert.Equal(t, "地代家賃", field(t, rent, taxtable.FieldAccount))
		assert.Equal(t, "非課仕入", field(t, rent, taxtable.FieldTaxLabel))
		assert.Equal(t, "(120,000)", field(t, rent, taxtable.FieldAmount))
		assert.Equal(t, "【仕入】", rent.Section)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := p.Parse(pdfDoc([][]string{{"勘定科目別税区分表"}, {"売上高 課税売上込10% 100"}}))
		assert.ErrorIs(t, err, taxtable.ErrInvalidStructure)
	})
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	for _, v := range []taxtable.Vendor{taxtable.VendorFreee, taxtable.VendorYayoi, taxtable.VendorMoneyForward} {
		p, ok := r.Get(v)
		require.True(t, ok, v)
		assert.Equal(t, v, p.Vendor())
	}

	p, ok := r.Get(taxtable.VendorYayoi)
	require.True(t, ok)
	assert.True(t, p.Accepts(taxtable.KindPDF))
	assert.False(t, p.Accepts(taxtable.KindSpreadsheet))
}

func TestSplitMerged(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"勘定科目 税区分 金額", []string{"勘定科目", "税区分", "金額"}},
		{"売上高 課税売上10% 110,000", []string{"売上高", "課税売上10%", "110,000"}},
		{"売上高 (物販) 課税売上10% 110,000 10,000", []string{"売上高 (物販)", "課税売上10%", "110,000", "10,000"}},
		{"受取 利息 非課売上 △500", []string{"受取 利息", "非課売上", "△500"}},
		{"売上高 課税売上 10% 110,000", []string{"売上高", "課税売上 10%", "110,000"}},
		{"合計 110,000", []string{"合計", "110,000"}},
		{"売上高 課税売上10% 不明", []string{"売上高", "課税売上10%", "不明"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, cellsOf(Row{Cells: []string{tt.line}}))
		})
	}
}

func TestLayoutRows(t *testing.T) {
	// "売上" at x=50, amount at x=300 on one baseline, a second line below
	glyphs := []glyph{
		{x: 300, y: 700, w: 5, size: 10, s: "1"},
		{x: 305, y: 700, w: 5, size: 10, s: "0"},
		{x: 50, y: 700.2, w: 10, size: 10, s: "売"},
		{x: 60, y: 700.2, w: 10, size: 10, s: "上"},
		{x: 150, y: 700, w: 10, size: 10, s: "課"},
		{x: 160, y: 700, w: 10, size: 10, s: "税"},
		{x: 175, y: 700, w: 5, size: 10, s: "8"},
		{x: 50, y: 680, w: 10, size: 10, s: "計"},
	}
	rows := layoutRows(3, glyphs)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"売上", "課税 8", "10"}, rows[0].Cells)
	assert.Equal(t, taxtable.SourceRef{Page: 3, Row: 1}, rows[0].Ref)
	assert.Equal(t, []string{"計"}, rows[1].Cells)
}

func TestLoadDocumentRejectsGarbage(t *testing.T) {
	for _, kind := range []taxtable.DocumentKind{taxtable.KindPDF, taxtable.KindSpreadsheet} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := LoadDocument(kind, []byte("definitely not a document"))
			require.Error(t, err)
			assert.ErrorIs(t, err, taxtable.ErrCorruptFile)
		})
	}
}

func TestLoadDocumentPDF(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "testdata", "yayoi_勘定科目別税区分表.pdf"))
	require.NoError(t, err)

	doc, err := LoadDocument(taxtable.KindPDF, data)
	require.NoError(t, err)
	require.Len(t, doc.Grids, 1)

	rows := doc.Grids[0].Rows
	require.Len(t, rows, 12)
	assert.Equal(t, []string{"勘定科目別税区分表"}, rows[0].Cells)
	assert.Equal(t, []string{"勘定科目", "税区分", "税込金額", "消費税額"}, rows[4].Cells)
	assert.Equal(t, []string{"【売上】"}, rows[5].Cells)
	assert.Equal(t, []string{"売上高", "課税売上込10%", "2,200,000", "200,000"}, rows[6].Cells)
	assert.Equal(t, taxtable.SourceRef{Page: 1, Row: 7}, rows[6].Ref)

	out, err := NewYayoiParser().Parse(doc)
	require.NoError(t, err)
	require.Len(t, out.Value, 4)
	assert.Equal(t, "地代家賃", field(t, out.Value[3], taxtable.FieldAccount))
	assert.Equal(t, "【仕入】", out.Value[3].Section)
}

func TestExtractMetadata(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want taxtable.Metadata
	}{
		{
			name: "gregorian period and company",
			doc: pdfDoc([][]string{
				{"株式会社サンプル"},
				{"期間: 2024年4月1日 〜 2025年3月31日"},
			}),
			want: taxtable.Metadata{CompanyName: "株式会社サンプル", PeriodStart: "2024-04-01", PeriodEnd: "2025-03-31"},
		},
		{
			name: "japanese era with full-width digits",
			doc: pdfDoc([][]string{
				{"サンプル商事株式会社", "令和６年４月１日～令和７年３月３１日"},
			}),
			want: taxtable.Metadata{CompanyName: "サンプル商事株式会社", PeriodStart: "2024-04-01", PeriodEnd: "2025-03-31"},
		},
		{
			name: "nothing found",
			doc:  pdfDoc([][]string{{"消費税区分別表"}}),
			want: taxtable.Metadata{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMetadata(tt.doc))
		})
	}
}
