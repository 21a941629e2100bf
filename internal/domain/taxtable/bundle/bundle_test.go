package bundle

import (
	"bytes"
	"encoding/csv"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/aggregate"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

func parsedResult(items ...taxtable.TaxItem) *taxtable.ParsedResult {
	var diags taxtable.Diagnostics
	diags.Error(taxtable.StageNormalize, taxtable.SourceRef{Page: 1, Row: 7}, taxtable.FieldAmount, "金額「不明」を数値として読み取れないため除外しました")
	return &taxtable.ParsedResult{
		Filename:    "sample.pdf",
		Vendor:      taxtable.VendorFreee,
		Items:       items,
		Aggregation: aggregate.Aggregate(items, diags),
		Metadata:    taxtable.Metadata{CompanyName: "株式会社サンプル", PeriodStart: "2024-04-01", PeriodEnd: "2025-03-31"},
		ParsedAt:    time.Date(2025, 5, 20, 1, 30, 0, 0, time.UTC),
	}
}

func sampleItems() []taxtable.TaxItem {
	return []taxtable.TaxItem{
		{AccountName: "売上高", Side: taxtable.SideSales, Category: taxtable.CategoryStandard, Amount: 110000, TaxableAmount: 110000},
		{AccountName: "雑収入", Side: taxtable.SideSales, Category: taxtable.CategoryStandard, Amount: 5500, TaxableAmount: 5500},
		{AccountName: "売上高", Side: taxtable.SideSales, Category: taxtable.CategoryReduced, Amount: 10800, TaxableAmount: 10800},
		{AccountName: "仕入高", Side: taxtable.SidePurchases, Category: taxtable.CategoryStandard, Amount: 55000, TaxableAmount: 55000},
		{AccountName: "受取利息", Side: taxtable.SideSales, Category: taxtable.CategoryZeroExempt, Amount: 300},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func decodeSJIS(t *testing.T, data []byte) []byte {
	t.Helper()
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	require.NoError(t, err)
	return out
}

func mustFile(t *testing.T, b *Bundle, name string) []byte {
	t.Helper()
	f, ok := b.File(name)
	require.True(t, ok, "missing %s", name)
	return f.Data
}

func TestBuildDetailCSV(t *testing.T) {
	b, err := Build(parsedResult(sampleItems()...))
	require.NoError(t, err)
	assert.Empty(t, b.Warnings)

	utf8 := mustFile(t, b, SalesUTF8)
	require.True(t, bytes.HasPrefix(utf8, bom))
	assert.Contains(t, string(utf8), "\r\n")

	rows := readCSV(t, utf8[len(bom):])
	require.Len(t, rows, 1+len(taxtable.Categories)+1)
	assert.Equal(t, []string{"税区分", "件数", "課税対象額", "勘定科目"}, rows[0])
	assert.Equal(t, []string{"標準税率10%", "2", "115500", "売上高・雑収入"}, rows[1])
	assert.Equal(t, []string{"軽減税率8%", "1", "10800", "売上高"}, rows[2])
	assert.Equal(t, []string{"免税・非課税", "1", "0", "受取利息"}, rows[3])
	assert.Equal(t, []string{"分類不能", "0", "0", ""}, rows[5])
	assert.Equal(t, []string{"合計", "4", "126300", ""}, rows[6])

	t.Run("shift_jis variant has the same content", func(t *testing.T) {
		sjis := mustFile(t, b, SalesSJIS)
		assert.False(t, bytes.HasPrefix(sjis, bom))
		assert.Equal(t, utf8[len(bom):], decodeSJIS(t, sjis))
	})
}

func TestBuildSummaryCSV(t *testing.T) {
	b, err := Build(parsedResult(sampleItems()...))
	require.NoError(t, err)

	rows := readCSV(t, decodeSJIS(t, mustFile(t, b, SummarySJIS)))
	n := len(taxtable.Categories)
	require.Len(t, rows, 1+2*(n+1)+2)
	assert.Equal(t, []string{"区分", "件数", "課税対象額"}, rows[0])
	assert.Equal(t, []string{"売上 標準税率10%", "2", "115500"}, rows[1])
	assert.Equal(t, []string{"売上 合計", "4", "126300"}, rows[n+1])
	assert.Equal(t, []string{"仕入 標準税率10%", "1", "55000"}, rows[n+2])
	assert.Equal(t, []string{"仕入 合計", "1", "55000"}, rows[2*n+2])
	assert.Equal(t, []string{"課税売上合計", "4", "126300"}, rows[2*n+3])
	assert.Equal(t, []string{"課税仕入合計", "1", "55000"}, rows[2*n+4])
}

func TestBuildPlaceholderSubstitution(t *testing.T) {
	items := []taxtable.TaxItem{
		{AccountName: "𠮷野商店", Side: taxtable.SideSales, Category: taxtable.CategoryStandard, Amount: 1000, TaxableAmount: 1000},
		{AccountName: "𠮷田工業", Side: taxtable.SideSales, Category: taxtable.CategoryReduced, Amount: 2000, TaxableAmount: 2000},
		{AccountName: "仕入高", Side: taxtable.SidePurchases, Category: taxtable.CategoryStandard, Amount: 500, TaxableAmount: 500},
	}
	b, err := Build(parsedResult(items...))
	require.NoError(t, err)

	require.Len(t, b.Warnings, 1, "one warning per distinct rune and file")
	assert.Equal(t, taxtable.StageBundle, b.Warnings[0].Stage)
	assert.Contains(t, b.Warnings[0].Reason, SalesSJIS)
	assert.Contains(t, b.Warnings[0].Reason, "U+20BB7")

	sjisRows := readCSV(t, decodeSJIS(t, mustFile(t, b, SalesSJIS)))
	assert.Equal(t, "〓野商店", sjisRows[1][3])
	assert.Equal(t, "1000", sjisRows[1][2], "numeric columns are untouched")

	utf8Rows := readCSV(t, mustFile(t, b, SalesUTF8)[len(bom):])
	assert.Equal(t, "𠮷野商店", utf8Rows[1][3])

	info := string(mustFile(t, b, InfoFile))
	assert.Contains(t, info, "[出力時の警告] 1件")
}

func TestBuildTextFiles(t *testing.T) {
	b, err := Build(parsedResult(sampleItems()...))
	require.NoError(t, err)

	guide := string(mustFile(t, b, GuideFile))
	assert.Contains(t, guide, "Windows")
	assert.Contains(t, guide, "Google スプレッドシート")

	info := string(mustFile(t, b, InfoFile))
	for _, want := range []string{
		"元ファイル: sample.pdf",
		"会計ソフト: freee会計",
		"処理日時: 2025-05-20 10:30:00 JST",
		"会社名: 株式会社サンプル",
		"対象期間: 2024-04-01 〜 2025-03-31",
		"明細件数: 5件",
		"課税売上合計 ¥126,300",
		"課税仕入合計 ¥55,000",
		"[エラー（集計から除外）] 1件",
		"1ページ 7行目: [amount] 金額「不明」",
	} {
		assert.Contains(t, info, want)
	}
}

func TestZip(t *testing.T) {
	result := parsedResult(sampleItems()...)
	first, warnings, err := Archive(result)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	t.Run("entries in fixed order", func(t *testing.T) {
		zr, err := zip.NewReader(bytes.NewReader(first), int64(len(first)))
		require.NoError(t, err)

		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
			assert.Equal(t, zip.Deflate, f.Method)
			assert.True(t, f.Modified.Equal(result.ParsedAt), "%s modified %s", f.Name, f.Modified)
		}
		assert.Equal(t, []string{
			SalesSJIS, SalesUTF8, PurchasesSJIS, PurchasesUTF8,
			SummarySJIS, SummaryUTF8, GuideFile, InfoFile,
		}, names)

		rc, err := zr.File[1].Open()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, bom))
	})

	t.Run("identical results give identical bytes", func(t *testing.T) {
		second, _, err := Archive(parsedResult(sampleItems()...))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "消費税集計_sample.zip", ArchiveName("sample.pdf"))
	assert.Equal(t, "消費税集計_税区分集計.zip", ArchiveName("/tmp/up/税区分集計.xlsx"))
	assert.Equal(t, "消費税集計_output.zip", ArchiveName(""))
}

func TestBuildNilResult(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}
