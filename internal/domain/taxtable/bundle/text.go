package bundle

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/pkg/money"
)

func guideText() string {
	var b strings.Builder
	b.WriteString("消費税区分別集計ファイルの説明\r\n")
	b.WriteString("==============================\r\n\r\n")
	b.WriteString("同じ内容の CSV を2種類の文字コードで出力しています。\r\n")
	b.WriteString("お使いの環境に合わせてどちらか一方を開いてください。\r\n\r\n")

	b.WriteString("■ _SJIS.csv（Shift_JIS）\r\n")
	b.WriteString("  Windows 版 Excel でダブルクリックして開く場合はこちらを使用してください。\r\n")
	b.WriteString("  Shift_JIS で表せない文字は「〓」に置き換えています（処理情報.txt に記録）。\r\n\r\n")

	b.WriteString("■ _UTF8.csv（UTF-8 BOM付き）\r\n")
	b.WriteString("  Mac 版 Excel、Numbers、Google スプレッドシート、その他のツールではこちらを使用してください。\r\n")
	b.WriteString("  すべての文字を元のまま保持しています。\r\n\r\n")

	b.WriteString("■ ファイル一覧\r\n")
	files := []struct{ name, desc string }{
		{"課税売上_*.csv", "売上の税区分別集計（件数・課税対象額・勘定科目）"},
		{"課税仕入_*.csv", "仕入の税区分別集計（件数・課税対象額・勘定科目）"},
		{"集計サマリー_*.csv", "売上・仕入の税区分別件数と課税対象額の一覧"},
		{InfoFile, "元ファイル・処理日時・警告などの処理記録"},
	}
	for _, f := range files {
		fmt.Fprintf(&b, "  %s\r\n    %s\r\n", f.name, f.desc)
	}
	b.WriteString("\r\n")

	b.WriteString("■ 文字化けする場合\r\n")
	b.WriteString("  - Windows で _UTF8.csv が文字化けする場合は _SJIS.csv を開いてください。\r\n")
	b.WriteString("  - Mac で _SJIS.csv が文字化けする場合は _UTF8.csv を開いてください。\r\n")
	b.WriteString("  - Excel の「データ」→「テキストまたは CSV から」で文字コードを指定して読み込むこともできます。\r\n")
	return b.String()
}

func processingInfo(result *taxtable.ParsedResult, bundleWarnings []taxtable.Diagnostic) string {
	agg := result.Aggregation
	var b strings.Builder
	b.WriteString("処理情報\r\n")
	b.WriteString("========\r\n\r\n")
	fmt.Fprintf(&b, "元ファイル: %s\r\n", result.Filename)
	fmt.Fprintf(&b, "会計ソフト: %s\r\n", result.Vendor.Label())
	fmt.Fprintf(&b, "処理日時: %s\r\n", result.ParsedAt.In(jst).Format("2006-01-02 15:04:05 MST"))
	if md := result.Metadata; md.CompanyName != "" {
		fmt.Fprintf(&b, "会社名: %s\r\n", md.CompanyName)
	}
	if md := result.Metadata; md.PeriodStart != "" {
		fmt.Fprintf(&b, "対象期間: %s 〜 %s\r\n", md.PeriodStart, md.PeriodEnd)
	}

	b.WriteString("\r\n[集計結果]\r\n")
	fmt.Fprintf(&b, "明細件数: %d件\r\n", len(result.Items))
	fmt.Fprintf(&b, "売上: %d件 / 課税売上合計 %s\r\n", agg.Sales.Count, money.FormatYen(agg.Sales.TaxableTotal))
	fmt.Fprintf(&b, "仕入: %d件 / 課税仕入合計 %s\r\n", agg.Purchases.Count, money.FormatYen(agg.Purchases.TaxableTotal))

	writeDiagnostics(&b, "警告", agg.Warnings)
	writeDiagnostics(&b, "エラー（集計から除外）", agg.Errors)
	writeDiagnostics(&b, "出力時の警告", bundleWarnings)
	return b.String()
}

func writeDiagnostics(b *strings.Builder, title string, ds []taxtable.Diagnostic) {
	fmt.Fprintf(b, "\r\n[%s] %d件\r\n", title, len(ds))
	for _, d := range ds {
		fmt.Fprintf(b, "- %s\r\n", d.String())
	}
}
