// Package bundle renders a parsed result as the downloadable archive: detail
// and summary CSVs in Shift_JIS and UTF-8, a guide and a processing report.
// The output is a pure function of the ParsedResult.
package bundle

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// Archive entry names, in archive order.
const (
	SalesSJIS     = "課税売上_SJIS.csv"
	SalesUTF8     = "課税売上_UTF8.csv"
	PurchasesSJIS = "課税仕入_SJIS.csv"
	PurchasesUTF8 = "課税仕入_UTF8.csv"
	SummarySJIS   = "集計サマリー_SJIS.csv"
	SummaryUTF8   = "集計サマリー_UTF8.csv"
	GuideFile     = "ファイル説明.txt"
	InfoFile      = "処理情報.txt"
)

// jst stamps archive entries; zip timestamps carry no zone.
var jst = time.FixedZone("JST", 9*60*60)

// File is one archive entry.
type File struct {
	Name string
	Data []byte
}

// Bundle is the ordered set of output files plus the issues found while
// rendering them.
type Bundle struct {
	Files    []File
	Warnings []taxtable.Diagnostic
	Modified time.Time
}

// Build renders every output file of result.
func Build(result *taxtable.ParsedResult) (*Bundle, error) {
	if result == nil {
		return nil, fmt.Errorf("build bundle: nil result")
	}
	b := &Bundle{Modified: result.ParsedAt.In(jst)}
	var warnings taxtable.Diagnostics

	agg := result.Aggregation
	details := []struct {
		sjis, utf8 string
		side       taxtable.SideSummary
	}{
		{SalesSJIS, SalesUTF8, agg.Sales},
		{PurchasesSJIS, PurchasesUTF8, agg.Purchases},
	}
	for _, d := range details {
		rows := detailRows(d.side)
		utf8, err := renderEncoded(rows, toUTF8BOM)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.utf8, err)
		}
		sjis, err := renderEncoded(substituteAccounts(d.sjis, rows, &warnings), toShiftJIS)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.sjis, err)
		}
		b.Files = append(b.Files, File{Name: d.sjis, Data: sjis}, File{Name: d.utf8, Data: utf8})
	}

	summary := summaryRows(agg)
	sjis, err := renderEncoded(summary, toShiftJIS)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SummarySJIS, err)
	}
	utf8, err := renderEncoded(summary, toUTF8BOM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SummaryUTF8, err)
	}
	b.Files = append(b.Files, File{Name: SummarySJIS, Data: sjis}, File{Name: SummaryUTF8, Data: utf8})

	b.Warnings = warnings
	guide, err := toUTF8BOM([]byte(guideText()))
	if err != nil {
		return nil, err
	}
	info, err := toUTF8BOM([]byte(processingInfo(result, b.Warnings)))
	if err != nil {
		return nil, err
	}
	b.Files = append(b.Files, File{Name: GuideFile, Data: guide}, File{Name: InfoFile, Data: info})
	return b, nil
}

func renderEncoded(rows any, encode func([]byte) ([]byte, error)) ([]byte, error) {
	data, err := renderCSV(rows)
	if err != nil {
		return nil, err
	}
	return encode(data)
}

// substituteAccounts returns a copy of rows whose account column is safe for
// Shift_JIS, recording one warning per distinct replaced rune.
func substituteAccounts(file string, rows []*detailRow, warnings *taxtable.Diagnostics) []*detailRow {
	seen := map[rune]bool{}
	out := make([]*detailRow, len(rows))
	for i, r := range rows {
		cp := *r
		safe, missing := sjisSafe(r.Accounts)
		cp.Accounts = safe
		for _, m := range missing {
			if seen[m] {
				continue
			}
			seen[m] = true
			warnings.Warn(taxtable.StageBundle, taxtable.SourceRef{}, taxtable.FieldAccount,
				"%s: 「%c」(U+%04X) は Shift_JIS で表現できないため「%c」に置き換えました", file, m, m, Placeholder)
		}
		out[i] = &cp
	}
	return out
}

// Zip packs the files in order. Every entry carries the same timestamp, so
// equal bundles produce identical bytes.
func (b *Bundle) Zip() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range b.Files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: b.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// File returns the named entry.
func (b *Bundle) File(name string) (File, bool) {
	for _, f := range b.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// Archive builds the bundle of result and returns the zip bytes with the
// bundling warnings.
func Archive(result *taxtable.ParsedResult) ([]byte, []taxtable.Diagnostic, error) {
	b, err := Build(result)
	if err != nil {
		return nil, nil, err
	}
	data, err := b.Zip()
	if err != nil {
		return nil, nil, err
	}
	return data, b.Warnings, nil
}

// ArchiveName derives the download filename from the uploaded filename.
func ArchiveName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "output"
	}
	return "消費税集計_" + base + ".zip"
}
