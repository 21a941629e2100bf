package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/bundle"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/parser"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/session"
	"github.com/FACorreiaa/tax-table-converter/pkg/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*ConversionService, *fakeClock, *metrics.Metrics) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 5, 20, 1, 30, 0, 0, time.UTC)}
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewConversionService(session.NewStore(30*time.Minute, clock), logger).
		WithClock(clock).
		WithMetrics(m)
	return svc, clock, m
}

// sheet writes one worksheet of rows into an in-memory xlsx file.
func sheet(t *testing.T, name string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", name))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(name, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func exampleWorkbook(t *testing.T) []byte {
	return sheet(t, "集計表", [][]any{
		{"勘定科目別税区分集計表"},
		{"株式会社サンプル"},
		{"勘定科目", "税区分", "金額"},
		{"Sales A", "10%", 110000},
		{"Sales B", "8%", 10800},
		{"合計", "", 120800},
	})
}

func pdfDoc(lines ...[]string) *parser.Document {
	g := parser.Grid{Page: 1}
	for i, cells := range lines {
		g.Rows = append(g.Rows, parser.Row{Ref: taxtable.SourceRef{Page: 1, Row: i + 1}, Cells: cells})
	}
	return &parser.Document{Kind: taxtable.KindPDF, Grids: []parser.Grid{g}}
}

func parseError(t *testing.T, err error) *taxtable.ParseError {
	t.Helper()
	var perr *taxtable.ParseError
	require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
	return perr
}

func TestDetectAndParseSpreadsheetExample(t *testing.T) {
	svc, clock, m := newTestService(t)

	res, err := svc.DetectAndParse(t.Context(), exampleWorkbook(t), "sample.xlsx")
	require.NoError(t, err)

	assert.Equal(t, taxtable.VendorMoneyForward, res.Vendor)
	assert.Equal(t, "sample.xlsx", res.Filename)
	assert.Equal(t, clock.Now(), res.ParsedAt)
	require.Len(t, res.Items, 2)
	assert.Empty(t, res.Aggregation.Errors)

	sales := res.Aggregation.Sales
	assert.Equal(t, int64(110000), sales.Category(taxtable.CategoryStandard).TaxableAmount)
	assert.Equal(t, int64(10800), sales.Category(taxtable.CategoryReduced).TaxableAmount)
	assert.Equal(t, int64(120800), sales.TaxableTotal)
	assert.Equal(t, "株式会社サンプル", res.Metadata.CompanyName)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues("moneyforward", metrics.OutcomeSuccess)))
}

func TestDetectAndParseRowIssues(t *testing.T) {
	svc, _, _ := newTestService(t)

	t.Run("malformed amount drops only that row", func(t *testing.T) {
		data := sheet(t, "税区分集計", [][]any{
			{"勘定科目", "税区分", "金額"},
			{"売上高", "10%", 1000},
			{"売上高", "8%", "不明"},
			{"雑収入", "10%", 500},
		})
		res, err := svc.DetectAndParse(t.Context(), data, "mf.xlsx")
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		assert.Equal(t, int64(1500), res.Aggregation.Sales.TaxableTotal)
		require.Len(t, res.Aggregation.Errors, 1)
		assert.Equal(t, 3, res.Aggregation.Errors[0].Ref.Row)
	})

	t.Run("exponent notation is a malformed amount", func(t *testing.T) {
		data := sheet(t, "税区分集計", [][]any{
			{"勘定科目", "税区分", "金額"},
			{"売上高", "10%", 1000},
			{"売上高", "10%", "1e99999999"},
			{"雑収入", "10%", "1e3"},
			{"雑収入", "8%", 500},
		})
		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		res, err := svc.DetectAndParse(ctx, data, "mf.xlsx")
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		assert.Equal(t, int64(1500), res.Aggregation.Sales.TaxableTotal)
		require.Len(t, res.Aggregation.Errors, 2)
		assert.Equal(t, 3, res.Aggregation.Errors[0].Ref.Row)
		assert.Equal(t, 4, res.Aggregation.Errors[1].Ref.Row)
	})

	t.Run("unmapped label is counted as unclassified", func(t *testing.T) {
		data := sheet(t, "税区分集計", [][]any{
			{"勘定科目", "税区分", "金額"},
			{"売上高", "10%", 1000},
			{"売上高", "特殊課税", 300},
		})
		res, err := svc.DetectAndParse(t.Context(), data, "mf.xlsx")
		require.NoError(t, err)
		assert.Equal(t, int64(1300), res.Aggregation.Sales.TaxableTotal)
		assert.Equal(t, 1, res.Aggregation.Sales.Category(taxtable.CategoryUnclassified).Count)

		var labelWarnings int
		for _, w := range res.Aggregation.Warnings {
			if w.Field == taxtable.FieldTaxLabel {
				labelWarnings++
			}
		}
		assert.Equal(t, 1, labelWarnings)
	})
}

func TestDetectAndParseFailures(t *testing.T) {
	svc, _, m := newTestService(t)

	tests := []struct {
		name     string
		data     []byte
		filename string
		kind     error
		code     string
	}{
		{"legacy excel", []byte("x"), "old.xls", taxtable.ErrUnsupportedExtension, "unsupported_extension"},
		{"text file", []byte("x"), "notes.txt", taxtable.ErrUnsupportedExtension, "unsupported_extension"},
		{"empty upload", nil, "empty.pdf", taxtable.ErrCorruptFile, "corrupt_file"},
		{"corrupt workbook", []byte("PK not really"), "broken.xlsx", taxtable.ErrCorruptFile, "corrupt_file"},
		{"corrupt pdf", []byte("%PDF-1.4 garbage"), "broken.pdf", taxtable.ErrCorruptFile, "corrupt_file"},
		{
			"unknown workbook",
			sheet(t, "名簿", [][]any{{"氏名", "住所"}, {"山田", "東京"}}),
			"people.xlsx",
			taxtable.ErrUnrecognizedFormat,
			"unrecognized_format",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.DetectAndParse(t.Context(), tt.data, tt.filename)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.kind)
			assert.NotErrorIs(t, err, taxtable.ErrNotFound)
			perr := parseError(t, err)
			assert.Equal(t, tt.code, perr.Code())
			assert.NotEmpty(t, perr.Message)
		})
	}

	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(m.Conversions.WithLabelValues("unknown", metrics.OutcomeFailure)))
}

func TestProcessDetection(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := t.Context()

	t.Run("freee signature", func(t *testing.T) {
		doc := pdfDoc(
			[]string{"消費税区分別表"},
			[]string{"勘定科目", "税区分", "金額"},
			[]string{"売上高", "課税売上10%", "1,100,000"},
			[]string{"仕入高", "課対仕入10%", "550,000"},
		)
		res, err := svc.process(ctx, "f.pdf", taxtable.KindPDF, doc)
		require.NoError(t, err)
		assert.Equal(t, taxtable.VendorFreee, res.Vendor)
		assert.Equal(t, int64(1100000), res.Aggregation.Sales.TaxableTotal)
		assert.Equal(t, int64(550000), res.Aggregation.Purchases.TaxableTotal)
	})

	t.Run("yayoi signature excludes freee", func(t *testing.T) {
		doc := pdfDoc(
			[]string{"勘定科目別税区分表 消費税区分別表"},
			[]string{"勘定科目", "税区分", "金額"},
			[]string{"【売上】"},
			[]string{"売上高", "課税売上込10%", "220,000"},
		)
		res, err := svc.process(ctx, "y.pdf", taxtable.KindPDF, doc)
		require.NoError(t, err)
		assert.Equal(t, taxtable.VendorYayoi, res.Vendor)
		require.Len(t, res.Items, 1)
		assert.Equal(t, taxtable.SideSales, res.Items[0].Side)
	})

	t.Run("no signature falls back to the first parser with items", func(t *testing.T) {
		doc := pdfDoc(
			[]string{"勘定科目", "税区分", "金額"},
			[]string{"売上高", "課税売上10%", "1,000"},
		)
		res, err := svc.process(ctx, "x.pdf", taxtable.KindPDF, doc)
		require.NoError(t, err)
		assert.Equal(t, taxtable.VendorFreee, res.Vendor)
	})

	t.Run("single match is authoritative", func(t *testing.T) {
		doc := pdfDoc(
			[]string{"freee 消費税区分別表"},
			[]string{"売上高 課税売上10% 1,000"},
		)
		_, err := svc.process(ctx, "x.pdf", taxtable.KindPDF, doc)
		assert.ErrorIs(t, err, taxtable.ErrInvalidStructure)
	})

	t.Run("matched empty table is valid", func(t *testing.T) {
		doc := pdfDoc(
			[]string{"消費税区分別表"},
			[]string{"勘定科目", "税区分", "金額"},
		)
		res, err := svc.process(ctx, "x.pdf", taxtable.KindPDF, doc)
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.NotEmpty(t, res.Aggregation.Warnings)
	})

	t.Run("no parser yields items", func(t *testing.T) {
		doc := pdfDoc([]string{"請求書"}, []string{"品名", "数量"})
		_, err := svc.process(ctx, "x.pdf", taxtable.KindPDF, doc)
		assert.ErrorIs(t, err, taxtable.ErrUnrecognizedFormat)
	})
}

// blockingParser never finishes until released.
type blockingParser struct {
	release chan struct{}
}

func (p *blockingParser) Vendor() taxtable.Vendor { return taxtable.VendorMoneyForward }

func (p *blockingParser) Accepts(kind taxtable.DocumentKind) bool {
	return kind == taxtable.KindSpreadsheet
}

func (p *blockingParser) Parse(*parser.Document) (taxtable.Outcome[[]taxtable.RawLineRecord], error) {
	<-p.release
	return taxtable.Outcome[[]taxtable.RawLineRecord]{}, nil
}

func TestDetectAndParseTimeout(t *testing.T) {
	slow := &blockingParser{release: make(chan struct{})}
	t.Cleanup(func() { close(slow.release) })

	svc, _, _ := newTestService(t)
	svc.WithRegistry(parser.NewRegistry(slow)).WithParseTimeout(20 * time.Millisecond)

	t.Run("deadline", func(t *testing.T) {
		_, err := svc.DetectAndParse(t.Context(), exampleWorkbook(t), "slow.xlsx")
		require.Error(t, err)
		assert.ErrorIs(t, err, taxtable.ErrParseTimeout)
		assert.Equal(t, "parse_timeout", parseError(t, err).Code())
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := svc.WithParseTimeout(time.Minute).DetectAndParse(ctx, exampleWorkbook(t), "slow.xlsx")
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, taxtable.ErrParseTimeout)
	})
}

func TestSessionOperations(t *testing.T) {
	svc, clock, m := newTestService(t)

	res, err := svc.DetectAndParse(t.Context(), exampleWorkbook(t), "sample.xlsx")
	require.NoError(t, err)
	id, err := svc.CreateSession(res)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))

	t.Run("preview", func(t *testing.T) {
		p, err := svc.GetPreview(id)
		require.NoError(t, err)
		assert.Equal(t, id, p.SessionID)
		assert.Equal(t, "sample.xlsx", p.Filename)
		assert.Equal(t, "マネーフォワード クラウド会計", p.VendorLabel)
		assert.Equal(t, int64(120800), p.TaxableSales)
		assert.Zero(t, p.TaxablePurchases)
		assert.Equal(t, 2, p.SalesItemCount)
		assert.Zero(t, p.PurchaseItemCount)
		assert.Empty(t, p.Errors)
		assert.NotNil(t, p.Warnings)
		assert.Len(t, p.SalesByCategory, len(taxtable.Categories))
		assert.NotEmpty(t, p.EncodingInfo.SJIS)
		assert.Equal(t, clock.Now().Add(30*time.Minute), p.ExpiresAt)
	})

	t.Run("download", func(t *testing.T) {
		dl, err := svc.BuildDownload(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, "消費税集計_sample.zip", dl.Filename)

		zr, err := zip.NewReader(bytes.NewReader(dl.Data), int64(len(dl.Data)))
		require.NoError(t, err)
		require.Len(t, zr.File, 8)
		assert.Equal(t, bundle.SalesSJIS, zr.File[0].Name)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Downloads))

		again, err := svc.BuildDownload(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, dl.Data, again.Data)
	})

	t.Run("expired session is not found", func(t *testing.T) {
		other, err := svc.CreateSession(res)
		require.NoError(t, err)
		clock.Advance(31 * time.Minute)

		_, err = svc.GetPreview(other)
		assert.ErrorIs(t, err, taxtable.ErrNotFound)
		_, err = svc.BuildDownload(t.Context(), other)
		assert.ErrorIs(t, err, taxtable.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		fresh, err := svc.CreateSession(res)
		require.NoError(t, err)
		require.NoError(t, svc.DeleteSession(fresh))
		assert.ErrorIs(t, svc.DeleteSession(fresh), taxtable.ErrNotFound)
		_, err = svc.GetPreview(fresh)
		assert.ErrorIs(t, err, taxtable.ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.GetPreview("does-not-exist")
		assert.ErrorIs(t, err, taxtable.ErrNotFound)
		var perr *taxtable.ParseError
		assert.False(t, errors.As(err, &perr))
	})
}
