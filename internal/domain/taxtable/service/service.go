// Package service provides the conversion orchestration logic: detection,
// parsing, normalization and aggregation of an uploaded document, and the
// session operations behind preview and download.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/aggregate"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/normalizer"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/parser"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/session"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/sniffer"
	"github.com/FACorreiaa/tax-table-converter/pkg/metrics"
)

// DefaultParseTimeout bounds one DetectAndParse call.
const DefaultParseTimeout = 60 * time.Second

// sniffRows is how many rows per grid are scanned for vendor signatures.
const sniffRows = 40

const tracerName = "github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/service"

// ConversionService orchestrates conversions and sessions.
type ConversionService struct {
	detector   *sniffer.Detector
	parsers    *parser.Registry
	normalizer *normalizer.Normalizer
	sessions   *session.Store
	clock      session.Clock
	timeout    time.Duration
	metrics    *metrics.Metrics // Optional: nil records nothing
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewConversionService creates a service over the built-in signatures,
// parsers and mapping tables.
func NewConversionService(sessions *session.Store, logger *slog.Logger) *ConversionService {
	return &ConversionService{
		detector:   sniffer.NewDetector(sniffer.DefaultSignatures()),
		parsers:    parser.DefaultRegistry(),
		normalizer: normalizer.NewDefault(),
		sessions:   sessions,
		clock:      session.SystemClock{},
		timeout:    DefaultParseTimeout,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
}

// WithNormalizer replaces the normalizer, e.g. one built from a mapping file.
func (s *ConversionService) WithNormalizer(n *normalizer.Normalizer) *ConversionService {
	s.normalizer = n
	return s
}

// WithParseTimeout sets the DetectAndParse deadline.
func (s *ConversionService) WithParseTimeout(d time.Duration) *ConversionService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithMetrics enables Prometheus instrumentation.
func (s *ConversionService) WithMetrics(m *metrics.Metrics) *ConversionService {
	s.metrics = m
	return s
}

// WithClock sets the clock used to stamp results.
func (s *ConversionService) WithClock(c session.Clock) *ConversionService {
	s.clock = c
	return s
}

// WithRegistry replaces the vendor parsers.
func (s *ConversionService) WithRegistry(r *parser.Registry) *ConversionService {
	s.parsers = r
	return s
}

// DetectAndParse converts an uploaded document. Document-level failures are
// returned as *taxtable.ParseError; row-level issues travel in the result.
func (s *ConversionService) DetectAndParse(ctx context.Context, data []byte, filename string) (*taxtable.ParsedResult, error) {
	digest := sniffer.Fingerprint(data)
	ctx, span := s.tracer.Start(ctx, "DetectAndParse", trace.WithAttributes(
		attribute.String("file.name", filename),
		attribute.Int("file.size", len(data)),
		attribute.String("file.sha256", digest),
	))
	defer span.End()

	start := time.Now()
	result, err := s.detectAndParse(ctx, data, filename)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveConversion("", metrics.OutcomeFailure, elapsed.Seconds())

		attrs := []any{
			slog.String("filename", filename),
			slog.String("sha256", digest),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		}
		var perr *taxtable.ParseError
		if errors.As(err, &perr) {
			s.logger.Warn("conversion rejected", append(attrs, slog.String("code", perr.Code()))...)
		} else {
			s.logger.Error("conversion failed", attrs...)
		}
		return nil, err
	}

	agg := result.Aggregation
	span.SetAttributes(
		attribute.String("vendor", string(result.Vendor)),
		attribute.Int("items", len(result.Items)),
	)
	s.metrics.ObserveConversion(string(result.Vendor), metrics.OutcomeSuccess, elapsed.Seconds())
	s.metrics.AddDiagnostics(string(taxtable.SeverityWarning), len(agg.Warnings))
	s.metrics.AddDiagnostics(string(taxtable.SeverityError), len(agg.Errors))
	s.logger.Info("document converted",
		slog.String("filename", filename),
		slog.String("sha256", digest),
		slog.String("vendor", string(result.Vendor)),
		slog.Int("items", len(result.Items)),
		slog.Int("warnings", len(agg.Warnings)),
		slog.Int("errors", len(agg.Errors)),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

type parseOutcome struct {
	result *taxtable.ParsedResult
	err    error
}

func (s *ConversionService) detectAndParse(ctx context.Context, data []byte, filename string) (*taxtable.ParsedResult, error) {
	kind, err := sniffer.CheckExtension(filename)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, taxtable.NewParseError(taxtable.ErrCorruptFile, "ファイルが空です", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// the pipeline is CPU bound and not interruptible; on timeout it finishes
	// in the background and its result is discarded
	done := make(chan parseOutcome, 1)
	go func() {
		res, err := s.pipeline(ctx, data, filename, kind)
		done <- parseOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, taxtable.NewParseError(taxtable.ErrParseTimeout,
				fmt.Sprintf("ファイルの解析が制限時間（%s）内に終わりませんでした", s.timeout), ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func (s *ConversionService) pipeline(ctx context.Context, data []byte, filename string, kind taxtable.DocumentKind) (*taxtable.ParsedResult, error) {
	_, loadSpan := s.tracer.Start(ctx, "LoadDocument")
	doc, err := parser.LoadDocument(kind, data)
	loadSpan.End()
	if err != nil {
		return nil, err
	}
	return s.process(ctx, filename, kind, doc)
}

// process detects the vendor of a loaded document and converts it. A single
// signature match is authoritative; otherwise every candidate parser is tried.
func (s *ConversionService) process(ctx context.Context, filename string, kind taxtable.DocumentKind, doc *parser.Document) (*taxtable.ParsedResult, error) {
	_, detectSpan := s.tracer.Start(ctx, "Detect")
	matches := s.detector.Detect(kind, doc.Text(sniffRows))
	detectSpan.SetAttributes(attribute.Int("matches", len(matches)))
	detectSpan.End()

	var (
		conv *conversion
		err  error
	)
	if len(matches) == 1 {
		p, ok := s.parsers.Get(matches[0])
		if !ok {
			return nil, fmt.Errorf("no parser registered for vendor %s", matches[0])
		}
		conv, err = s.convert(ctx, p, doc)
	} else {
		conv, err = s.tryCandidates(ctx, kind, doc)
	}
	if err != nil {
		return nil, err
	}

	_, aggSpan := s.tracer.Start(ctx, "Aggregate")
	agg := aggregate.Aggregate(conv.items, conv.diags)
	aggSpan.End()

	return &taxtable.ParsedResult{
		Filename:    filename,
		Vendor:      conv.vendor,
		Items:       conv.items,
		Aggregation: agg,
		Metadata:    parser.ExtractMetadata(doc),
		ParsedAt:    s.clock.Now(),
	}, nil
}

// tryCandidates runs the parser of every vendor exporting the document kind,
// in priority order, and keeps the first that yields at least one valid item.
func (s *ConversionService) tryCandidates(ctx context.Context, kind taxtable.DocumentKind, doc *parser.Document) (*conversion, error) {
	for _, vendor := range s.detector.Candidates(kind) {
		p, ok := s.parsers.Get(vendor)
		if !ok || !p.Accepts(kind) {
			continue
		}
		conv, err := s.convert(ctx, p, doc)
		if err != nil {
			var perr *taxtable.ParseError
			if !errors.As(err, &perr) {
				return nil, err
			}
			s.logger.Debug("candidate parser rejected document",
				slog.String("vendor", string(p.Vendor())),
				slog.Any("error", err),
			)
			continue
		}
		if len(conv.items) > 0 {
			return conv, nil
		}
	}
	return nil, taxtable.NewParseError(taxtable.ErrUnrecognizedFormat,
		"会計ソフトの出力形式を判別できませんでした。freee・弥生会計の PDF、またはマネーフォワードの Excel ファイルを選択してください", nil)
}

type conversion struct {
	vendor taxtable.Vendor
	items  []taxtable.TaxItem
	diags  taxtable.Diagnostics
}

func (s *ConversionService) convert(ctx context.Context, p parser.Parser, doc *parser.Document) (*conversion, error) {
	vendor := p.Vendor()

	_, parseSpan := s.tracer.Start(ctx, "Parse", trace.WithAttributes(attribute.String("vendor", string(vendor))))
	raw, err := p.Parse(doc)
	parseSpan.SetAttributes(attribute.Int("records", len(raw.Value)))
	parseSpan.End()
	if err != nil {
		return nil, err
	}

	_, normSpan := s.tracer.Start(ctx, "Normalize", trace.WithAttributes(attribute.String("vendor", string(vendor))))
	norm, err := s.normalizer.Normalize(vendor, raw.Value)
	normSpan.End()
	if err != nil {
		return nil, fmt.Errorf("normalize %s records: %w", vendor, err)
	}

	diags := append(raw.Diagnostics, norm.Diagnostics...)
	return &conversion{vendor: vendor, items: norm.Value, diags: diags}, nil
}
