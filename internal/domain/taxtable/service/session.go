package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/bundle"
)

// EncodingInfo tells users which CSV variant to open.
type EncodingInfo struct {
	SJIS string `json:"sjis"`
	UTF8 string `json:"utf8"`
}

var defaultEncodingInfo = EncodingInfo{
	SJIS: "Shift_JIS 版（_SJIS.csv）: Windows 版 Excel で開く場合に使用してください",
	UTF8: "UTF-8 版（_UTF8.csv）: Mac 版 Excel や Google スプレッドシートで開く場合に使用してください",
}

// Preview summarises a stored conversion for display before download.
type Preview struct {
	SessionID         string                   `json:"session_id"`
	Filename          string                   `json:"filename"`
	Vendor            taxtable.Vendor          `json:"vendor"`
	VendorLabel       string                   `json:"vendor_label"`
	TaxableSales      int64                    `json:"taxable_sales"`
	TaxablePurchases  int64                    `json:"taxable_purchases"`
	SalesItemCount    int                      `json:"sales_item_count"`
	PurchaseItemCount int                      `json:"purchase_item_count"`
	SalesByCategory   []taxtable.CategoryTotal `json:"sales_by_category"`
	PurchasesByCat    []taxtable.CategoryTotal `json:"purchases_by_category"`
	Metadata          taxtable.Metadata        `json:"metadata"`
	Warnings          []string                 `json:"warnings"`
	Errors            []string                 `json:"errors"`
	ExpiresAt         time.Time                `json:"expires_at"`
	EncodingInfo      EncodingInfo             `json:"encoding_info"`
}

// Download is a built archive ready to send.
type Download struct {
	Filename string
	Data     []byte
	Warnings []taxtable.Diagnostic
}

// CreateSession stores result and returns the new session id.
func (s *ConversionService) CreateSession(result *taxtable.ParsedResult) (string, error) {
	sess, err := s.sessions.Create(result)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.metrics.SetSessions(s.sessions.Len())
	s.logger.Debug("session created",
		slog.String("session_id", sess.ID),
		slog.String("vendor", string(sess.Vendor)),
	)
	return sess.ID, nil
}

// GetPreview returns the preview of a live session and extends its lifetime.
// Unknown or expired sessions yield taxtable.ErrNotFound.
func (s *ConversionService) GetPreview(sessionID string) (*Preview, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	res := sess.Result
	agg := res.Aggregation

	return &Preview{
		SessionID:         sess.ID,
		Filename:          res.Filename,
		Vendor:            res.Vendor,
		VendorLabel:       res.Vendor.Label(),
		TaxableSales:      agg.Sales.TaxableTotal,
		TaxablePurchases:  agg.Purchases.TaxableTotal,
		SalesItemCount:    agg.Sales.Count,
		PurchaseItemCount: agg.Purchases.Count,
		SalesByCategory:   agg.Sales.Categories,
		PurchasesByCat:    agg.Purchases.Categories,
		Metadata:          res.Metadata,
		Warnings:          taxtable.Messages(agg.Warnings),
		Errors:            taxtable.Messages(agg.Errors),
		ExpiresAt:         sess.ExpiresAt,
		EncodingInfo:      defaultEncodingInfo,
	}, nil
}

// BuildDownload renders the archive of a live session. Unknown or expired
// sessions yield taxtable.ErrNotFound.
func (s *ConversionService) BuildDownload(ctx context.Context, sessionID string) (*Download, error) {
	_, span := s.tracer.Start(ctx, "BuildDownload")
	defer span.End()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	data, warnings, err := bundle.Archive(sess.Result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build archive: %w", err)
	}
	span.SetAttributes(
		attribute.Int("archive.size", len(data)),
		attribute.Int("bundle.warnings", len(warnings)),
	)

	s.metrics.IncDownloads()
	s.metrics.AddDiagnostics(string(taxtable.SeverityWarning), len(warnings))
	s.logger.Info("archive built",
		slog.String("session_id", sessionID),
		slog.Int("bytes", len(data)),
		slog.Int("bundle_warnings", len(warnings)),
	)
	return &Download{
		Filename: bundle.ArchiveName(sess.Filename),
		Data:     data,
		Warnings: warnings,
	}, nil
}

// DeleteSession removes a session. Unknown or expired sessions yield
// taxtable.ErrNotFound.
func (s *ConversionService) DeleteSession(sessionID string) error {
	if !s.sessions.Delete(sessionID) {
		return taxtable.ErrNotFound
	}
	s.metrics.SetSessions(s.sessions.Len())
	return nil
}

// ActiveSessions returns the number of live sessions.
func (s *ConversionService) ActiveSessions() int {
	return s.sessions.Len()
}
