// Package handler exposes the conversion service over HTTP.
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/service"
)

// DefaultMaxUploadBytes caps uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 50 << 20

// Converter is the subset of the conversion service the handlers use.
type Converter interface {
	DetectAndParse(ctx context.Context, data []byte, filename string) (*taxtable.ParsedResult, error)
	CreateSession(result *taxtable.ParsedResult) (string, error)
	GetPreview(sessionID string) (*service.Preview, error)
	BuildDownload(ctx context.Context, sessionID string) (*service.Download, error)
	DeleteSession(sessionID string) error
}

// ConversionHandler serves upload, preview, download and session cleanup.
type ConversionHandler struct {
	svc       Converter
	maxUpload int64
	version   string
	logger    *slog.Logger
}

// NewConversionHandler creates a handler. maxUpload <= 0 uses the default cap.
func NewConversionHandler(svc Converter, maxUpload int64, version string, logger *slog.Logger) *ConversionHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &ConversionHandler{
		svc:       svc,
		maxUpload: maxUpload,
		version:   version,
		logger:    logger,
	}
}

// RegisterRoutes mounts the API under g, normally e.Group("/api").
func (h *ConversionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.HandleHealth)
	g.POST("/upload", h.HandleUpload)
	g.GET("/preview/:id", h.HandlePreview)
	g.GET("/download/:id", h.HandleDownload)
	g.DELETE("/session/:id", h.HandleDeleteSession)
}

// HandleHealth returns server health status
func (h *ConversionHandler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleUpload converts a multipart upload (field "file") and returns the
// preview of the new session.
func (h *ConversionHandler) HandleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("ファイルが選択されていません", err)
	}
	if file.Size > h.maxUpload {
		return NewTooLargeError(h.maxUpload)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("アップロードされたファイルを開けませんでした", err)
	}
	defer src.Close()

	// the header size can lie; read at most one byte past the cap
	data, err := io.ReadAll(io.LimitReader(src, h.maxUpload+1))
	if err != nil {
		return NewInternalError("アップロードされたファイルを読み込めませんでした", err)
	}
	if int64(len(data)) > h.maxUpload {
		return NewTooLargeError(h.maxUpload)
	}

	ctx := c.Request().Context()
	result, err := h.svc.DetectAndParse(ctx, data, file.Filename)
	if err != nil {
		return toAPIError(err, "ファイル", file.Filename)
	}

	id, err := h.svc.CreateSession(result)
	if err != nil {
		return NewInternalError("セッションを作成できませんでした", err)
	}
	preview, err := h.svc.GetPreview(id)
	if err != nil {
		return toAPIError(err, "セッション", id)
	}
	return c.JSON(http.StatusOK, preview)
}

// HandlePreview returns the preview of a live session.
func (h *ConversionHandler) HandlePreview(c echo.Context) error {
	id := c.Param("id")
	preview, err := h.svc.GetPreview(id)
	if err != nil {
		return toAPIError(err, "セッション", id)
	}
	return c.JSON(http.StatusOK, preview)
}

// HandleDownload sends the zip archive of a live session.
func (h *ConversionHandler) HandleDownload(c echo.Context) error {
	id := c.Param("id")
	dl, err := h.svc.BuildDownload(c.Request().Context(), id)
	if err != nil {
		return toAPIError(err, "セッション", id)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, contentDisposition(dl.Filename))
	header.Set("Cache-Control", "no-store")
	header.Set("X-Bundle-Warnings", strconv.Itoa(len(dl.Warnings)))
	return c.Blob(http.StatusOK, "application/zip", dl.Data)
}

// HandleDeleteSession discards a session before it expires.
func (h *ConversionHandler) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.DeleteSession(id); err != nil {
		return toAPIError(err, "セッション", id)
	}
	h.logger.Debug("session deleted", slog.String("session_id", id))
	return c.JSON(http.StatusOK, map[string]string{"message": "セッションを削除しました"})
}

// contentDisposition carries the Japanese archive name as an RFC 5987
// filename* with an ASCII fallback for old clients.
func contentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="tax_summary.zip"; filename*=UTF-8''%s`, url.PathEscape(name))
}
