package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%sが見つかりません。有効期限が切れた可能性があります（%s）", resource, id),
	}
}

// NewTooLargeError creates a 413 error for uploads over the size cap
func NewTooLargeError(limit int64) *APIError {
	return &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "FILE_TOO_LARGE",
		Message: fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています", limit>>20),
	}
}

// NewTooManyRequestsError creates a 429 error
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    "RATE_LIMITED",
		Message: "リクエストが多すぎます。しばらく待ってから再度お試しください",
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewParseError maps a document-level conversion failure. The code is the
// upper-cased ParseError code, e.g. UNRECOGNIZED_FORMAT.
func NewParseError(perr *taxtable.ParseError) *APIError {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(perr, taxtable.ErrUnsupportedExtension):
		status = http.StatusUnsupportedMediaType
	case errors.Is(perr, taxtable.ErrParseTimeout):
		status = http.StatusGatewayTimeout
	}
	return &APIError{
		Status:  status,
		Code:    strings.ToUpper(perr.Code()),
		Message: perr.Message,
	}
}

// toAPIError converts domain errors returned by the service.
func toAPIError(err error, resource, id string) *APIError {
	var perr *taxtable.ParseError
	switch {
	case errors.As(err, &perr):
		return NewParseError(perr)
	case errors.Is(err, taxtable.ErrNotFound):
		return NewNotFoundError(resource, id)
	default:
		return NewInternalError("処理中に予期しないエラーが発生しました", err)
	}
}

// NewErrorHandler returns the echo error handler. Internal details are only
// sent when debug is set.
func NewErrorHandler(logger *slog.Logger, debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
			if httpErr.Code == http.StatusRequestEntityTooLarge {
				apiErr.Code = "FILE_TOO_LARGE"
			}
		default:
			apiErr = NewInternalError("処理中に予期しないエラーが発生しました", err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("path", c.Request().URL.Path),
				slog.String("code", apiErr.Code),
				slog.Any("error", err),
			)
		}

		body := *apiErr
		if !debug {
			body.Details = ""
		}
		if err := c.JSON(body.Status, body); err != nil {
			logger.Error("failed to write error response", slog.Any("error", err))
		}
	}
}
