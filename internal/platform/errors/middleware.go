package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware converts handler errors into JSON responses and counts them by type.
// Echo's own HTTPErrors are counted and passed through to keep their status.
func Middleware(counter *prometheus.CounterVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				counter.WithLabelValues(string(FromHTTPError(httpErr).Type)).Inc()
				return err
			}
			return render(c, counter, From(err))
		}
	}
}

// HTTPErrorHandler renders errors that bypass Middleware because a middleware
// reports them through c.Error instead of returning them, as echo's rate
// limiter does. echo.HTTPErrors keep echo's default rendering.
func HTTPErrorHandler(counter *prometheus.CounterVec) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var httpErr *echo.HTTPError
		if err == nil || errors.As(err, &httpErr) {
			c.Echo().DefaultHTTPErrorHandler(err, c)
			return
		}
		if err := render(c, counter, From(err)); err != nil {
			c.Logger().Error(err)
		}
	}
}

func render(c echo.Context, counter *prometheus.CounterVec, structured *Error) error {
	counter.WithLabelValues(string(structured.Type)).Inc()
	logError(c, structured)

	if err := c.JSON(structured.HTTPStatus(), structured.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case TypeValidation, TypeTooLarge, TypeRateLimited:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case TypeConflict, TypeUnavailable:
		slog.WarnContext(ctx, "Request refused", attrs...)
	default:
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// FromHTTPError maps an echo.HTTPError onto a structured error.
func FromHTTPError(httpErr *echo.HTTPError) *Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var t Type
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType:
		t = TypeValidation
	case http.StatusRequestEntityTooLarge:
		t = TypeTooLarge
	case http.StatusTooManyRequests:
		t = TypeRateLimited
	case http.StatusConflict:
		t = TypeConflict
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		t = TypeUnavailable
	default:
		t = TypeInternal
	}

	return newError(t, message, httpErr.Internal)
}
