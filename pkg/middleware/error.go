package middleware

import (
	"errors"
	"maps"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/klevu/module-m2-indexing-sub002/pkg/context"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// ErrorResponse is the body of every failed API call. Meta holds what the
// failing layer attached: "validation" lists validator messages, "field"
// and "value" name a bad parameter or a missing row, "api_key" is the
// account named in the route.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		code, message, meta := describeError(err)
		if apiKey := c.Param("apiKey"); apiKey != "" {
			meta["api_key"] = apiKey
		}

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": code})
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is rejecting a request")
		}
		if c.Response().Committed {
			return
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: appctx.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

// describeError finds the first http error in the chain. Store errors are
// often wrapped with fmt.Errorf before they reach a handler.
func describeError(err error) (int, string, map[string]any) {
	meta := map[string]any{}

	var httperr *httperror.HTTPError
	if errors.As(err, &httperr) {
		maps.Copy(meta, httperr.Meta)
		if validation, ok := meta["validation"].(string); ok {
			meta["validation"] = strings.Split(validation, "\n")
		}
		return httperr.Code, httperr.Message, meta
	}

	var bindErr *echo.BindingError
	if errors.As(err, &bindErr) {
		meta["field"] = bindErr.Field
		meta["value"] = strings.Join(bindErr.Values, ",")
		return bindErr.Code, "invalid value for " + bindErr.Field, meta
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
		return he.Code, message, meta
	}

	return http.StatusInternalServerError, "Internal Server Error", meta
}
