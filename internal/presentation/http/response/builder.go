package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/gobady/pkg/errorbank"
)

// Builder helps construct consistent HTTP responses.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	if b.err != nil {
		return b.buildError()
	}
	if b.status == http.StatusNoContent {
		return b.ctx.NoContent(http.StatusNoContent)
	}
	return b.buildSuccess()
}

type successBody struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody is the error member of the envelope.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success bool           `json:"success"`
	Error   ErrorBody      `json:"error"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func (b *Builder) buildSuccess() error {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.ctx.JSON(b.status, successBody{Success: true, Data: b.data, Meta: b.meta})
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < 400 {
		status = appErr.StatusCode()
	}
	details := appErr.Details()
	if status == http.StatusTooManyRequests {
		if wait, ok := details["retry_after_seconds"]; ok {
			b.ctx.Response().Header().Set("Retry-After", fmt.Sprint(wait))
		}
	}

	return b.ctx.JSON(status, errorEnvelope{
		Success: false,
		Error: ErrorBody{
			Kind:    string(appErr.Kind()),
			Message: appErr.Message(),
			Details: details,
		},
		Meta: b.meta,
	})
}

// HTTPErrorHandler renders errors that escape handlers (binding, routing, panics) in the envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := errorbank.KindInternal
		switch {
		case he.Code == http.StatusNotFound, he.Code == http.StatusMethodNotAllowed:
			kind = errorbank.KindNotFound
		case he.Code == http.StatusTooManyRequests:
			kind = errorbank.KindTooManyRequests
		case he.Code < http.StatusInternalServerError:
			kind = errorbank.KindBadRequest
		}
		_ = New(c).WithStatus(he.Code).WithError(errorbank.New(kind, fmt.Sprint(he.Message), errorbank.WithCause(err))).Build()
		return
	}
	_ = New(c).WithError(err).Build()
}
