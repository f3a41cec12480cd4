package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/gobady/pkg/errorbank"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
	Meta    map[string]any  `json:"meta"`
}

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBuildSuccess(t *testing.T) {
	c, rec := newContext()

	err := New(c).WithStatus(http.StatusCreated).WithData(map[string]string{"code": "01234"}).WithMeta("count", 1).Build()
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.JSONEq(t, `{"code":"01234"}`, string(body.Data))
	assert.Equal(t, float64(1), body.Meta["count"])
	assert.Nil(t, body.Error)
}

func TestBuildNoContent(t *testing.T) {
	c, rec := newContext()

	require.NoError(t, New(c).WithStatus(http.StatusNoContent).Build())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestBuildError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{
			name:    "app error",
			err:     errorbank.BadRequest("phone must have exactly 9 digits.", errorbank.WithField("phone")),
			status:  http.StatusBadRequest,
			kind:    "bad_request",
			message: "phone must have exactly 9 digits.",
		},
		{
			name:    "unexpected error hides cause",
			err:     errors.New("pq: connection refused"),
			status:  http.StatusInternalServerError,
			kind:    "internal",
			message: "internal error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext()
			require.NoError(t, New(c).WithError(tc.err).Build())

			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.kind, body.Error.Kind)
			assert.Equal(t, tc.message, body.Error.Message)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestBuildTooManyRequestsSetsRetryAfter(t *testing.T) {
	c, rec := newContext()

	err := errorbank.TooManyRequests("slow down", errorbank.WithDetail("retry_after_seconds", 42))
	require.NoError(t, New(c).WithError(err).Build())

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	body := decode(t, rec)
	assert.Equal(t, float64(42), body.Error.Details["retry_after_seconds"])
}

func TestHTTPErrorHandlerWrapsEchoErrors(t *testing.T) {
	c, rec := newContext()

	HTTPErrorHandler(echo.NewHTTPError(http.StatusNotFound, "Not Found"), c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_found", body.Error.Kind)
	assert.Equal(t, "Not Found", body.Error.Message)
}
