package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   codes.Code
	}{
		{name: "bad request", err: BadRequest("x"), status: http.StatusBadRequest, code: codes.InvalidArgument},
		{name: "conflict", err: Conflict("x"), status: http.StatusConflict, code: codes.AlreadyExists},
		{name: "not found", err: NotFound("x"), status: http.StatusNotFound, code: codes.NotFound},
		{name: "unprocessable", err: Unprocessable("x"), status: http.StatusUnprocessableEntity, code: codes.FailedPrecondition},
		{name: "too many requests", err: TooManyRequests("x"), status: http.StatusTooManyRequests, code: codes.ResourceExhausted},
		{name: "internal", err: Internal("x"), status: http.StatusInternalServerError, code: codes.Internal},
		{name: "nil", err: nil, status: http.StatusInternalServerError, code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.code, tt.err.GRPCCode())
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("db down")
	appErr := From(cause)

	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.Equal(t, "internal error", appErr.Message())
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, From(nil))
}

func TestFromFindsWrappedAppError(t *testing.T) {
	original := NotFound("order not found")
	wrapped := fmt.Errorf("lookup: %w", original)

	assert.Same(t, original, From(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindConflict))
	assert.False(t, IsKind(errors.New("plain"), KindInternal))
}

func TestDetails(t *testing.T) {
	err := BadRequest("invalid quantity for Widget.",
		WithField("quantity"),
		WithDetail("line", 2),
		WithDetails(map[string]any{"product_id": int64(7)}),
	)

	assert.Equal(t, map[string]any{"field": "quantity", "line": 2, "product_id": int64(7)}, err.Details())
}

func TestGRPCStatusHidesCause(t *testing.T) {
	err := Internal("failed to load order", WithCause(errors.New("password=secret")))

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "failed to load order", st.Message())
	assert.Equal(t, codes.ResourceExhausted, status.Code(TooManyRequests("slow down")))
}
