package order

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/messaging"
	"github.com/Additional-Code/gobady/internal/notification"
)

type recorder struct {
	got []notification.Confirmation
}

func (r *recorder) OrderCreated(_ context.Context, c notification.Confirmation) {
	r.got = append(r.got, c)
}

func TestHandleOrderCreated(t *testing.T) {
	rec := &recorder{}
	handler := handleOrderCreated(rec, zap.NewNop())

	payload, err := json.Marshal(notification.Confirmation{
		EventID: "evt-1",
		Code:    "04821",
		Email:   "ana@example.com",
		Total:   decimal.RequireFromString("80.00"),
	})
	require.NoError(t, err)

	err = handler(context.Background(), messaging.Message{Topic: "orders.created", Value: payload})
	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "04821", rec.got[0].Code)
	assert.True(t, decimal.RequireFromString("80").Equal(rec.got[0].Total))
}

func TestHandleOrderCreatedDropsUndecodablePayload(t *testing.T) {
	rec := &recorder{}
	handler := handleOrderCreated(rec, zap.NewNop())

	err := handler(context.Background(), messaging.Message{Topic: "orders.created", Value: []byte("{")})
	require.NoError(t, err)
	assert.Empty(t, rec.got)
}
