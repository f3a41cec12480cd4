package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
)

func TestHeadersRoundTripThroughKafkaMessage(t *testing.T) {
	headers := map[string]string{HeaderEventID: "evt-1", HeaderEventType: "order.created"}
	msg := kafka.Message{
		Topic:   "orders.created",
		Key:     []byte("04821"),
		Value:   []byte(`{"code":"04821"}`),
		Offset:  42,
		Headers: toKafkaHeaders(headers),
	}

	got := fromKafkaMessage(msg)
	assert.Equal(t, headers, got.Headers)
	assert.Equal(t, "04821", string(got.Key))
	assert.Equal(t, int64(42), got.Offset)

	msg.Value[0] = 'X'
	assert.Equal(t, byte('{'), got.Value[0], "payload is copied")
}

func TestEmptyHeaders(t *testing.T) {
	assert.Nil(t, toKafkaHeaders(nil))
	assert.Nil(t, fromKafkaMessage(kafka.Message{}).Headers)
}

func TestNewClientDisabledIsNoop(t *testing.T) {
	cfg := config.Config{Messaging: config.Messaging{
		Enabled: false,
		Kafka:   config.Kafka{Topic: "orders.created"},
	}}

	client, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "orders.created", client.Topic())
	require.NoError(t, client.Publish(context.Background(), Envelope{Value: []byte("{}")}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Consume(ctx, nil), context.DeadlineExceeded)
}
