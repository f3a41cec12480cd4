package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/messaging"
	"github.com/Additional-Code/gobady/internal/notification"
	ordersvc "github.com/Additional-Code/gobady/internal/service/order"
	"github.com/Additional-Code/gobady/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/gobady/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

type confirmer interface {
	OrderCreated(ctx context.Context, c notification.Confirmation)
}

// NewOrderCreatedHandler routes order.created events on the orders topic to the email dispatcher.
func NewOrderCreatedHandler(d *notification.Dispatcher, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:     cfg.Messaging.Kafka.Topic,
		EventType: ordersvc.EventOrderCreated,
		Handler:   handleOrderCreated(d, logger),
	}
}

// handleOrderCreated acknowledges every message: undecodable payloads are dropped and
// delivery failures are left to the dispatcher's logging, so nothing is redelivered.
func handleOrderCreated(n confirmer, logger *zap.Logger) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.created", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.String("messaging.event_id", msg.Headers[messaging.HeaderEventID]),
		))
		defer span.End()

		var c notification.Confirmation
		if err := json.Unmarshal(msg.Value, &c); err != nil {
			logger.Error("failed to decode order created", zap.Int64("offset", msg.Offset), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		span.SetAttributes(attribute.String("order.code", c.Code))

		n.OrderCreated(ctx, c)
		logger.Debug("order created event processed", zap.String("order.code", c.Code), zap.String("event.id", c.EventID))

		return nil
	}
}
