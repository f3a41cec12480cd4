// Package notification renders order confirmations and hands them to an email provider.
// Delivery is best effort: failures are logged and never reach the caller.
package notification

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
)

var dispatcherTracer = otel.Tracer("github.com/Additional-Code/gobady/notification")

// Module provides the email sender and dispatcher to Fx.
var Module = fx.Provide(NewSender, NewDispatcher)

// Line is one row of a confirmation email.
type Line struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Confirmation is a self-contained snapshot of a committed order. It is also the
// payload of the order.created event.
type Confirmation struct {
	EventID       string          `json:"event_id"`
	OrderID       int64           `json:"order_id"`
	Code          string          `json:"code"`
	CreatedAt     time.Time       `json:"created_at"`
	Name          string          `json:"name"`
	Surname       string          `json:"surname"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	InterRegional bool            `json:"inter_regional"`
	Department    string          `json:"department,omitempty"`
	Province      string          `json:"province,omitempty"`
	District      string          `json:"district,omitempty"`
	Address       string          `json:"address,omitempty"`
	Lines         []Line          `json:"lines"`
	Surcharge     decimal.Decimal `json:"surcharge"`
	Total         decimal.Decimal `json:"total"`
}

// Dispatcher formats confirmations and sends them.
type Dispatcher struct {
	sender   Sender
	logger   *zap.Logger
	timeout  time.Duration
	body     *template.Template
}

// Params defines dependencies for constructing Dispatcher.
type Params struct {
	fx.In

	Sender Sender
	Config config.Config
	Logger *zap.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(p Params) *Dispatcher {
	return newDispatcher(p.Sender, p.Logger, p.Config.Email.Timeout, p.Config.Orders.CurrencySymbol)
}

func newDispatcher(sender Sender, logger *zap.Logger, timeout time.Duration, currency string) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		logger:  logger,
		timeout: timeout,
		body:    parseConfirmation(currency),
	}
}

// parseConfirmation compiles the email body once per dispatcher.
func parseConfirmation(currency string) *template.Template {
	return template.Must(template.New("confirmation").Funcs(template.FuncMap{
		"money": func(v decimal.Decimal) string { return currency + " " + v.StringFixed(2) },
	}).Parse(confirmationTemplate))
}

// OrderCreated emails the customer a summary of their order. Errors are logged and swallowed.
func (d *Dispatcher) OrderCreated(ctx context.Context, c Confirmation) {
	ctx, span := dispatcherTracer.Start(ctx, "Dispatcher.OrderCreated", trace.WithAttributes(attribute.String("order.code", c.Code)))
	defer span.End()

	body, err := d.Render(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		d.logger.Error("render order confirmation", zap.String("order.code", c.Code), zap.Error(err))
		return
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.sender.Send(ctx, c.Email, Subject(c), body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		d.logger.Warn("order confirmation not delivered",
			zap.String("order.code", c.Code),
			zap.String("to", c.Email),
			zap.Error(err),
		)
		return
	}
	d.logger.Info("order confirmation sent", zap.String("order.code", c.Code))
}

// Subject is the email subject line for a confirmation.
func Subject(c Confirmation) string {
	return "Confirmación de pedido #" + c.Code
}

// Render produces the HTML body.
func (d *Dispatcher) Render(c Confirmation) (string, error) {
	var buf bytes.Buffer
	if err := d.body.Execute(&buf, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const confirmationTemplate = `<h2>¡Gracias por tu compra, {{.Name}}!</h2>
<p>Tu pedido <strong>#{{.Code}}</strong> fue registrado correctamente.</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Producto</th><th>Cantidad</th><th>Precio unitario</th><th>Subtotal</th></tr>
{{- range .Lines}}
<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{money .UnitPrice}}</td><td>{{money .Subtotal}}</td></tr>
{{- end}}
</table>
{{- if .InterRegional}}
<p>Envío a provincia: {{money .Surcharge}}</p>
<p>Entrega: {{.Address}}, {{.District}}, {{.Province}}, {{.Department}}</p>
{{- end}}
<p><strong>Total: {{money .Total}}</strong></p>
<p>Método de pago: {{.PaymentMethod}}</p>
`
