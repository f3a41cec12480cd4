package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order represents a checkout persisted together with its lines.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            int64           `bun:",pk,autoincrement"`
	Code          string          `bun:"code,notnull,unique"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	Name          string          `bun:"name,notnull"`
	Surname       string          `bun:"surname,notnull"`
	NationalID    string          `bun:"national_id"`
	Phone         string          `bun:"phone"`
	Email         string          `bun:"email,notnull"`
	InterRegional bool            `bun:"inter_regional,notnull"`
	Department    string          `bun:"department"`
	Province      string          `bun:"province"`
	District      string          `bun:"district"`
	Address       string          `bun:"address"`
	Total         decimal.Decimal `bun:"total,type:numeric(10,2),notnull"`

	PaymentMethodID int64          `bun:"payment_method_id,notnull"`
	PaymentMethod   *PaymentMethod `bun:"rel:belongs-to,join:payment_method_id=id"`
	Lines           []*OrderLine   `bun:"rel:has-many,join:id=order_id"`
}

// OrderLine is one product of an order with its unit price frozen at checkout.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	ID        int64           `bun:",pk,autoincrement"`
	OrderID   int64           `bun:"order_id,notnull"`
	ProductID int64           `bun:"product_id,notnull"`
	Product   *Product        `bun:"rel:belongs-to,join:product_id=id"`
	Quantity  int             `bun:"quantity,notnull"`
	UnitPrice decimal.Decimal `bun:"unit_price,type:numeric(10,2),notnull"`
}

// Subtotal is quantity times the frozen unit price.
func (l *OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}
