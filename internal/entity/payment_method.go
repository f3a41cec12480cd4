package entity

import "github.com/uptrace/bun"

// PaymentMethod describes how a customer can pay for an order.
type PaymentMethod struct {
	bun.BaseModel `bun:"table:payment_methods"`

	ID              int64  `bun:",pk,autoincrement"`
	Name            string `bun:"name,notnull,unique"`
	Description     string `bun:"description"`
	AccountNumber   string `bun:"account_number"`
	QRImageURL      string `bun:"qr_image_url"`
	QRImagePublicID string `bun:"qr_image_public_id"`
}
