package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/gobady/internal/entity"
)

// CategoryRequest creates or renames a category.
type CategoryRequest struct {
	Name string `json:"name"`
}

// CategoryResponse is a category as exposed via transport layers.
type CategoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProductRequest creates or updates a product.
type ProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Stock       int     `json:"stock"`
	CategoryIDs []int64 `json:"category_ids"`
}

// TierRequest creates or updates a price tier.
type TierRequest struct {
	MinQuantity int             `json:"min_quantity"`
	MaxQuantity *int            `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// TierResponse is a price tier as exposed via transport layers.
type TierResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	MinQuantity int             `json:"min_quantity"`
	MaxQuantity *int            `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// MediaRequest attaches an already hosted asset to a product.
type MediaRequest struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// MediaResponse is a media reference as exposed via transport layers.
type MediaResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Kind      string `json:"kind"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id,omitempty"`
}

// ProductResponse is a product with its relations.
type ProductResponse struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Stock       int                `json:"stock"`
	CreatedAt   time.Time          `json:"created_at"`
	Categories  []CategoryResponse `json:"categories"`
	Tiers       []TierResponse     `json:"tiers"`
	Media       []MediaResponse    `json:"media"`
}

// StockResponse reports the available units of a product.
type StockResponse struct {
	ProductID int64 `json:"product_id"`
	Stock     int   `json:"stock"`
}

// QuoteResponse prices a quantity of a product without placing an order.
type QuoteResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available bool            `json:"available"`
}

// PaymentMethodRequest creates or updates a payment method.
type PaymentMethodRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	AccountNumber   string `json:"account_number"`
	QRImageURL      string `json:"qr_image_url"`
	QRImagePublicID string `json:"qr_image_public_id"`
}

// PaymentMethodResponse is a payment method as exposed via transport layers.
type PaymentMethodResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	AccountNumber   string `json:"account_number,omitempty"`
	QRImageURL      string `json:"qr_image_url,omitempty"`
	QRImagePublicID string `json:"qr_image_public_id,omitempty"`
}

// NewCategoryResponse maps a category entity.
func NewCategoryResponse(c *entity.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name}
}

// NewTierResponse maps a price tier entity.
func NewTierResponse(t *entity.PriceTier) TierResponse {
	return TierResponse{
		ID:          t.ID,
		ProductID:   t.ProductID,
		MinQuantity: t.MinQuantity,
		MaxQuantity: t.MaxQuantity,
		UnitPrice:   t.UnitPrice,
	}
}

// NewMediaResponse maps a media entity.
func NewMediaResponse(m *entity.MediaAsset) MediaResponse {
	return MediaResponse{ID: m.ID, ProductID: m.ProductID, Kind: string(m.Kind), URL: m.URL, PublicID: m.PublicID}
}

// NewProductResponse maps a product entity with its loaded relations.
func NewProductResponse(p *entity.Product) ProductResponse {
	res := ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		Categories:  make([]CategoryResponse, 0, len(p.Categories)),
		Tiers:       make([]TierResponse, 0, len(p.Tiers)),
		Media:       make([]MediaResponse, 0, len(p.Media)),
	}
	for _, c := range p.Categories {
		res.Categories = append(res.Categories, NewCategoryResponse(c))
	}
	for _, t := range p.Tiers {
		res.Tiers = append(res.Tiers, NewTierResponse(t))
	}
	for _, m := range p.Media {
		res.Media = append(res.Media, NewMediaResponse(m))
	}
	return res
}

// NewPaymentMethodResponse maps a payment method entity.
func NewPaymentMethodResponse(m *entity.PaymentMethod) PaymentMethodResponse {
	return PaymentMethodResponse{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		AccountNumber:   m.AccountNumber,
		QRImageURL:      m.QRImageURL,
		QRImagePublicID: m.QRImagePublicID,
	}
}
