package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Category groups products for browsing and for the assistant's store snapshot.
type Category struct {
	bun.BaseModel `bun:"table:categories"`

	ID   int64  `bun:",pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

// Product is a sellable item with a stock count and a tiered price list.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID          int64     `bun:",pk,autoincrement"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	Stock       int       `bun:"stock,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	Categories []*Category   `bun:"m2m:product_categories,join:Product=Category"`
	Tiers      []*PriceTier  `bun:"rel:has-many,join:id=product_id"`
	Media      []*MediaAsset `bun:"rel:has-many,join:id=product_id"`
}

// ProductCategory is the join row between products and categories.
type ProductCategory struct {
	bun.BaseModel `bun:"table:product_categories"`

	ProductID  int64     `bun:",pk"`
	Product    *Product  `bun:"rel:belongs-to,join:product_id=id"`
	CategoryID int64     `bun:",pk"`
	Category   *Category `bun:"rel:belongs-to,join:category_id=id"`
}

// PriceTier maps a quantity range to a unit price. A nil MaxQuantity leaves the range open.
type PriceTier struct {
	bun.BaseModel `bun:"table:price_tiers"`

	ID          int64           `bun:",pk,autoincrement"`
	ProductID   int64           `bun:"product_id,notnull"`
	MinQuantity int             `bun:"min_quantity,notnull"`
	MaxQuantity *int            `bun:"max_quantity"`
	UnitPrice   decimal.Decimal `bun:"unit_price,type:numeric(10,2),notnull"`
}

// Contains reports whether quantity falls inside the tier range.
func (t *PriceTier) Contains(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || quantity <= *t.MaxQuantity
}

// MediaKind distinguishes product images from videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaAsset references a file hosted by the external object store.
type MediaAsset struct {
	bun.BaseModel `bun:"table:product_media"`

	ID        int64     `bun:",pk,autoincrement"`
	ProductID int64     `bun:"product_id,notnull"`
	Kind      MediaKind `bun:"kind,notnull"`
	URL       string    `bun:"url,notnull"`
	PublicID  string    `bun:"public_id"`
}
