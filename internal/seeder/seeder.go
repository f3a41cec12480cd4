package seeder

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/database"
	"github.com/Additional-Code/gobady/internal/entity"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

type productFixture struct {
	product    entity.Product
	categories []string
	tiers      []entity.PriceTier
}

func price(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func upTo(n int) *int { return &n }

func categoryFixtures() []string {
	return []string{"Herramientas", "Ferretería", "Hogar"}
}

func productFixtures() []productFixture {
	return []productFixture{
		{
			product:    entity.Product{Name: "Widget", Description: "Widget de acero galvanizado", Stock: 50},
			categories: []string{"Herramientas"},
			tiers: []entity.PriceTier{
				{MinQuantity: 1, MaxQuantity: upTo(9), UnitPrice: price("10.00")},
				{MinQuantity: 10, UnitPrice: price("8.00")},
			},
		},
		{
			product:    entity.Product{Name: "Tornillo autorroscante", Description: "Caja de tornillos 1/2\"", Stock: 500},
			categories: []string{"Ferretería"},
			tiers: []entity.PriceTier{
				{MinQuantity: 1, MaxQuantity: upTo(49), UnitPrice: price("0.50")},
				{MinQuantity: 50, MaxQuantity: upTo(199), UnitPrice: price("0.40")},
				{MinQuantity: 200, UnitPrice: price("0.30")},
			},
		},
		{
			product:    entity.Product{Name: "Gadget", Description: "Organizador multiuso", Stock: 20},
			categories: []string{"Hogar", "Herramientas"},
			tiers: []entity.PriceTier{
				{MinQuantity: 1, UnitPrice: price("25.00")},
			},
		},
	}
}

func paymentMethodFixtures() []entity.PaymentMethod {
	return []entity.PaymentMethod{
		{Name: "Yape", Description: "Pago con Yape al número indicado", AccountNumber: "987654321"},
		{Name: "Plin", Description: "Pago con Plin al número indicado", AccountNumber: "987654321"},
		{Name: "BCP", Description: "Transferencia a cuenta de ahorros BCP", AccountNumber: "191-12345678-0-12"},
	}
}

// Catalog seeds categories, products with tiers and payment methods. Rows are matched by
// name so running it twice changes nothing.
func (s *Seeder) Catalog(ctx context.Context) error {
	var created int
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		categoryIDs := make(map[string]int64)
		for _, name := range categoryFixtures() {
			category := &entity.Category{Name: name}
			inserted, err := ensure(ctx, tx, category, name)
			if err != nil {
				return err
			}
			if inserted {
				created++
			}
			categoryIDs[name] = category.ID
		}

		for _, fixture := range productFixtures() {
			product := fixture.product
			inserted, err := ensure(ctx, tx, &product, product.Name)
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}
			created++

			for _, name := range fixture.categories {
				link := &entity.ProductCategory{ProductID: product.ID, CategoryID: categoryIDs[name]}
				if _, err := tx.NewInsert().Model(link).Exec(ctx); err != nil {
					return err
				}
			}
			tiers := make([]*entity.PriceTier, 0, len(fixture.tiers))
			for i := range fixture.tiers {
				tier := fixture.tiers[i]
				tier.ProductID = product.ID
				tiers = append(tiers, &tier)
			}
			if _, err := tx.NewInsert().Model(&tiers).Exec(ctx); err != nil {
				return err
			}
		}

		for _, method := range paymentMethodFixtures() {
			inserted, err := ensure(ctx, tx, &method, method.Name)
			if err != nil {
				return err
			}
			if inserted {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded catalog", zap.Int("created", created))
	}
	return nil
}

// ensure loads the row named name into model, inserting model when it is missing.
func ensure(ctx context.Context, tx bun.Tx, model any, name string) (bool, error) {
	err := tx.NewSelect().Model(model).Where("name = ?", name).Limit(1).Scan(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if _, err := tx.NewInsert().Model(model).Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}
