package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/gobady/internal/database"
	"github.com/Additional-Code/gobady/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/gobady/repository/catalog")

var (
	// ErrNotFound is returned when a catalog row is missing.
	ErrNotFound = errors.New("catalog record not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("catalog record already exists")
	// ErrInUse is returned when a row is still referenced by orders.
	ErrInUse = errors.New("catalog record is referenced")
	// ErrUnknownCategory is returned when a product links to a missing category.
	ErrUnknownCategory = errors.New("unknown category")
)

// Repository encapsulates read/write access for categories, products, tiers, media and payment methods.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

func tiersAscending(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("min_quantity ASC", "id ASC")
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

func translate(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case database.IsUniqueViolation(err):
		return ErrDuplicate
	case database.IsForeignKeyViolation(err):
		return ErrInUse
	default:
		return err
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCategories returns every category ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]*entity.Category, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ListCategories")
	defer span.End()

	var categories []*entity.Category
	if err := r.reader.NewSelect().Model(&categories).Order("name ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	return categories, nil
}

// GetCategory fetches a category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*entity.Category, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetCategory", trace.WithAttributes(attribute.Int64("category.id", id)))
	defer span.End()

	category := new(entity.Category)
	if err := r.reader.NewSelect().Model(category).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fail(span, translate(err), "select failed")
	}
	return category, nil
}

// SaveCategory inserts a category when its id is zero and updates it otherwise.
func (r *Repository) SaveCategory(ctx context.Context, category *entity.Category) error {
	if category == nil {
		return errors.New("nil category")
	}
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.SaveCategory")
	defer span.End()

	if category.ID == 0 {
		if _, err := r.writer.NewInsert().Model(category).Exec(ctx); err != nil {
			return fail(span, translate(err), "insert failed")
		}
		return nil
	}
	res, err := r.writer.NewUpdate().Model(category).Column("name").WherePK().Exec(ctx)
	if err != nil {
		return fail(span, translate(err), "update failed")
	}
	return requireAffected(res)
}

// DeleteCategory removes a category and its product links.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.DeleteCategory", trace.WithAttributes(attribute.Int64("category.id", id)))
	defer span.End()

	return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.ProductCategory)(nil)).Where("category_id = ?", id).Exec(ctx); err != nil {
			return fail(span, translate(err), "unlink failed")
		}
		res, err := tx.NewDelete().Model((*entity.Category)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fail(span, translate(err), "delete failed")
		}
		return requireAffected(res)
	})
}

func (r *Repository) productQuery(db bun.IDB, products any) *bun.SelectQuery {
	return db.NewSelect().
		Model(products).
		Relation("Categories").
		Relation("Tiers", tiersAscending).
		Relation("Media")
}

// ListProducts returns products with their categories, tiers and media. A non-empty search
// matches the product name or the name of any of its categories, case-insensitively.
func (r *Repository) ListProducts(ctx context.Context, search string) ([]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ListProducts", trace.WithAttributes(attribute.String("catalog.search", search)))
	defer span.End()

	var products []*entity.Product
	q := r.productQuery(r.reader, &products).OrderExpr("?TableAlias.id ASC")
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		byCategory := r.reader.NewSelect().
			TableExpr("product_categories AS pc").
			ColumnExpr("pc.product_id").
			Join("JOIN categories AS c ON c.id = pc.category_id").
			Where("LOWER(c.name) LIKE ?", pattern)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(?TableAlias.name) LIKE ?", pattern).
				WhereOr("?TableAlias.id IN (?)", byCategory)
		})
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	return products, nil
}

// GetProduct fetches a product with its relations.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	if err := r.productQuery(r.reader, product).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, fail(span, translate(err), "select failed")
	}
	return product, nil
}

// ProductStock returns only the stock column of a product.
func (r *Repository) ProductStock(ctx context.Context, id int64) (int, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ProductStock", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	var stock int
	err := r.reader.NewSelect().Model((*entity.Product)(nil)).Column("stock").Where("id = ?", id).Scan(ctx, &stock)
	if err != nil {
		return 0, fail(span, translate(err), "select failed")
	}
	return stock, nil
}

// SaveProduct inserts or updates a product and replaces its category links in one transaction.
func (r *Repository) SaveProduct(ctx context.Context, product *entity.Product, categoryIDs []int64) error {
	if product == nil {
		return errors.New("nil product")
	}
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.SaveProduct", trace.WithAttributes(attribute.String("product.name", product.Name)))
	defer span.End()

	return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if product.ID == 0 {
			if _, err := tx.NewInsert().Model(product).Exec(ctx); err != nil {
				return fail(span, translate(err), "insert failed")
			}
		} else {
			res, err := tx.NewUpdate().Model(product).Column("name", "description", "stock").WherePK().Exec(ctx)
			if err != nil {
				return fail(span, translate(err), "update failed")
			}
			if err := requireAffected(res); err != nil {
				return err
			}
			if _, err := tx.NewDelete().Model((*entity.ProductCategory)(nil)).Where("product_id = ?", product.ID).Exec(ctx); err != nil {
				return fail(span, err, "unlink failed")
			}
		}

		if len(categoryIDs) == 0 {
			return nil
		}
		links := make([]*entity.ProductCategory, 0, len(categoryIDs))
		seen := make(map[int64]struct{}, len(categoryIDs))
		for _, id := range categoryIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			links = append(links, &entity.ProductCategory{ProductID: product.ID, CategoryID: id})
		}
		if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
			if database.IsForeignKeyViolation(err) {
				return fail(span, ErrUnknownCategory, "unknown category")
			}
			return fail(span, err, "link failed")
		}
		return nil
	})
}

// DeleteProduct removes a product together with its tiers, media and category links.
// Products referenced by order lines are kept and ErrInUse is returned.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.DeleteProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	return r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []any{
			(*entity.ProductCategory)(nil),
			(*entity.PriceTier)(nil),
			(*entity.MediaAsset)(nil),
		} {
			if _, err := tx.NewDelete().Model(model).Where("product_id = ?", id).Exec(ctx); err != nil {
				return fail(span, translate(err), "cascade failed")
			}
		}
		res, err := tx.NewDelete().Model((*entity.Product)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fail(span, translate(err), "delete failed")
		}
		return requireAffected(res)
	})
}

// SaveTier inserts or updates a price tier.
func (r *Repository) SaveTier(ctx context.Context, tier *entity.PriceTier) error {
	if tier == nil {
		return errors.New("nil tier")
	}
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.SaveTier", trace.WithAttributes(attribute.Int64("product.id", tier.ProductID)))
	defer span.End()

	if tier.ID == 0 {
		if _, err := r.writer.NewInsert().Model(tier).Exec(ctx); err != nil {
			if database.IsForeignKeyViolation(err) {
				return fail(span, ErrNotFound, "unknown product")
			}
			return fail(span, err, "insert failed")
		}
		return nil
	}
	res, err := r.writer.NewUpdate().Model(tier).Column("min_quantity", "max_quantity", "unit_price").WherePK().Exec(ctx)
	if err != nil {
		return fail(span, translate(err), "update failed")
	}
	return requireAffected(res)
}

// GetTier fetches a price tier by id.
func (r *Repository) GetTier(ctx context.Context, id int64) (*entity.PriceTier, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetTier", trace.WithAttributes(attribute.Int64("tier.id", id)))
	defer span.End()

	tier := new(entity.PriceTier)
	if err := r.reader.NewSelect().Model(tier).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fail(span, translate(err), "select failed")
	}
	return tier, nil
}

// DeleteTier removes a price tier.
func (r *Repository) DeleteTier(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.DeleteTier", trace.WithAttributes(attribute.Int64("tier.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.PriceTier)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fail(span, err, "delete failed")
	}
	return requireAffected(res)
}

// AddMedia records a hosted asset for a product.
func (r *Repository) AddMedia(ctx context.Context, media *entity.MediaAsset) error {
	if media == nil {
		return errors.New("nil media")
	}
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.AddMedia", trace.WithAttributes(attribute.Int64("product.id", media.ProductID)))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(media).Exec(ctx); err != nil {
		if database.IsForeignKeyViolation(err) {
			return fail(span, ErrNotFound, "unknown product")
		}
		return fail(span, err, "insert failed")
	}
	return nil
}

// DeleteMedia removes a media reference. The hosted file itself is left untouched.
func (r *Repository) DeleteMedia(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.DeleteMedia", trace.WithAttributes(attribute.Int64("media.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.MediaAsset)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fail(span, err, "delete failed")
	}
	return requireAffected(res)
}

// ListPaymentMethods returns every payment method ordered by name.
func (r *Repository) ListPaymentMethods(ctx context.Context) ([]*entity.PaymentMethod, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ListPaymentMethods")
	defer span.End()

	var methods []*entity.PaymentMethod
	if err := r.reader.NewSelect().Model(&methods).Order("name ASC").Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	return methods, nil
}

// GetPaymentMethod fetches a payment method by id.
func (r *Repository) GetPaymentMethod(ctx context.Context, id int64) (*entity.PaymentMethod, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.GetPaymentMethod", trace.WithAttributes(attribute.Int64("payment_method.id", id)))
	defer span.End()

	method := new(entity.PaymentMethod)
	if err := r.reader.NewSelect().Model(method).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fail(span, translate(err), "select failed")
	}
	return method, nil
}

// SavePaymentMethod inserts or updates a payment method. Names are unique.
func (r *Repository) SavePaymentMethod(ctx context.Context, method *entity.PaymentMethod) error {
	if method == nil {
		return errors.New("nil payment method")
	}
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.SavePaymentMethod", trace.WithAttributes(attribute.String("payment_method.name", method.Name)))
	defer span.End()

	if method.ID == 0 {
		if _, err := r.writer.NewInsert().Model(method).Exec(ctx); err != nil {
			return fail(span, translate(err), "insert failed")
		}
		return nil
	}
	res, err := r.writer.NewUpdate().Model(method).ExcludeColumn("id").WherePK().Exec(ctx)
	if err != nil {
		return fail(span, translate(err), "update failed")
	}
	return requireAffected(res)
}

// DeletePaymentMethod removes a payment method not referenced by any order.
func (r *Repository) DeletePaymentMethod(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.DeletePaymentMethod", trace.WithAttributes(attribute.Int64("payment_method.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.PaymentMethod)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fail(span, translate(err), "delete failed")
	}
	return requireAffected(res)
}
