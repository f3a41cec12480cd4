package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/gobady/internal/database"
	"github.com/Additional-Code/gobady/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/gobady/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrInsufficientStock is returned when a guarded stock decrement matches no row.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateCode is returned when the order code is already taken.
	ErrDuplicateCode = errors.New("order code already exists")
)

// StockError reports a guarded decrement that found too little stock. It matches
// ErrInsufficientStock under errors.Is.
type StockError struct {
	ProductID int64
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: %d available", e.ProductID, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

// Tx is the set of writes and locked reads available while an order is being committed.
type Tx interface {
	// LockProducts loads the given products with their tiers, locking the rows in ascending id order.
	LockProducts(ctx context.Context, ids []int64) (map[int64]*entity.Product, error)
	PaymentMethod(ctx context.Context, id int64) (*entity.PaymentMethod, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	InsertOrder(ctx context.Context, order *entity.Order) error
	// DecrementStock subtracts quantity only while enough stock remains, otherwise it
	// returns a *StockError carrying the stock left.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	InsertLines(ctx context.Context, lines []*entity.OrderLine) error
}

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer   *bun.DB
	reader   *bun.DB
	lockRows bool
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
		// sqlite serialises writers and has no row locks.
		lockRows: conns.Writer.Dialect().Name() != dialect.SQLite,
	}
}

// WithinTx runs fn inside a single write transaction. Any error rolls everything back.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.WithinTx")
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txStore{tx: tx, lockRows: r.lockRows})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
	}
	return err
}

// GetByID fetches an order with its lines and payment method using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return r.getBy(ctx, span, "?TableAlias.id = ?", id)
}

// GetByCode fetches an order by its public code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByCode", trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	return r.getBy(ctx, span, "?TableAlias.code = ?", code)
}

func (r *Repository) getBy(ctx context.Context, span trace.Span, where string, arg any) (*entity.Order, error) {
	order := new(entity.Order)
	err := r.reader.NewSelect().
		Model(order).
		Relation("PaymentMethod").
		Relation("Lines", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Relation("Lines.Product").
		Where(where, arg).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

type txStore struct {
	tx       bun.Tx
	lockRows bool
}

func (s *txStore) LockProducts(ctx context.Context, ids []int64) (map[int64]*entity.Product, error) {
	products := make(map[int64]*entity.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	var rows []*entity.Product
	q := s.tx.NewSelect().
		Model(&rows).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		OrderExpr("?TableAlias.id ASC")
	if s.lockRows {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return products, nil
	}

	var tiers []*entity.PriceTier
	err := s.tx.NewSelect().
		Model(&tiers).
		Where("product_id IN (?)", bun.In(ids)).
		Order("product_id ASC", "min_quantity ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range rows {
		products[p.ID] = p
	}
	for _, t := range tiers {
		if p, ok := products[t.ProductID]; ok {
			p.Tiers = append(p.Tiers, t)
		}
	}
	return products, nil
}

func (s *txStore) PaymentMethod(ctx context.Context, id int64) (*entity.PaymentMethod, error) {
	method := new(entity.PaymentMethod)
	err := s.tx.NewSelect().Model(method).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return method, nil
}

func (s *txStore) CodeExists(ctx context.Context, code string) (bool, error) {
	return s.tx.NewSelect().Model((*entity.Order)(nil)).Where("code = ?", code).Exists(ctx)
}

func (s *txStore) InsertOrder(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	_, err := s.tx.NewInsert().Model(order).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateCode
	}
	return err
}

func (s *txStore) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := s.tx.NewUpdate().
		Model((*entity.Product)(nil)).
		Set("stock = stock - ?", quantity).
		Where("id = ?", productID).
		Where("stock >= ?", quantity).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var available int
	err = s.tx.NewSelect().
		Model((*entity.Product)(nil)).
		Column("stock").
		Where("id = ?", productID).
		Scan(ctx, &available)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return &StockError{ProductID: productID, Available: available}
}

func (s *txStore) InsertLines(ctx context.Context, lines []*entity.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := s.tx.NewInsert().Model(&lines).Exec(ctx)
	return err
}
