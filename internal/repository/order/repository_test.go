package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/database"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/internal/migration"
)

// openStore migrates a private in-memory sqlite database. A single connection keeps
// every query on the same memory database.
func openStore(t *testing.T) (*Repository, *database.Connections) {
	t.Helper()
	cfg := config.Config{Database: config.Database{
		Driver:       "sqlite",
		WriterDSN:    ":memory:",
		ReaderDSN:    ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}}

	lc := fxtest.NewLifecycle(t)
	conns, err := database.New(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(func() { lc.RequireStop() })

	mig, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mig.Up(context.Background()))

	return NewRepository(conns), conns
}

type fixture struct {
	widget   *entity.Product
	gadget   *entity.Product
	method   *entity.PaymentMethod
	upToNine int
}

func seed(t *testing.T, conns *database.Connections) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{upToNine: 9}

	f.method = &entity.PaymentMethod{Name: "Yape", AccountNumber: "987654321"}
	f.widget = &entity.Product{Name: "Widget", Stock: 5}
	f.gadget = &entity.Product{Name: "Gadget", Stock: 2}
	for _, model := range []any{f.method, f.widget, f.gadget} {
		_, err := conns.Writer.NewInsert().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	tiers := []*entity.PriceTier{
		{ProductID: f.widget.ID, MinQuantity: 10, UnitPrice: decimal.RequireFromString("8.00")},
		{ProductID: f.widget.ID, MinQuantity: 1, MaxQuantity: &f.upToNine, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: f.gadget.ID, MinQuantity: 1, UnitPrice: decimal.RequireFromString("25.50")},
	}
	_, err := conns.Writer.NewInsert().Model(&tiers).Exec(ctx)
	require.NoError(t, err)
	return f
}

func stockOf(t *testing.T, conns *database.Connections, id int64) int {
	t.Helper()
	var stock int
	err := conns.Reader.NewSelect().Model((*entity.Product)(nil)).Column("stock").Where("id = ?", id).Scan(context.Background(), &stock)
	require.NoError(t, err)
	return stock
}

func countOrders(t *testing.T, conns *database.Connections) (orders, lines int) {
	t.Helper()
	ctx := context.Background()
	orders, err := conns.Reader.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	require.NoError(t, err)
	lines, err = conns.Reader.NewSelect().Model((*entity.OrderLine)(nil)).Count(ctx)
	require.NoError(t, err)
	return orders, lines
}

func newOrder(code string, methodID int64) *entity.Order {
	return &entity.Order{
		Code:            code,
		Name:            "Ana",
		Surname:         "Quispe",
		Email:           "ana@example.com",
		Total:           decimal.RequireFromString("30.00"),
		PaymentMethodID: methodID,
	}
}

type lineQty struct {
	productID int64
	quantity  int
}

// commit runs the same sequence of writes the order service performs, in line order.
func commit(ctx context.Context, r *Repository, order *entity.Order, items ...lineQty) error {
	return r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		lines := make([]*entity.OrderLine, 0, len(items))
		for _, item := range items {
			if err := tx.DecrementStock(ctx, item.productID, item.quantity); err != nil {
				return err
			}
			lines = append(lines, &entity.OrderLine{
				OrderID:   order.ID,
				ProductID: item.productID,
				Quantity:  item.quantity,
				UnitPrice: decimal.RequireFromString("10.00"),
			})
		}
		return tx.InsertLines(ctx, lines)
	})
}

func TestNewRepositorySkipsRowLocksOnSQLite(t *testing.T) {
	r, _ := openStore(t)
	assert.False(t, r.lockRows)
}

func TestLockProductsLoadsTiersInAscendingOrder(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	err := r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, []int64{f.gadget.ID, f.widget.ID, 999})
		require.NoError(t, err)
		require.Len(t, products, 2)

		widget := products[f.widget.ID]
		require.Len(t, widget.Tiers, 2)
		assert.Equal(t, 1, widget.Tiers[0].MinQuantity)
		assert.Equal(t, 10, widget.Tiers[1].MinQuantity)
		assert.Equal(t, 5, widget.Stock)
		assert.Len(t, products[f.gadget.ID].Tiers, 1)

		empty, err := tx.LockProducts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
		return nil
	})
	require.NoError(t, err)
}

func TestWithinTxCommitsOrderLinesAndStock(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	order := newOrder("04821", f.method.ID)
	require.NoError(t, commit(ctx, r, order, lineQty{f.widget.ID, 3}, lineQty{f.gadget.ID, 2}))
	assert.NotZero(t, order.ID)

	assert.Equal(t, 2, stockOf(t, conns, f.widget.ID))
	assert.Equal(t, 0, stockOf(t, conns, f.gadget.ID))
	orders, lines := countOrders(t, conns)
	assert.Equal(t, 1, orders)
	assert.Equal(t, 2, lines)
}

func TestDecrementStockIsGuarded(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	err := r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DecrementStock(ctx, f.widget.ID, 6)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var short *StockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, f.widget.ID, short.ProductID)
	assert.Equal(t, 5, short.Available)

	require.NoError(t, r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DecrementStock(ctx, f.widget.ID, 5)
	}))
	assert.Equal(t, 0, stockOf(t, conns, f.widget.ID))

	err = r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DecrementStock(ctx, f.widget.ID, 1)
	})
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 0, short.Available)
	assert.Equal(t, 0, stockOf(t, conns, f.widget.ID))
}

func TestWithinTxRollsBackEveryWrite(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	// The widget decrement succeeds before the gadget one fails.
	err := commit(ctx, r, newOrder("11111", f.method.ID), lineQty{f.widget.ID, 4}, lineQty{f.gadget.ID, 3})
	require.ErrorIs(t, err, ErrInsufficientStock)

	boom := errors.New("line insert failed")
	err = r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		order := newOrder("22222", f.method.ID)
		require.NoError(t, tx.InsertOrder(ctx, order))
		require.NoError(t, tx.DecrementStock(ctx, f.widget.ID, 5))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 5, stockOf(t, conns, f.widget.ID))
	assert.Equal(t, 2, stockOf(t, conns, f.gadget.ID))
	orders, lines := countOrders(t, conns)
	assert.Zero(t, orders)
	assert.Zero(t, lines)
}

func TestOrderCodesAreUnique(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	require.NoError(t, commit(ctx, r, newOrder("04821", f.method.ID), lineQty{f.widget.ID, 1}))

	err := r.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		taken, err := tx.CodeExists(ctx, "04821")
		require.NoError(t, err)
		assert.True(t, taken)

		free, err := tx.CodeExists(ctx, "04822")
		require.NoError(t, err)
		assert.False(t, free)

		return tx.InsertOrder(ctx, newOrder("04821", f.method.ID))
	})
	require.ErrorIs(t, err, ErrDuplicateCode)

	orders, _ := countOrders(t, conns)
	assert.Equal(t, 1, orders)
	assert.Equal(t, 4, stockOf(t, conns, f.widget.ID))
}

func TestGetByCodeLoadsLinesProductsAndPaymentMethod(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	order := newOrder("30517", f.method.ID)
	require.NoError(t, commit(ctx, r, order, lineQty{f.widget.ID, 2}))

	got, err := r.GetByCode(ctx, "30517")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Empty(t, got.NationalID)
	assert.Empty(t, got.Phone)
	require.NotNil(t, got.PaymentMethod)
	assert.Equal(t, "Yape", got.PaymentMethod.Name)
	require.Len(t, got.Lines, 1)
	require.NotNil(t, got.Lines[0].Product)
	assert.Equal(t, "Widget", got.Lines[0].Product.Name)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	assert.Equal(t, "20.00", got.Lines[0].Subtotal().StringFixed(2))
	assert.Equal(t, "30.00", got.Total.StringFixed(2))

	byID, err := r.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "30517", byID.Code)

	_, err = r.GetByCode(ctx, "99999")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	r, conns := openStore(t)
	f := seed(t, conns)
	ctx := context.Background()

	codes := []string{"00001", "00002", "00003", "00004", "00005", "00006", "00007", "00008"}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for _, code := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := commit(ctx, r, newOrder(code, f.method.ID), lineQty{f.widget.ID, 1})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, committed)
	assert.Equal(t, 0, stockOf(t, conns, f.widget.ID))
	orders, _ := countOrders(t, conns)
	assert.Equal(t, 5, orders)
}
