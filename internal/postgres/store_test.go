package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var alice = orders.Principal{Username: "alice"}

// testPool connects to POSTGRES_TEST_DSN and applies the migrations, which
// also seed the demo users.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn, 16)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func newService(store orders.Store) *orders.Service {
	return &orders.Service{Store: store, Logger: zap.NewNop()}
}

func createProduct(t *testing.T, pool *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()
	p := orders.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, NewProductRepo(pool).CreateProduct(context.Background(), &p))
	return p.ID
}

func stockOf(t *testing.T, pool *pgxpool.Pool, id int64) int {
	t.Helper()
	p, err := NewProductRepo(pool).GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// linesFor counts order_items rows that reference the product.
func linesFor(t *testing.T, pool *pgxpool.Pool, id int64) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM order_items WHERE product_id = $1`, id).Scan(&n))
	return n
}

func orderCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM orders`).Scan(&n))
	return n
}

func items(pairs ...int64) orders.PlaceOrderInput {
	var in orders.PlaceOrderInput
	for i := 0; i+1 < len(pairs); i += 2 {
		in.Items = append(in.Items, orders.ItemInput{ProductID: pairs[i], Quantity: int(pairs[i+1])})
	}
	return in
}

func TestPlaceOrder_TwoBuyersForFiveUnits(t *testing.T) {
	pool := testPool(t)
	svc := newService(NewStore(pool))
	id := createProduct(t, pool, "Monitor", "279.00", 5)

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.PlaceOrder(context.Background(), alice, items(id, 3))
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, orders.ErrInsufficientStock):
			short++
			var ise *orders.InsufficientStockError
			require.ErrorAs(t, err, &ise)
			assert.Equal(t, 2, ise.Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, stockOf(t, pool, id))
	assert.Equal(t, 1, linesFor(t, pool, id))
}

func TestPlaceOrder_UnknownProductChangesNothing(t *testing.T) {
	pool := testPool(t)
	svc := newService(NewStore(pool))
	id := createProduct(t, pool, "Keyboard", "89.99", 10)

	var missing int64
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COALESCE(MAX(id), 0) + 1000 FROM products`).Scan(&missing))
	before := orderCount(t, pool)

	_, err := svc.PlaceOrder(context.Background(), alice, items(id, 1, missing, 1))
	var nf *orders.ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []int64{missing}, nf.IDs)

	assert.Equal(t, 10, stockOf(t, pool, id))
	assert.Equal(t, before, orderCount(t, pool))
	assert.Zero(t, linesFor(t, pool, id))
}

// failingStore aborts every transaction right after the order rows have
// been written.
type failingStore struct {
	*Store
}

func (s failingStore) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx orders.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	orders.Tx
}

func (t failingTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	if err := t.Tx.InsertOrder(ctx, o); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func TestPlaceOrder_StorageFailureRollsBack(t *testing.T) {
	pool := testPool(t)
	svc := newService(failingStore{Store: NewStore(pool)})
	kb := createProduct(t, pool, "Keyboard", "89.99", 10)
	hub := createProduct(t, pool, "USB-C Hub", "34.50", 4)
	before := orderCount(t, pool)

	_, err := svc.PlaceOrder(context.Background(), alice, items(kb, 4, hub, 2))
	require.ErrorIs(t, err, orders.ErrPersistence)

	assert.Equal(t, 10, stockOf(t, pool, kb))
	assert.Equal(t, 4, stockOf(t, pool, hub))
	assert.Equal(t, before, orderCount(t, pool))
	assert.Zero(t, linesFor(t, pool, kb))
	assert.Zero(t, linesFor(t, pool, hub))
}

func TestOrderByID_RoundTrip(t *testing.T) {
	pool := testPool(t)
	store := NewStore(pool)
	svc := newService(store)
	ctx := context.Background()
	kb := createProduct(t, pool, "Keyboard", "12.34", 10)
	hub := createProduct(t, pool, "USB-C Hub", "5.05", 10)
	require.Less(t, kb, hub)

	placed, err := svc.PlaceOrder(ctx, alice, items(hub, 1, kb, 2))
	require.NoError(t, err)

	// A later price change must not reach the stored lines.
	repo := NewProductRepo(pool)
	p, err := repo.GetProduct(ctx, kb)
	require.NoError(t, err)
	p.Price = decimal.RequireFromString("99.00")
	require.NoError(t, repo.UpdateProduct(ctx, &p))

	got, err := store.OrderByID(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, "29.73", got.Total.StringFixed(orders.MoneyScale))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, hub, got.Lines[0].ProductID)
	assert.Equal(t, "USB-C Hub", got.Lines[0].ProductName)
	assert.True(t, decimal.RequireFromString("5.05").Equal(got.Lines[0].UnitPrice))
	assert.Equal(t, kb, got.Lines[1].ProductID)
	assert.Equal(t, 2, got.Lines[1].Quantity)
	assert.True(t, decimal.RequireFromString("12.34").Equal(got.Lines[1].UnitPrice))
	for i, l := range got.Lines {
		assert.Equal(t, placed.Lines[i].ID, l.ID)
		assert.Equal(t, placed.ID, l.OrderID)
	}

	_, err = store.OrderByID(ctx, placed.ID+1_000_000)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestPlaceOrder_OpposingOrdersDoNotDeadlock(t *testing.T) {
	pool := testPool(t)
	svc := newService(NewStore(pool))
	a := createProduct(t, pool, "A", "1.00", 100)
	b := createProduct(t, pool, "B", "1.00", 100)

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := items(a, 1, b, 1)
			if i%2 == 1 {
				in = items(b, 1, a, 1)
			}
			_, err := svc.PlaceOrder(context.Background(), alice, in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 100-n, stockOf(t, pool, a))
	assert.Equal(t, 100-n, stockOf(t, pool, b))
}
