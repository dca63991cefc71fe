package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Numeric columns are read as text and scanned through decimal.Decimal's
// sql.Scanner; numeric parameters are sent as strings.
const productColumns = `id, name, description, price::text, stock, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// WithinTx commits only when fn returns nil. Row locks taken inside fn are
// held until then.
func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

// LockProducts relies on ORDER BY id being applied before FOR UPDATE, so
// row locks are taken in ascending id order.
func (t *ledgerTx) LockProducts(ctx context.Context, ids []int64) (map[int64]orders.Product, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]orders.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *ledgerTx) DecreaseStock(ctx context.Context, id int64, qty int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, id, qty).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("decrease stock %d: %w", id, err)
	}

	var name string
	if err := t.tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, id).Scan(&name, &stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &orders.ProductNotFoundError{IDs: []int64{id}}
		}
		return 0, fmt.Errorf("read stock %d: %w", id, err)
	}
	return 0, &orders.InsufficientStockError{ProductID: id, Name: name, Requested: qty, Available: stock}
}

func (t *ledgerTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id`,
		o.UserID, string(o.Status), o.Total.StringFixed(orders.MoneyScale), o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = o.ID
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)
			RETURNING id`,
			o.ID, i, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice.String(),
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&l.ID)
		})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (orders.User, error) {
	var u orders.User
	var role string
	err := s.pool.QueryRow(ctx, `SELECT id, username, role FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.User{}, orders.ErrUserNotFound
		}
		return orders.User{}, fmt.Errorf("load user %q: %w", username, err)
	}
	u.Role = orders.Role(role)
	return u, nil
}

func (s *Store) OrderByID(ctx context.Context, id int64) (*orders.Order, error) {
	rows, err := s.queryOrders(ctx, s.orderSelect().Where(sq.Eq{"o.id": id}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, orders.ErrOrderNotFound
	}
	if err := s.attachLines(ctx, rows); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) (orders.PageResult, error) {
	page := f.Page.Normalize()

	where := sq.And{}
	if f.UserID != nil {
		where = append(where, sq.Eq{"o.user_id": *f.UserID})
	}
	if f.Status != nil {
		where = append(where, sq.Eq{"o.status": string(*f.Status)})
	}

	countQ := s.sb.Select("COUNT(*)").From("orders o")
	listQ := s.orderSelect().OrderBy("o.id DESC").Limit(uint64(page.Size)).Offset(uint64(page.Offset()))
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}

	res := orders.EmptyPage(page)
	sqlStr, args, err := countQ.ToSql()
	if err != nil {
		return res, fmt.Errorf("build count query: %w", err)
	}
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&res.Total); err != nil {
		return res, fmt.Errorf("count orders: %w", err)
	}
	if res.Total == 0 {
		return res, nil
	}

	items, err := s.queryOrders(ctx, listQ)
	if err != nil {
		return res, err
	}
	if err := s.attachLines(ctx, items); err != nil {
		return res, err
	}
	res.Items = items
	return res, nil
}

func (s *Store) SaveOrderStatus(ctx context.Context, o *orders.Order) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order status %d: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (s *Store) orderSelect() sq.SelectBuilder {
	return s.sb.
		Select("o.id", "o.user_id", "u.username", "o.status", "o.total_amount::text", "o.created_at", "o.updated_at").
		From("orders o").
		Join("users u ON u.id = o.user_id")
}

func (s *Store) queryOrders(ctx context.Context, q sq.SelectBuilder) ([]orders.Order, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var o orders.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Username, &status, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = orders.Status(status)
		o.Lines = []orders.Line{}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) attachLines(ctx context.Context, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	byID := make(map[int64]*orders.Order, len(list))
	for i := range list {
		ids[i] = list[i].ID
		byID[list[i].ID] = &list[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price::text
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l orders.Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o := byID[l.OrderID]; o != nil {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return orders.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}
