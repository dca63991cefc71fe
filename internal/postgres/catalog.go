package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/orderstream/internal/catalog"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/jackc/pgx/v5"
)

type ProductRepo struct {
	db Conn
	sb sq.StatementBuilderType
}

func NewProductRepo(db Conn) *ProductRepo {
	return &ProductRepo{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (r *ProductRepo) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, catalog.ErrNotFound
	}
	return p, err
}

func (r *ProductRepo) ListProducts(ctx context.Context) ([]orders.Product, error) {
	return r.query(ctx, r.sb.Select(productColumns).From("products").OrderBy("id"))
}

func (r *ProductRepo) ListProductsPaged(ctx context.Context, page orders.Page) ([]orders.Product, int, error) {
	page = page.Normalize()
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	items, err := r.query(ctx, r.sb.Select(productColumns).From("products").
		OrderBy("id").Limit(uint64(page.Size)).Offset(uint64(page.Offset())))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *ProductRepo) LowStockProducts(ctx context.Context, threshold int) ([]orders.Product, error) {
	return r.query(ctx, r.sb.Select(productColumns).From("products").
		Where(sq.Lt{"stock": threshold}).OrderBy("stock", "id"))
}

func (r *ProductRepo) CreateProduct(ctx context.Context, p *orders.Product) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (name, description, price, stock)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.Price.String(), p.Stock,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct blocks behind any placement holding the row lock.
func (r *ProductRepo) UpdateProduct(ctx context.Context, p *orders.Product) error {
	err := r.db.QueryRow(ctx, `
		UPDATE products SET name = $2, description = $3, price = $4::numeric, stock = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price.String(), p.Stock,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepo) DeleteProduct(ctx context.Context, id int64) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *ProductRepo) query(ctx context.Context, q sq.SelectBuilder) ([]orders.Product, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build product query: %w", err)
	}
	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
