package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/ariefcatur/orderstream/internal/catalog"
	"github.com/ariefcatur/orderstream/internal/orders"
)

func (s *Store) GetProduct(_ context.Context, id int64) (orders.Product, error) {
	p, ok := s.product(id)
	if !ok {
		return orders.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]orders.Product, error) {
	return s.sortedProducts(func(orders.Product) bool { return true }), nil
}

func (s *Store) ListProductsPaged(_ context.Context, page orders.Page) ([]orders.Product, int, error) {
	page = page.Normalize()
	all := s.sortedProducts(func(orders.Product) bool { return true })
	start := page.Offset()
	if start >= len(all) {
		return []orders.Product{}, len(all), nil
	}
	end := min(start+page.Size, len(all))
	return all[start:end], len(all), nil
}

func (s *Store) LowStockProducts(_ context.Context, threshold int) ([]orders.Product, error) {
	return s.sortedProducts(func(p orders.Product) bool { return p.Stock < threshold }), nil
}

func (s *Store) CreateProduct(_ context.Context, p *orders.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProductID++
	p.ID = s.nextProductID
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = *p
	return nil
}

// UpdateProduct waits for any in-flight placement holding the product.
func (s *Store) UpdateProduct(ctx context.Context, p *orders.Product) error {
	if !s.exists(p.ID) {
		return catalog.ErrNotFound
	}
	if err := s.acquire(ctx, p.ID); err != nil {
		return err
	}
	defer s.release(p.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = *p
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	if !s.exists(id) {
		return catalog.ErrNotFound
	}
	if err := s.acquire(ctx, id); err != nil {
		return err
	}
	defer s.release(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) sortedProducts(keep func(orders.Product) bool) []orders.Product {
	s.mu.RLock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
