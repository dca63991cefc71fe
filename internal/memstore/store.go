// Package memstore is an in-process implementation of the order and
// catalog storage contracts. Each product has its own hold, taken in
// ascending id order and released at commit or rollback, so it gives the
// same no-oversell guarantees as the Postgres store within one process.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/orderstream/internal/orders"
)

var errNoHold = errors.New("memstore: stock change without a hold")

type Store struct {
	mu       sync.RWMutex
	products map[int64]orders.Product
	holds    map[int64]chan struct{}
	orders   map[int64]*orders.Order
	users    map[string]orders.User

	nextProductID int64
	nextOrderID   int64
	nextLineID    int64
	nextUserID    int64

	// BeforeCommit is a fault-injection seam for tests. When set, it runs
	// with the transaction's order just before the commit is applied, and a
	// non-nil error rolls the transaction back. Production wiring never sets
	// it.
	BeforeCommit func(o *orders.Order) error
}

func New() *Store {
	return &Store{
		products: map[int64]orders.Product{},
		holds:    map[int64]chan struct{}{},
		orders:   map[int64]*orders.Order{},
		users:    map[string]orders.User{},
	}
}

// AddUser registers a user and returns it with its id set.
func (s *Store) AddUser(username string, role orders.Role) orders.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u := orders.User{ID: s.nextUserID, Username: username, Role: role}
	s.users[username] = u
	return u
}

func (s *Store) UserByUsername(_ context.Context, username string) (orders.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return orders.User{}, orders.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) hold(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		h = make(chan struct{}, 1)
		s.holds[id] = h
	}
	return h
}

func (s *Store) acquire(ctx context.Context, id int64) error {
	h := s.hold(id)
	select {
	case h <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release(id int64) { <-s.hold(id) }

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	t := &tx{s: s, held: map[int64]bool{}, stock: map[int64]int{}}
	defer t.releaseAll()

	if err := fn(t); err != nil {
		return err
	}
	// A caller that went away before commit gets a full rollback.
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.placed != nil && s.BeforeCommit != nil {
		if err := s.BeforeCommit(t.placed); err != nil {
			return err
		}
	}
	t.commit()
	return nil
}

// tx stages stock changes and the new order until commit.
type tx struct {
	s        *Store
	held     map[int64]bool
	acquired []int64
	stock    map[int64]int
	placed   *orders.Order
}

func (t *tx) LockProducts(ctx context.Context, ids []int64) (map[int64]orders.Product, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[int64]orders.Product, len(sorted))
	for _, id := range sorted {
		if !t.held[id] {
			if !t.s.exists(id) {
				continue
			}
			if err := t.s.acquire(ctx, id); err != nil {
				return nil, err
			}
			t.held[id] = true
			t.acquired = append(t.acquired, id)
		}
		// Read after the hold so the committed state of any earlier
		// holder is visible.
		p, ok := t.s.product(id)
		if !ok {
			continue
		}
		if st, staged := t.stock[id]; staged {
			p.Stock = st
		}
		out[id] = p
	}
	return out, nil
}

func (t *tx) DecreaseStock(_ context.Context, id int64, qty int) (int, error) {
	if !t.held[id] {
		return 0, fmt.Errorf("%w: product %d", errNoHold, id)
	}
	p, ok := t.s.product(id)
	if !ok {
		return 0, &orders.ProductNotFoundError{IDs: []int64{id}}
	}
	cur := p.Stock
	if st, staged := t.stock[id]; staged {
		cur = st
	}
	if qty > cur {
		return 0, &orders.InsufficientStockError{ProductID: id, Name: p.Name, Requested: qty, Available: cur}
	}
	t.stock[id] = cur - qty
	return cur - qty, nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	t.s.mu.Lock()
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	for i := range o.Lines {
		t.s.nextLineID++
		o.Lines[i].ID = t.s.nextLineID
		o.Lines[i].OrderID = o.ID
	}
	t.s.mu.Unlock()
	t.placed = o
	return nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	now := time.Now().UTC()
	for id, st := range t.stock {
		p := t.s.products[id]
		p.Stock = st
		p.UpdatedAt = now
		t.s.products[id] = p
	}
	if t.placed != nil {
		t.s.orders[t.placed.ID] = cloneOrder(t.placed)
	}
}

func (t *tx) releaseAll() {
	for i := len(t.acquired) - 1; i >= 0; i-- {
		t.s.release(t.acquired[i])
	}
	t.acquired = nil
}

func (s *Store) exists(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.products[id]
	return ok
}

func (s *Store) product(id int64) (orders.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) OrderByID(_ context.Context, id int64) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) (orders.PageResult, error) {
	page := f.Page.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Stored orders are mutated in place by SaveOrderStatus, so the page is
	// cloned before the read lock is released.
	matched := make([]*orders.Order, 0)
	for _, o := range s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	res := orders.EmptyPage(page)
	res.Total = len(matched)
	for i := page.Offset(); i < len(matched) && len(res.Items) < page.Size; i++ {
		res.Items = append(res.Items, *cloneOrder(matched[i]))
	}
	return res, nil
}

func (s *Store) SaveOrderStatus(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	return nil
}

// Snapshot returns the committed stock of every product, for tests and
// diagnostics.
func (s *Store) Snapshot() map[int64]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int, len(s.products))
	for id, p := range s.products {
		out[id] = p.Stock
	}
	return out
}

func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func cloneOrder(o *orders.Order) *orders.Order {
	c := *o
	c.Lines = append([]orders.Line(nil), o.Lines...)
	return &c
}
