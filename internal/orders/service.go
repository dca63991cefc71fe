package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const DefaultNotifyTimeout = 3 * time.Second

var tracer = otel.Tracer("github.com/ariefcatur/orderstream/internal/orders")

// Service runs order placement and the access-controlled read paths.
type Service struct {
	Store         Store
	Notifier      Notifier
	Cache         CacheInvalidator
	Logger        *zap.Logger
	NotifyTimeout time.Duration
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) resolve(ctx context.Context, p Principal) (User, error) {
	if p.Username == "" {
		return User{}, ErrUnauthenticated
	}
	u, err := s.Store.UserByUsername(ctx, p.Username)
	if err != nil {
		return User{}, persistence("load user", err)
	}
	return u, nil
}

// PlaceOrder locks every requested product, validates all lines, then
// decrements stock and inserts the order in one transaction. The completion
// notification goes out only after commit and never fails the placement.
func (s *Service) PlaceOrder(ctx context.Context, p Principal, in PlaceOrderInput) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.PlaceOrder")
	defer span.End()

	order, err := s.placeOrder(ctx, p, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, p Principal, in PlaceOrderInput) (*Order, error) {
	user, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}
	// requested sums duplicate lines per product; ids is the distinct set.
	requested := make(map[int64]int, len(in.Items))
	ids := make([]int64, 0, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return nil, fmt.Errorf("%w: invalid product id %d", ErrInvalidRequest, it.ProductID)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %d must be positive", ErrInvalidRequest, it.ProductID)
		}
		if _, seen := requested[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var order *Order
	err = s.Store.WithinTx(ctx, func(tx Tx) error {
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return persistence("lock products", err)
		}
		if len(products) != len(ids) {
			missing := make([]int64, 0, len(ids)-len(products))
			for _, id := range ids {
				if _, ok := products[id]; !ok {
					missing = append(missing, id)
				}
			}
			return &ProductNotFoundError{IDs: missing}
		}

		// Validate everything before the first decrement. Lines are checked
		// in request order so the first short line is the one reported.
		checked := make(map[int64]bool, len(ids))
		for _, it := range in.Items {
			id := it.ProductID
			if checked[id] {
				continue
			}
			checked[id] = true
			pr := products[id]
			if pr.Stock < requested[id] {
				return &InsufficientStockError{
					ProductID: id, Name: pr.Name, Requested: requested[id], Available: pr.Stock,
				}
			}
		}

		for _, id := range ids {
			if _, err := tx.DecreaseStock(ctx, id, requested[id]); err != nil {
				return persistence("decrease stock", err)
			}
		}

		drafts := make([]LineDraft, 0, len(in.Items))
		for _, it := range in.Items {
			pr := products[it.ProductID]
			drafts = append(drafts, LineDraft{
				ProductID:   pr.ID,
				ProductName: pr.Name,
				Quantity:    it.Quantity,
				UnitPrice:   pr.Price,
			})
		}
		o, err := Build(user, drafts, s.now())
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return persistence("insert order", err)
		}
		order = o
		return nil
	})
	if err != nil {
		err = persistence("commit order", err)
		if errors.Is(err, ErrPersistence) {
			s.log().Error("order placement failed",
				zap.String("user", user.Username), zap.Error(err))
		} else {
			s.log().Info("order placement rejected",
				zap.String("user", user.Username), zap.Error(err))
		}
		return nil, err
	}

	s.log().Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.String("user", user.Username),
		zap.String("total", order.Total.StringFixed(MoneyScale)),
		zap.Int("lines", len(order.Lines)))

	s.afterCommit(ctx, order, ids)
	return order, nil
}

// afterCommit runs outside the transaction. Its failures are logged only.
func (s *Service) afterCommit(ctx context.Context, o *Order, productIDs []int64) {
	bg := context.WithoutCancel(ctx)
	if s.Cache != nil {
		s.Cache.Invalidate(bg, productIDs...)
	}
	if s.Notifier == nil {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	nctx, cancel := context.WithTimeout(bg, timeout)
	defer cancel()
	if err := s.Notifier.NotifyOrderCompleted(nctx, o.ID); err != nil {
		s.log().Error("order completion notification failed",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

// GetOrder returns the order to its owner or to an admin.
func (s *Service) GetOrder(ctx context.Context, p Principal, id int64) (*Order, error) {
	user, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	o, err := s.Store.OrderByID(ctx, id)
	if err != nil {
		return nil, persistence("load order", err)
	}
	if o.UserID != user.ID && !user.IsAdmin() {
		return nil, ErrAccessDenied
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, p Principal, page Page) (PageResult, error) {
	user, err := s.resolve(ctx, p)
	if err != nil {
		return PageResult{}, err
	}
	return s.list(ctx, ListFilter{UserID: &user.ID, Page: page})
}

func (s *Service) ListAll(ctx context.Context, p Principal, page Page) (PageResult, error) {
	if _, err := s.admin(ctx, p); err != nil {
		return PageResult{}, err
	}
	return s.list(ctx, ListFilter{Page: page})
}

func (s *Service) ListByStatus(ctx context.Context, p Principal, status Status, page Page) (PageResult, error) {
	if _, err := s.admin(ctx, p); err != nil {
		return PageResult{}, err
	}
	if !status.Valid() {
		return PageResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	return s.list(ctx, ListFilter{Status: &status, Page: page})
}

// UpdateStatus is an administrative overwrite; stock is not touched.
func (s *Service) UpdateStatus(ctx context.Context, p Principal, id int64, status Status) (*Order, error) {
	if _, err := s.admin(ctx, p); err != nil {
		return nil, err
	}
	o, err := s.Store.OrderByID(ctx, id)
	if err != nil {
		return nil, persistence("load order", err)
	}
	if err := o.SetStatus(status, s.now()); err != nil {
		return nil, err
	}
	if err := s.Store.SaveOrderStatus(ctx, o); err != nil {
		return nil, persistence("save order status", err)
	}
	s.log().Info("order status updated",
		zap.Int64("order_id", o.ID), zap.String("status", string(status)), zap.String("by", p.Username))
	return o, nil
}

func (s *Service) admin(ctx context.Context, p Principal) (User, error) {
	u, err := s.resolve(ctx, p)
	if err != nil {
		return User{}, err
	}
	if !u.IsAdmin() {
		return User{}, ErrAccessDenied
	}
	return u, nil
}

func (s *Service) list(ctx context.Context, f ListFilter) (PageResult, error) {
	f.Page = f.Page.Normalize()
	res, err := s.Store.ListOrders(ctx, f)
	if err != nil {
		return PageResult{}, persistence("list orders", err)
	}
	if res.Items == nil {
		res.Items = []Order{}
	}
	return res, nil
}

// IsRetryable reports whether the same request may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
