// Package catalog manages products outside of order placement: lookups,
// admin CRUD and the low-stock report. Writes go through the Repository,
// which may be a cache decorator that invalidates on every write.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultLowStockThreshold = 10

var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidInput = errors.New("invalid product data")
)

type Repository interface {
	GetProduct(ctx context.Context, id int64) (orders.Product, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	ListProductsPaged(ctx context.Context, page orders.Page) ([]orders.Product, int, error)
	CreateProduct(ctx context.Context, p *orders.Product) error
	UpdateProduct(ctx context.Context, p *orders.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	LowStockProducts(ctx context.Context, threshold int) ([]orders.Product, error)
}

type UserLookup interface {
	UserByUsername(ctx context.Context, username string) (orders.User, error)
}

type ProductInput struct {
	Name        string          `json:"name"        validate:"required,max=255"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"       validate:"gte=0"`
}

func (in ProductInput) Validate(v *validator.Validate) error {
	if err := v.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	return nil
}

type ProductPage struct {
	Items  []orders.Product `json:"content"`
	Number int              `json:"page"`
	Size   int              `json:"size"`
	Total  int              `json:"totalElements"`
}

type Service struct {
	repo     Repository
	users    UserLookup
	validate *validator.Validate
	log      *zap.Logger
}

func NewService(repo Repository, users UserLookup, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, users: users, validate: validator.New(), log: log}
}

func (s *Service) Get(ctx context.Context, id int64) (orders.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]orders.Product, error) {
	ps, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	return ps, nil
}

func (s *Service) ListPaged(ctx context.Context, page orders.Page) (ProductPage, error) {
	page = page.Normalize()
	ps, total, err := s.repo.ListProductsPaged(ctx, page)
	if err != nil {
		return ProductPage{}, err
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	return ProductPage{Items: ps, Number: page.Number, Size: page.Size, Total: total}, nil
}

func (s *Service) Create(ctx context.Context, p orders.Principal, in ProductInput) (orders.Product, error) {
	if err := s.requireAdmin(ctx, p); err != nil {
		return orders.Product{}, err
	}
	if err := in.Validate(s.validate); err != nil {
		return orders.Product{}, err
	}
	now := time.Now().UTC()
	prod := orders.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(orders.MoneyScale),
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProduct(ctx, &prod); err != nil {
		return orders.Product{}, err
	}
	s.log.Info("product created", zap.Int64("product_id", prod.ID), zap.String("by", p.Username))
	return prod, nil
}

// Update replaces name, description, price and stock. Existing orders keep
// the prices captured on their lines.
func (s *Service) Update(ctx context.Context, p orders.Principal, id int64, in ProductInput) (orders.Product, error) {
	if err := s.requireAdmin(ctx, p); err != nil {
		return orders.Product{}, err
	}
	if err := in.Validate(s.validate); err != nil {
		return orders.Product{}, err
	}
	prod := orders.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(orders.MoneyScale),
		Stock:       in.Stock,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.UpdateProduct(ctx, &prod); err != nil {
		return orders.Product{}, err
	}
	s.log.Info("product updated", zap.Int64("product_id", id), zap.String("by", p.Username))
	return prod, nil
}

func (s *Service) Delete(ctx context.Context, p orders.Principal, id int64) error {
	if err := s.requireAdmin(ctx, p); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted", zap.Int64("product_id", id), zap.String("by", p.Username))
	return nil
}

func (s *Service) LowStock(ctx context.Context, p orders.Principal, threshold int) ([]orders.Product, error) {
	if err := s.requireAdmin(ctx, p); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	ps, err := s.repo.LowStockProducts(ctx, threshold)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	return ps, nil
}

func (s *Service) requireAdmin(ctx context.Context, p orders.Principal) error {
	if p.Username == "" {
		return orders.ErrUnauthenticated
	}
	u, err := s.users.UserByUsername(ctx, p.Username)
	if err != nil {
		return err
	}
	if !u.IsAdmin() {
		return orders.ErrAccessDenied
	}
	return nil
}
