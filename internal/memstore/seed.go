package memstore

import (
	"context"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/shopspring/decimal"
)

// SeedDemo loads the same users and products as the Postgres seed
// migration.
func (s *Store) SeedDemo(ctx context.Context) error {
	s.AddUser("admin", orders.RoleAdmin)
	s.AddUser("alice", orders.RoleCustomer)
	s.AddUser("bob", orders.RoleCustomer)

	for _, p := range []orders.Product{
		{Name: "Mechanical Keyboard", Description: "87-key, brown switches", Price: decimal.RequireFromString("89.99"), Stock: 25},
		{Name: "USB-C Hub", Description: "7-in-1", Price: decimal.RequireFromString("34.50"), Stock: 40},
		{Name: "27\" Monitor", Description: "1440p IPS", Price: decimal.RequireFromString("279.00"), Stock: 5},
	} {
		if err := s.CreateProduct(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}
