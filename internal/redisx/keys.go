package redisx

import (
	"fmt"
	"time"
)

const (
	// Product cache: product:{id} -> product JSON, or "notfound"
	KeyProduct = "product:%d"

	// All products, ordered by id
	KeyProductsAll = "products:all"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	notFoundMarker = "notfound"
)

var (
	TTLProduct  = 5 * time.Minute
	TTLNotFound = 1 * time.Minute
	TTLDedup    = 48 * time.Hour
)

func productKey(id int64) string { return fmt.Sprintf(KeyProduct, id) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
