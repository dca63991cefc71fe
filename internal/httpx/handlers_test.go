package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ariefcatur/orderstream/internal/catalog"
	"github.com/ariefcatur/orderstream/internal/memstore"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*chi.Mux, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	require.NoError(t, mem.SeedDemo(context.Background()))

	log := zap.NewNop()
	r := NewRouter(log, nil)
	(&OrdersHandler{
		Svc:      &orders.Service{Store: mem, Logger: log},
		Validate: validator.New(),
		Log:      log,
	}).Register(r)
	(&ProductsHandler{Svc: catalog.NewService(mem, mem, log), Log: log}).Register(r)
	return r, mem
}

func do(t *testing.T, h http.Handler, method, target, user, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	rec, _ := do(t, r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPlaceOrderEndpoint(t *testing.T) {
	r, mem := newTestRouter(t)

	rec, body := do(t, r, http.MethodPost, "/api/orders", "", `{"items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", body["error"])

	rec, body = do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":[{"productId":1,"quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "179.98", body["totalAmount"])
	assert.Len(t, body["items"], 1)
	assert.Equal(t, 23, mem.Snapshot()[1])

	rec, body = do(t, r, http.MethodPost, "/api/orders", "ghost", `{"items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", body["error"])
}

func TestPlaceOrderEndpoint_Errors(t *testing.T) {
	r, mem := newTestRouter(t)
	before := mem.Snapshot()

	rec, body := do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":[{"productId":3,"quantity":6}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["error"])
	assert.Equal(t, true, body["retryable"])
	details := body["details"].(map[string]any)
	assert.EqualValues(t, 5, details["available"])
	assert.EqualValues(t, 6, details["requested"])

	rec, body = do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":[{"productId":1,"quantity":1},{"productId":999,"quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", body["error"])
	assert.Equal(t, []any{float64(999)}, body["details"].(map[string]any)["productIds"])
	assert.NotContains(t, body, "retryable")

	rec, _ = do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":[{"productId":1,"quantity":0}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, before, mem.Snapshot())
}

func TestOrderQueries(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, body := do(t, r, http.MethodGet, "/api/orders/my", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["content"])
	assert.EqualValues(t, 0, body["totalElements"])

	rec, body = do(t, r, http.MethodPost, "/api/orders", "alice", `{"items":[{"productId":2,"quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(body["id"].(float64))
	orderURL := "/api/orders/" + jsonInt(id)

	rec, _ = do(t, r, http.MethodGet, orderURL, "alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body = do(t, r, http.MethodGet, orderURL, "bob", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCESS_DENIED", body["error"])
	rec, _ = do(t, r, http.MethodGet, "/api/orders/9999", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, r, http.MethodGet, "/api/orders/abc", "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/orders", "alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, body = do(t, r, http.MethodGet, "/api/orders?page=1&size=5", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["totalElements"])
	assert.EqualValues(t, 5, body["size"])

	rec, _ = do(t, r, http.MethodGet, "/api/orders?page=zero", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, r, http.MethodPut, orderURL+"/status?status=shipped", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SHIPPED", body["status"])
	rec, _ = do(t, r, http.MethodPut, orderURL+"/status?status=shipped", "alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = do(t, r, http.MethodPut, orderURL+"/status?status=lost", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, r, http.MethodGet, "/api/orders/status/SHIPPED", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["content"], 1)
	rec, _ = do(t, r, http.MethodGet, "/api/orders/status/bogus", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	rec, body := do(t, r, http.MethodGet, "/api/products/2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "34.5", body["price"])

	rec, _ = do(t, r, http.MethodGet, "/api/products/77", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, r, http.MethodGet, "/api/products/page?page=2&size=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["totalElements"])
	assert.Len(t, body["content"], 1)

	newProduct := `{"name":"Mouse","description":"wireless","price":"19.99","stock":3}`
	rec, _ = do(t, r, http.MethodPost, "/api/products", "alice", newProduct)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = do(t, r, http.MethodPost, "/api/products", "", newProduct)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = do(t, r, http.MethodPost, "/api/products", "admin", `{"name":"Mouse","price":"0","stock":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, r, http.MethodPost, "/api/products", "admin", newProduct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(body["id"].(float64))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/low-stock", nil)
	req.Header.Set(HeaderUser, "admin")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var low []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &low))
	assert.Len(t, low, 2) // monitor (5) and mouse (3)

	rec, body = do(t, r, http.MethodPut, "/api/products/"+jsonInt(id), "admin", `{"name":"Mouse","price":"24.99","stock":30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 30, body["stock"])

	rec, _ = do(t, r, http.MethodDelete, "/api/products/"+jsonInt(id), "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = do(t, r, http.MethodDelete, "/api/products/"+jsonInt(id), "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonInt(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
