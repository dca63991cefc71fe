package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/orderstream/internal/orders"
)

// HeaderUser carries the username asserted by the upstream auth gateway.
const HeaderUser = "X-User"

func principal(r *http.Request) orders.Principal {
	return orders.Principal{Username: strings.TrimSpace(r.Header.Get(HeaderUser))}
}

// pageParams reads ?page= (1-based) and ?size=. Missing values get the
// defaults applied by orders.Page.Normalize.
func pageParams(r *http.Request) (orders.Page, bool) {
	var p orders.Page
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, false
		}
		p.Number = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, false
		}
		p.Size = n
	}
	return p.Normalize(), true
}

func idParam(v string) (int64, bool) {
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil && id > 0
}
