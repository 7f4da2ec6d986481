package proxy

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Operation names one partner call the relay can make on a caller's behalf
type Operation string

const (
	OpVerify          Operation = "verify"
	OpVerifyScheduled Operation = "verifyScheduled"
	OpPrepare         Operation = "prepare"
	OpDeliver         Operation = "deliver"
	OpCancel          Operation = "cancel"
	OpCancelOptions   Operation = "cancelOptions"
	OpActiveOrders    Operation = "activeOrders"
	OpRestaurantOpen  Operation = "restaurantOpen"
	OpRestaurantClose Operation = "restaurantClose"
	OpMenu            Operation = "menu"
)

// Endpoint describes how an Operation maps onto the partner API
type Endpoint struct {
	Method string
	// Path is relative to the partner base URL; "{id}" is replaced by the
	// escaped order id.
	Path string
	// SendsBody forwards the inbound JSON body ("{}" when empty). Endpoints
	// without it are sent with no body at all.
	SendsBody bool
	// AllowCached lets the operation run on the server-side credential
	AllowCached bool
	// RequiredFields must be present and non-empty in the inbound body
	RequiredFields []string
}

// NeedsOrderID reports whether the path is scoped to one order
func (e Endpoint) NeedsOrderID() bool {
	return strings.Contains(e.Path, "{id}")
}

// URLPath renders the path for orderID
func (e Endpoint) URLPath(orderID string) string {
	return strings.ReplaceAll(e.Path, "{id}", url.PathEscape(orderID))
}

// Operations is the dispatch table for every proxied partner call
var Operations = map[Operation]Endpoint{
	OpVerify:          {Method: http.MethodPost, Path: "/food-orders/{id}/verify", SendsBody: true, AllowCached: true},
	OpVerifyScheduled: {Method: http.MethodPost, Path: "/food-orders/{id}/verify-scheduled", SendsBody: true, AllowCached: true},
	OpPrepare:         {Method: http.MethodPost, Path: "/food-orders/{id}/prepare", SendsBody: true, AllowCached: true},
	OpDeliver:         {Method: http.MethodPost, Path: "/food-orders/{id}/deliver", SendsBody: true, AllowCached: true},
	OpCancel: {
		Method:         http.MethodPost,
		Path:           "/food-orders/{id}/cancel",
		SendsBody:      true,
		AllowCached:    true,
		RequiredFields: []string{"cancelReasonId"},
	},
	OpCancelOptions:   {Method: http.MethodGet, Path: "/food-orders/{id}/cancel-options", AllowCached: true},
	OpActiveOrders:    {Method: http.MethodPost, Path: "/food-orders/active", AllowCached: true},
	OpRestaurantOpen:  {Method: http.MethodPut, Path: "/restaurants/status/open"},
	OpRestaurantClose: {Method: http.MethodPut, Path: "/restaurants/status/close", SendsBody: true},
	OpMenu:            {Method: http.MethodGet, Path: "/restaurants/menu"},
}

// Lookup returns the endpoint for op
func Lookup(op Operation) (Endpoint, bool) {
	e, ok := Operations[op]
	return e, ok
}

// CachedOperations lists the operations allowed on the server-side
// credential, sorted by name.
func CachedOperations() []Operation {
	ops := make([]Operation, 0, len(Operations))
	for op, e := range Operations {
		if e.AllowCached {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
