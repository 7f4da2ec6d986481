package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/handlers"
	"marketplace-relay/internal/middleware"
	"marketplace-relay/internal/proxy"
)

// maxBodyBytes caps every inbound request body
const maxBodyBytes = 1 << 20

// orderRoutes maps order-scoped operations onto their path suffix
var orderRoutes = []struct {
	op     proxy.Operation
	suffix string
}{
	{proxy.OpVerify, "verify"},
	{proxy.OpVerifyScheduled, "verifyScheduled"},
	{proxy.OpPrepare, "prepare"},
	{proxy.OpDeliver, "deliver"},
	{proxy.OpCancel, "cancel"},
	{proxy.OpCancelOptions, "cancel-options"},
}

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, ws http.Handler, metricsHandler http.Handler) {
	// Service endpoints
	router.HandleFunc("/", h.Root).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	if ws != nil {
		router.Handle("/ws", ws).Methods(http.MethodGet)
	}

	// Getir proxy, authenticated by the caller's token header
	getir := router.PathPrefix("/api/getir").Subrouter()
	registerGetir(getir, h, proxy.SourceClient, true)

	// Getir proxy on the server-side credential
	internal := getir.PathPrefix("/internal").Subrouter()
	registerGetir(internal, h, proxy.SourceCached, false)

	// Getir credential utilities
	getir.HandleFunc("/login", h.GetirLogin).Methods(http.MethodPost)
	getir.HandleFunc("/token", h.GetirToken).Methods(http.MethodGet)

	// Inbound order webhooks
	router.HandleFunc("/getir/add", h.GetirWebhook).Methods(http.MethodPost)
	router.HandleFunc("/yemeksepeti/add", h.YemeksepetiWebhook).Methods(http.MethodPost)
	router.HandleFunc("/yemeksepeti/update", h.YemeksepetiWebhook).Methods(http.MethodPost)
	router.HandleFunc("/yemeksepeti/add/order/{id}", h.YemeksepetiOrderWebhook).Methods(http.MethodPost)
	router.HandleFunc("/webhook/yemeksepeti", h.YemeksepetiStore).Methods(http.MethodPost)
	router.HandleFunc("/migros/add", h.MigrosWebhook("")).Methods(http.MethodPost)
	router.HandleFunc("/migros/cancel", h.MigrosWebhook("cancel")).Methods(http.MethodPost)
	router.HandleFunc("/migros/kurye", h.MigrosWebhook("courier")).Methods(http.MethodPost)

	// Yemeksepeti partner proxy
	router.HandleFunc("/yemeksepeti/login", h.YemeksepetiLogin).Methods(http.MethodPost)
	router.HandleFunc("/order/accept", h.AcceptOrder).Methods(http.MethodPost)
}

// registerGetir adds the proxied operations under r. Restaurant routes
// are only reachable with the caller's own token.
func registerGetir(r *mux.Router, h *handlers.Handlers, source proxy.Source, restaurant bool) {
	for _, route := range orderRoutes {
		endpoint, _ := proxy.Lookup(route.op)
		r.HandleFunc("/orders/{id}/"+route.suffix, h.ProxyOperation(route.op, source)).Methods(endpoint.Method)
	}
	r.HandleFunc("/orders/active", h.ProxyOperation(proxy.OpActiveOrders, source)).Methods(http.MethodPost)

	if !restaurant {
		return
	}
	r.HandleFunc("/restaurants/status/open", h.ProxyOperation(proxy.OpRestaurantOpen, source)).Methods(http.MethodPut)
	r.HandleFunc("/restaurants/status/close", h.ProxyOperation(proxy.OpRestaurantClose, source)).Methods(http.MethodPut)
	r.HandleFunc("/restaurants/menu", h.ProxyOperation(proxy.OpMenu, source)).Methods(http.MethodGet)
}

// Handler builds the complete HTTP handler: the routed API plus the
// outer middleware chain.
func (app *App) Handler() http.Handler {
	logger := logging.GetGlobalLogger()

	checks := map[string]handlers.HealthChecker{"store": app.Store}
	if app.RedisClient != nil {
		checks["redis"] = app.RedisClient
	}

	h := handlers.New(handlers.Deps{
		Proxy:       app.Proxy,
		Tokens:      app.Guard,
		Yemeksepeti: app.Yemeksepeti,
		Emitter:     app.Dispatcher,
		Store:       app.Store,
		Events:      app.Metrics,
		Checks:      checks,
		Logger:      logger,
	})

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.Metrics(app.Metrics))
	SetupRoutes(router, h, app.Hub, app.Metrics.Handler())

	var handler http.Handler = router
	if app.Config.ForwardURL != "" {
		handler = middleware.NewForwarder(app.Config.ForwardURL, app.httpClient, logger).Middleware(handler)
	}
	handler = middleware.MaxBody(maxBodyBytes)(handler)
	if app.Config.RateLimitEnabled {
		limiter := middleware.NewKeyedLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: app.Config.RateLimitRPS,
			BurstSize:         app.Config.RateLimitBurst,
		})
		handler = middleware.RateLimit(limiter, logger)(handler)
	}
	return middleware.CORS(app.Config.CORSAllowedOrigins)(handler)
}
