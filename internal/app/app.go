package app

import (
	"context"
	"net/http"
	"os"

	"github.com/lucsky/cuid"

	"marketplace-relay/internal/circuitbreaker"
	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/config"
	"marketplace-relay/internal/credential"
	"marketplace-relay/internal/metrics"
	"marketplace-relay/internal/notify"
	"marketplace-relay/internal/proxy"
	"marketplace-relay/internal/redis"
	"marketplace-relay/internal/storage"
	"marketplace-relay/internal/yemeksepeti"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Logger      logging.Logger
	Metrics     *metrics.Metrics
	Store       storage.OrderStore
	RedisClient *redis.Client
	Hub         *notify.Hub
	Broker      *notify.RedisBroker
	Dispatcher  *notify.Dispatcher
	Guard       *credential.Guard
	Refresher   *credential.Refresher
	Proxy       *proxy.Proxy
	Yemeksepeti *yemeksepeti.Client
	InstanceID  string

	httpClient *http.Client
}

// New creates a new application instance with all dependencies. Optional
// integrations that fail to connect are logged and left disabled; only the
// order store is mandatory.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:     cfg,
		Logger:     logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
		Metrics:    metrics.New(),
		InstanceID: instanceID(),
		httpClient: commonhttp.NewHTTPClientWithTimeout(cfg.UpstreamTimeout),
	}

	if err := app.initializeStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		app.Logger.Warn("Redis initialization failed, continuing without cross-instance fan-out", logging.Err(err))
	}

	app.initializeNotifier(ctx)

	if err := app.initializeCredential(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.Proxy = proxy.New(cfg.GetirBaseURL, app.httpClient, app.Guard, logging.GetGlobalLogger(),
		proxy.WithObserver(app.Metrics))
	app.Yemeksepeti = yemeksepeti.NewClient(cfg.YemeksepetiBaseURL, app.httpClient, app.Metrics, logging.GetGlobalLogger())

	return app, nil
}

func (app *App) initializeCredential() error {
	cfg := app.Config
	logger := logging.GetGlobalLogger()

	acquirer := credential.NewHTTPAcquirer(cfg.GetirBaseURL, app.httpClient, logger,
		credential.WithValidity(cfg.TokenValidity),
		credential.WithBreaker(circuitbreaker.New("getir-login", circuitbreaker.LoginConfig, logger)),
	)
	secrets := credential.Secrets{
		AppSecretKey:        cfg.GetirAppSecret,
		RestaurantSecretKey: cfg.GetirRestaurantSecret,
	}
	app.Guard = credential.NewGuard(credential.NewMemoryCache(), acquirer, secrets, logger,
		credential.WithFlightTimeout(cfg.UpstreamTimeout),
		credential.WithObserver(app.Metrics),
	)

	if !app.Guard.Configured() {
		app.Logger.Warn("Getir partner secrets not set, cached-credential routes will answer 503")
		return nil
	}

	refresher, err := credential.NewRefresher(app.Guard, cfg.RefreshSchedule, cfg.UpstreamTimeout, logger)
	if err != nil {
		return err
	}
	app.Refresher = refresher
	app.Logger.Info("Getir cached credential enabled",
		logging.Secret("app_secret", cfg.GetirAppSecret),
		logging.String("schedule", cfg.RefreshSchedule),
		logging.Duration("validity", cfg.TokenValidity),
	)
	return nil
}

// Start begins background work: the credential refresher
func (app *App) Start() {
	if app.Refresher != nil {
		app.Refresher.Start()
	}
}

// Shutdown stops background work, waiting at most until ctx is done
func (app *App) Shutdown(ctx context.Context) error {
	if app.Refresher != nil {
		app.Refresher.Stop(ctx)
		app.Logger.Info("Credential refresher stopped")
	}
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Dispatcher != nil {
		app.Dispatcher.Close()
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Closing Redis client", logging.Err(err))
		}
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn("Closing order store", logging.Err(err))
		}
	}
}

// instanceID names this process in emitted events
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return host + "-" + cuid.Slug()
}
