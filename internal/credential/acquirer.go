package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"marketplace-relay/internal/circuitbreaker"
	"marketplace-relay/internal/common/errors"
	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/common/logging"
)

// LoginPath is the partner endpoint that exchanges secrets for a token
const LoginPath = "/auth/login"

// DefaultValidity is how long an acquired credential is trusted. The partner
// does not report a TTL; tokens are assumed to live 60 minutes.
const DefaultValidity = 55 * time.Minute

// Acquirer trades secrets for a fresh credential. It must not touch any cache.
type Acquirer interface {
	Acquire(ctx context.Context, secrets Secrets) (*Credential, error)
}

// loginRequest is the body sent to the login endpoint
type loginRequest struct {
	AppSecretKey        string `json:"appSecretKey"`
	RestaurantSecretKey string `json:"restaurantSecretKey"`
}

// loginResponse is the subset of the login answer the relay reads.
// restaurantId has been seen both as a string and as a number.
type loginResponse struct {
	Token        string          `json:"token"`
	RestaurantID json.RawMessage `json:"restaurantId"`
}

// HTTPAcquirer performs the login exchange over HTTP
type HTTPAcquirer struct {
	baseURL  string
	client   *http.Client
	breaker  *circuitbreaker.Breaker
	validity time.Duration
	now      func() time.Time
	logger   logging.Logger
}

// AcquirerOption customises an HTTPAcquirer
type AcquirerOption func(*HTTPAcquirer)

// WithValidity overrides DefaultValidity
func WithValidity(validity time.Duration) AcquirerOption {
	return func(a *HTTPAcquirer) {
		if validity > 0 {
			a.validity = validity
		}
	}
}

// WithBreaker routes every login through breaker
func WithBreaker(breaker *circuitbreaker.Breaker) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.breaker = breaker
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) AcquirerOption {
	return func(a *HTTPAcquirer) {
		a.now = now
	}
}

// NewHTTPAcquirer creates an acquirer against baseURL. A nil client gets the
// default bounded-timeout client.
func NewHTTPAcquirer(baseURL string, client *http.Client, logger logging.Logger, opts ...AcquirerOption) *HTTPAcquirer {
	if client == nil {
		client = commonhttp.NewHTTPClient()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	a := &HTTPAcquirer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		validity: DefaultValidity,
		now:      time.Now,
		logger:   logger.WithFields(logging.String("component", "credential_acquirer")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire posts the secrets to the login endpoint. A non-2xx answer is an
// upstream error carrying the partner's status and raw body.
func (a *HTTPAcquirer) Acquire(ctx context.Context, secrets Secrets) (*Credential, error) {
	if secrets.Empty() {
		return nil, errors.ConfigError("partner secrets are not configured")
	}

	var cred *Credential
	call := func() error {
		var err error
		cred, err = a.login(ctx, secrets)
		return err
	}

	var err error
	if a.breaker != nil {
		err = a.breaker.Execute(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (a *HTTPAcquirer) login(ctx context.Context, secrets Secrets) (*Credential, error) {
	payload, err := json.Marshal(loginRequest{
		AppSecretKey:        secrets.AppSecretKey,
		RestaurantSecretKey: secrets.RestaurantSecretKey,
	})
	if err != nil {
		return nil, errors.InternalError("failed to encode login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+LoginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("failed to build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	acquiredAt := a.now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("Login request failed", err, logging.String("url", req.URL.String()))
		return nil, errors.GatewayError("login request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, commonhttp.MaxRelayBody))
	if err != nil {
		return nil, errors.GatewayError("failed to read login response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Warn("Login rejected by partner",
			logging.Int("status", resp.StatusCode),
			logging.String("body", string(body)),
			logging.Secret("app_secret", secrets.AppSecretKey),
		)
		return nil, errors.UpstreamError("login rejected", resp.StatusCode, string(body))
	}

	var parsed loginResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.UpstreamError("login response is not JSON", resp.StatusCode, string(body))
	}
	if parsed.Token == "" {
		return nil, errors.UpstreamError("login response has no token", resp.StatusCode, string(body))
	}

	cred := &Credential{
		Token:        parsed.Token,
		RestaurantID: rawID(parsed.RestaurantID),
		AcquiredAt:   acquiredAt,
		ExpiresAt:    acquiredAt.Add(a.validity),
	}

	a.logger.Info("Acquired partner credential",
		logging.Secret("token", cred.Token),
		logging.String("restaurant_id", cred.RestaurantID),
		logging.Time("expires_at", cred.ExpiresAt),
	)
	return cred, nil
}

// rawID renders a JSON string or number id as plain text
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
