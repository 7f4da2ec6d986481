// Package handlers implements the relay's inbound HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"marketplace-relay/internal/common/errors"
	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/credential"
	"marketplace-relay/internal/notify"
	"marketplace-relay/internal/proxy"
	"marketplace-relay/internal/storage"
)

// Invoker runs proxied Getir calls
type Invoker interface {
	Invoke(ctx context.Context, req proxy.Request) (commonhttp.Result, error)
	Login(ctx context.Context, payload []byte) (commonhttp.Result, error)
}

// TokenSource exposes the server-side Getir credential
type TokenSource interface {
	EnsureFresh(ctx context.Context) (*credential.Credential, error)
	Current() *credential.Credential
	Configured() bool
}

// YemeksepetiClient relays Yemeksepeti partner calls
type YemeksepetiClient interface {
	Login(ctx context.Context, username, password string) (commonhttp.Result, error)
	AcceptOrder(ctx context.Context, authorization string, payload []byte) (commonhttp.Result, error)
}

// EventObserver counts emitted order events
type EventObserver interface {
	ObserveEvent(platform string)
}

// HealthChecker is one dependency reported by /health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps groups everything the handlers talk to. Store, Events and
// Checks are optional.
type Deps struct {
	Proxy       Invoker
	Tokens      TokenSource
	Yemeksepeti YemeksepetiClient
	Emitter     notify.Emitter
	Store       storage.OrderStore
	Events      EventObserver
	Checks      map[string]HealthChecker
	Logger      logging.Logger
}

type Handlers struct {
	proxy       Invoker
	tokens      TokenSource
	yemeksepeti YemeksepetiClient
	emitter     notify.Emitter
	store       storage.OrderStore
	events      EventObserver
	checks      map[string]HealthChecker
	logger      logging.Logger
}

func New(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		proxy:       deps.Proxy,
		tokens:      deps.Tokens,
		yemeksepeti: deps.Yemeksepeti,
		emitter:     deps.Emitter,
		store:       deps.Store,
		events:      deps.Events,
		checks:      deps.Checks,
		logger:      logger,
	}
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

func (h *Handlers) sendJSONError(w http.ResponseWriter, status int, message string) {
	h.sendJSONResponse(w, status, map[string]string{"error": message})
}

// sendAppError renders err with its mapped status and its own message
func (h *Handlers) sendAppError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	message := http.StatusText(status)
	if appErr, ok := errors.As(err); ok && appErr.Message != "" {
		message = appErr.Message
	}
	h.sendJSONError(w, status, message)
}

// sendBodyError answers a failed body read: 413 past the size cap, 400
// otherwise.
func (h *Handlers) sendBodyError(w http.ResponseWriter, err error) {
	if commonhttp.IsBodyTooLarge(err) {
		h.sendJSONError(w, http.StatusRequestEntityTooLarge, commonhttp.MsgBodyTooLarge)
		return
	}
	proxy.ErrorResult(errors.CallerError(proxy.MsgInvalidJSON)).Write(w)
}

// readBody reads the whole request body. A body over the size cap is an
// error.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(r.Body)
}
