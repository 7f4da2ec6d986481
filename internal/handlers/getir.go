package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketplace-relay/internal/common/errors"
	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/proxy"
)

// ProxyOperation returns the handler for one dispatch table entry. Client
// routes read the token header; cached routes use the server credential.
func (h *Handlers) ProxyOperation(op proxy.Operation, source proxy.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := readBody(r)
		if err != nil {
			h.sendBodyError(w, err)
			return
		}

		req := proxy.Request{
			Operation: op,
			OrderID:   mux.Vars(r)["id"],
			Payload:   payload,
			Source:    source,
		}
		if source == proxy.SourceClient {
			req.ClientToken = r.Header.Get(proxy.TokenHeader)
		}

		result, err := h.proxy.Invoke(r.Context(), req)
		if err != nil {
			proxy.ErrorResult(err).Write(w)
			return
		}
		result.Write(w)
	}
}

// GetirLogin forwards the inbound body to the partner login endpoint
func (h *Handlers) GetirLogin(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r)
	if err != nil {
		h.sendBodyError(w, err)
		return
	}

	result, err := h.proxy.Login(r.Context(), payload)
	if err != nil {
		proxy.ErrorResult(err).Write(w)
		return
	}
	result.Write(w)
}

type tokenResponse struct {
	RestaurantID string    `json:"restaurantId"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type tokenErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// GetirToken returns the cached credential, acquiring it first when stale
func (h *Handlers) GetirToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil || !h.tokens.Configured() {
		h.sendJSONError(w, http.StatusServiceUnavailable, proxy.MsgCredentialUnavailable)
		return
	}

	cred, err := h.tokens.EnsureFresh(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("Getir token request failed", logging.Err(err))
		status, body := tokenError(err)
		h.sendJSONResponse(w, status, body)
		return
	}

	h.sendJSONResponse(w, http.StatusOK, tokenResponse{
		RestaurantID: cred.RestaurantID,
		Token:        cred.Token,
		ExpiresAt:    cred.ExpiresAt,
	})
}

// tokenError relays a partner rejection with its status and text; any
// other failure is a gateway or availability error.
func tokenError(err error) (int, tokenErrorResponse) {
	appErr, ok := errors.As(err)
	if !ok {
		return http.StatusServiceUnavailable, tokenErrorResponse{Error: proxy.MsgCredentialUnavailable}
	}

	switch appErr.Type {
	case errors.ErrTypeUpstream:
		details, _ := appErr.Context["body"].(string)
		if appErr.Status >= 400 {
			return appErr.Status, tokenErrorResponse{Error: "Getir token request failed", Details: details}
		}
		return http.StatusBadGateway, tokenErrorResponse{Error: "Token retrieval failed", Details: details}
	case errors.ErrTypeGateway:
		return http.StatusBadGateway, tokenErrorResponse{Error: "Token retrieval failed"}
	default:
		return http.StatusServiceUnavailable, tokenErrorResponse{Error: proxy.MsgCredentialUnavailable}
	}
}
