package handlers

import (
	"context"
	"net/http"
	"time"
)

// Root answers GET / so load balancers see a live process
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Webhook relay is running"))
}

type credentialStatus struct {
	Configured bool       `json:"configured"`
	Cached     bool       `json:"cached"`
	Fresh      bool       `json:"fresh"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Credential credentialStatus  `json:"credential"`
	Checks     map[string]string `json:"checks,omitempty"`
	Clients    *int              `json:"clients,omitempty"`
}

// HealthCheck reports dependency health. A failing dependency turns the
// answer into a 503; a missing or stale credential does not, since it is
// acquired on demand.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	resp := healthResponse{Status: "healthy", Timestamp: now.UTC()}

	if h.tokens != nil {
		resp.Credential.Configured = h.tokens.Configured()
		if cred := h.tokens.Current(); cred != nil {
			expires := cred.ExpiresAt
			resp.Credential.Cached = true
			resp.Credential.Fresh = cred.Fresh(now)
			resp.Credential.ExpiresAt = &expires
		}
	}

	if hub, ok := h.emitter.(interface{ Clients() int }); ok {
		n := hub.Clients()
		resp.Clients = &n
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check.Health(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	h.sendJSONResponse(w, status, resp)
}
