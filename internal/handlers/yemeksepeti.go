package handlers

import (
	"encoding/json"
	"net/http"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/proxy"
	"marketplace-relay/internal/yemeksepeti"
)

type yemeksepetiLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// YemeksepetiLogin handles POST /yemeksepeti/login
func (h *Handlers) YemeksepetiLogin(w http.ResponseWriter, r *http.Request) {
	body, valid := h.readJSONBody(w, r)
	if !valid {
		return
	}

	var creds yemeksepetiLoginRequest
	if err := json.Unmarshal(body, &creds); err != nil {
		h.sendJSONError(w, http.StatusBadRequest, yemeksepeti.MsgCredentialsRequired)
		return
	}

	result, err := h.yemeksepeti.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	h.logger.WithContext(r.Context()).Info("Yemeksepeti login relayed",
		logging.String("username", creds.Username),
		logging.Int("status", result.Status))
	result.Write(w)
}

// AcceptOrder handles POST /order/accept
func (h *Handlers) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	body, valid := h.readJSONBody(w, r)
	if !valid {
		return
	}

	authorization := yemeksepeti.Authorization(r.Header.Get("Authorization"), body)
	if authorization == "" {
		h.sendJSONError(w, http.StatusBadRequest, yemeksepeti.MsgAuthorizationRequired)
		return
	}

	result, err := h.yemeksepeti.AcceptOrder(r.Context(), authorization, body)
	if err != nil {
		proxy.ErrorResult(err).Write(w)
		return
	}
	result.Write(w)
}
