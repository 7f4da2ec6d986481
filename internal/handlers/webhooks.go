package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/notify"
	"marketplace-relay/internal/proxy"
	"marketplace-relay/internal/storage"
)

const persistTimeout = 5 * time.Second

// orderEnvelope is the event payload for platforms whose body is wrapped
type orderEnvelope struct {
	Platform string          `json:"platform"`
	Type     string          `json:"type,omitempty"`
	OrderID  string          `json:"orderId,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// readJSONBody returns the body, "{}" when empty, or false after writing a
// 400 for anything that is not JSON (413 when over the size cap).
func (h *Handlers) readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := readBody(r)
	if err != nil {
		h.sendBodyError(w, err)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		h.sendJSONError(w, http.StatusBadRequest, proxy.MsgInvalidJSON)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("{}"), true
	}
	return json.RawMessage(body), true
}

func ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) emit(ctx context.Context, platform string, data json.RawMessage) {
	evt := h.emitter.Emit(ctx, notify.EventNewOrder, data)
	if h.events != nil {
		h.events.ObserveEvent(platform)
	}
	h.logger.WithContext(ctx).Info("Emitted new order",
		logging.String("platform", platform),
		logging.String("event_id", evt.ID),
	)
}

func (h *Handlers) emitEnvelope(ctx context.Context, env orderEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to encode order event", err, logging.String("platform", env.Platform))
		return
	}
	h.emit(ctx, env.Platform, data)
}

// persistYemeksepeti maps and saves payload. Failures are logged and
// reported to the caller, who decides whether they matter.
func (h *Handlers) persistYemeksepeti(ctx context.Context, payload json.RawMessage) error {
	if h.store == nil {
		return nil
	}

	order, err := storage.MapYemeksepetiOrder(payload)
	if err != nil {
		h.logger.WithContext(ctx).Warn("Yemeksepeti payload not stored", logging.Err(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := h.store.SaveYemeksepetiOrder(ctx, order); err != nil {
		h.logger.WithContext(ctx).Error("Yemeksepeti order insert failed", err, orderIDField(order))
		return err
	}
	h.logger.WithContext(ctx).Info("Yemeksepeti order stored", orderIDField(order))
	return nil
}

// storeYemeksepeti persists payload for webhooks that answer 200 whatever
// the store says. persistYemeksepeti has already logged the cause.
func (h *Handlers) storeYemeksepeti(ctx context.Context, payload json.RawMessage) {
	if err := h.persistYemeksepeti(ctx, payload); err != nil {
		h.logger.WithContext(ctx).Debug("Webhook acknowledged without a stored order")
	}
}

func orderIDField(order *storage.YemeksepetiOrder) logging.Field {
	if order.OrderID == nil {
		return logging.String("order_id", "")
	}
	return logging.String("order_id", *order.OrderID)
}

// GetirWebhook handles POST /getir/add
func (h *Handlers) GetirWebhook(w http.ResponseWriter, r *http.Request) {
	body, valid := h.readJSONBody(w, r)
	if !valid {
		return
	}
	h.emitEnvelope(r.Context(), orderEnvelope{Platform: "getir", Data: body})
	ok(w)
}

// YemeksepetiWebhook handles POST /yemeksepeti/add and /yemeksepeti/update.
// The body is stored and emitted unchanged.
func (h *Handlers) YemeksepetiWebhook(w http.ResponseWriter, r *http.Request) {
	body, valid := h.readJSONBody(w, r)
	if !valid {
		return
	}
	h.storeYemeksepeti(r.Context(), body)
	h.emit(r.Context(), "yemeksepeti", body)
	ok(w)
}

// YemeksepetiOrderWebhook handles POST /yemeksepeti/add/order/{id}. Some
// payloads carry no order id, so the path id is wrapped around them.
func (h *Handlers) YemeksepetiOrderWebhook(w http.ResponseWriter, r *http.Request) {
	body, valid := h.readJSONBody(w, r)
	if !valid {
		return
	}
	env := orderEnvelope{Platform: "yemeksepeti", OrderID: mux.Vars(r)["id"], Data: body}

	wrapped, err := json.Marshal(env)
	if err == nil {
		h.storeYemeksepeti(r.Context(), wrapped)
	}
	h.emitEnvelope(r.Context(), env)
	ok(w)
}

// YemeksepetiStore handles POST /webhook/yemeksepeti: persist only, with
// the outcome reported to the caller.
func (h *Handlers) YemeksepetiStore(w http.ResponseWriter, r *http.Request) {
	body, valid := h.readJSONBody(w, r)
	if !valid {
		return
	}
	if h.store == nil {
		h.sendJSONResponse(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "order store is not configured"})
		return
	}
	if err := h.persistYemeksepeti(r.Context(), body); err != nil {
		h.sendJSONResponse(w, http.StatusInternalServerError, map[string]interface{}{"success": false})
		return
	}
	h.sendJSONResponse(w, http.StatusOK, map[string]interface{}{"success": true})
}

// MigrosWebhook handles the Migros routes. eventType is empty for new
// orders and "cancel" or "courier" otherwise.
func (h *Handlers) MigrosWebhook(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, valid := h.readJSONBody(w, r)
		if !valid {
			return
		}
		h.emitEnvelope(r.Context(), orderEnvelope{Platform: "migros", Type: eventType, Data: body})
		ok(w)
	}
}
