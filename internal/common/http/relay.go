package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxRelayBody caps how much of a partner response is read
const MaxRelayBody = 10 << 20

// Result is a partner response ready to be relayed to the caller.
// Body is always valid JSON.
type Result struct {
	Status int
	Body   json.RawMessage
}

// RawEnvelope is the fallback body for partner responses that are not JSON
type RawEnvelope struct {
	Raw string `json:"raw"`
}

// WrapBody returns body unchanged when it is valid JSON and otherwise wraps
// the text as {"raw": "..."}. An empty body is wrapped too.
func WrapBody(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	// Marshalling a struct with one string field cannot fail.
	wrapped, _ := json.Marshal(RawEnvelope{Raw: string(body)})
	return wrapped
}

// ReadResult drains resp and converts it into a relayable Result. The
// caller still closes resp.Body.
func ReadResult(resp *http.Response) (Result, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRelayBody))
	if err != nil {
		return Result{}, fmt.Errorf("read response body: %w", err)
	}
	return Result{Status: resp.StatusCode, Body: WrapBody(body)}, nil
}

// Write sends the result to w with its status and a JSON content type
func (r Result) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}
