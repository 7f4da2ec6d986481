package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/common/logging"
)

type readCloser struct {
	io.Reader
	io.Closer
}

// AuditRecord is what the forwarder posts for every inbound request
type AuditRecord struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// Forwarder copies every inbound request to an audit endpoint without
// waiting for it. Delivery failures are logged only.
type Forwarder struct {
	target  string
	client  *http.Client
	timeout time.Duration
	logger  logging.Logger
	maxBody int64
}

func NewForwarder(target string, client *http.Client, logger logging.Logger) *Forwarder {
	return &Forwarder{
		target:  target,
		client:  client,
		timeout: 10 * time.Second,
		logger:  logger.WithFields(logging.String("component", "audit_forwarder")),
		maxBody: 10 << 20,
	}
}

func (f *Forwarder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(io.LimitReader(r.Body, f.maxBody+1))
			if err != nil {
				r.Body.Close()
				status := http.StatusBadRequest
				msg := "failed to read request body"
				if commonhttp.IsBodyTooLarge(err) {
					status, msg = http.StatusRequestEntityTooLarge, commonhttp.MsgBodyTooLarge
				}
				f.logger.WithContext(r.Context()).Warn("Request body unreadable, not forwarded", logging.Err(err))
				writeJSONError(w, status, msg)
				return
			}
			if int64(len(body)) > f.maxBody {
				// The downstream handler still sees the whole body; only
				// the audit copy is dropped.
				r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
				body = nil
				f.logger.WithContext(r.Context()).Warn("Request body too large to audit", logging.String("path", r.URL.Path))
			} else {
				r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		record := AuditRecord{
			Path:    r.URL.RequestURI(),
			Method:  r.Method,
			Headers: flattenHeaders(r),
			Body:    auditBody(body),
		}
		go f.send(context.WithoutCancel(r.Context()), record)

		next.ServeHTTP(w, r)
	})
}

func (f *Forwarder) send(ctx context.Context, record AuditRecord) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	payload, err := json.Marshal(record)
	if err != nil {
		f.logger.Error("Failed to encode audit record", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.target, bytes.NewReader(payload))
	if err != nil {
		f.logger.Error("Failed to build audit request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WithContext(ctx).Warn("Audit forward failed", logging.Err(err), logging.String("path", record.Path))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		f.logger.WithContext(ctx).Warn("Audit endpoint rejected record",
			logging.Int("status", resp.StatusCode),
			logging.String("path", record.Path))
	}
}

// flattenHeaders lowercases names and joins repeated values. Credentials
// are masked.
func flattenHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		key := strings.ToLower(name)
		value := strings.Join(values, ", ")
		if key == "token" || key == "authorization" {
			value = logging.Mask(value)
		}
		out[key] = value
	}
	if r.Host != "" {
		out["host"] = r.Host
	}
	return out
}

// auditBody keeps JSON bodies as JSON; anything else becomes a string and
// an empty body becomes {}.
func auditBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(string(body))
	return encoded
}
