// Package proxy relays order-management calls to the Getir partner API.
//
// Every call goes through Invoke, which validates the inbound request,
// resolves a credential (client-supplied or cached), sends the request as
// described by the Operations table and relays the partner's answer
// verbatim. A call ends in exactly one of three ways: a caller error with
// no network traffic, a gateway error when the partner is unreachable, or
// the partner's own status and body.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"marketplace-relay/internal/common/errors"
	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/credential"
)

// TokenHeader carries the partner credential, inbound and outbound
const TokenHeader = "token"

// Fixed caller-facing messages
const (
	MsgTokenRequired         = "token header is required"
	MsgOrderIDRequired       = "order id is required"
	MsgInvalidJSON           = "request body must be valid JSON"
	MsgUnknownOperation      = "unknown operation"
	MsgCachedNotAllowed      = "operation requires a client token"
	MsgCredentialUnavailable = "Upstream credential unavailable"
	MsgUpstreamFailed        = "Upstream call failed"
)

// Source selects where the partner credential comes from
type Source int

const (
	// SourceClient uses the caller's token header and never touches the cache
	SourceClient Source = iota
	// SourceCached uses the server-side credential
	SourceCached
)

func (s Source) String() string {
	if s == SourceCached {
		return "cached"
	}
	return "client"
}

// Request is one inbound proxied call
type Request struct {
	Operation   Operation
	OrderID     string
	Payload     []byte
	Source      Source
	ClientToken string
}

// CredentialProvider yields a valid partner credential
type CredentialProvider interface {
	EnsureFresh(ctx context.Context) (*credential.Credential, error)
}

// Observer is notified after every partner call
type Observer interface {
	ObserveUpstream(operation string, status int, err error, elapsed time.Duration)
}

// Proxy sends Requests to the partner API
type Proxy struct {
	baseURL     string
	client      *http.Client
	credentials CredentialProvider
	observer    Observer
	logger      logging.Logger
}

// Option customises a Proxy
type Option func(*Proxy)

// WithObserver reports every partner call, e.g. to metrics
func WithObserver(observer Observer) Option {
	return func(p *Proxy) {
		p.observer = observer
	}
}

// New creates a proxy against baseURL. credentials may be nil, in which
// case cached calls fail as credential unavailable.
func New(baseURL string, client *http.Client, credentials CredentialProvider, logger logging.Logger, opts ...Option) *Proxy {
	if client == nil {
		client = commonhttp.NewHTTPClient()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	p := &Proxy{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
		credentials: credentials,
		logger:      logger.WithFields(logging.String("component", "action_proxy")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke runs one proxied call. A nil error means the partner answered and
// the Result carries its status and body. Errors are caller, credential or
// gateway errors; ErrorResult turns them into a response.
func (p *Proxy) Invoke(ctx context.Context, req Request) (commonhttp.Result, error) {
	endpoint, ok := Lookup(req.Operation)
	if !ok {
		return commonhttp.Result{}, errors.CallerError(MsgUnknownOperation).WithContext("operation", string(req.Operation))
	}

	body, err := validate(endpoint, req)
	if err != nil {
		return commonhttp.Result{}, err
	}

	token, err := p.resolveToken(ctx, endpoint, req)
	if err != nil {
		return commonhttp.Result{}, err
	}

	return p.send(ctx, string(req.Operation), endpoint.Method, p.baseURL+endpoint.URLPath(req.OrderID), body, token)
}

// Login forwards payload to the partner login endpoint without any
// credential and relays the answer like any other call.
func (p *Proxy) Login(ctx context.Context, payload []byte) (commonhttp.Result, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return commonhttp.Result{}, err
	}
	return p.send(ctx, "login", http.MethodPost, p.baseURL+credential.LoginPath, body, "")
}

// validate checks the request before any credential is looked at and
// returns the body to send upstream, or nil for body-less endpoints.
func validate(endpoint Endpoint, req Request) ([]byte, error) {
	if endpoint.NeedsOrderID() && strings.TrimSpace(req.OrderID) == "" {
		return nil, errors.CallerError(MsgOrderIDRequired)
	}

	if len(endpoint.RequiredFields) > 0 {
		fields := map[string]json.RawMessage{}
		if len(bytes.TrimSpace(req.Payload)) > 0 {
			if err := json.Unmarshal(req.Payload, &fields); err != nil {
				return nil, errors.CallerError(MsgInvalidJSON)
			}
		}
		for _, name := range endpoint.RequiredFields {
			if isBlank(fields[name]) {
				return nil, errors.CallerError(name + " is required").WithContext("field", name)
			}
		}
	}

	if !endpoint.SendsBody {
		return nil, nil
	}
	return jsonBody(req.Payload)
}

// jsonBody returns payload unchanged, or "{}" when it is empty
func jsonBody(payload []byte) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(payload) {
		return nil, errors.CallerError(MsgInvalidJSON)
	}
	return payload, nil
}

func isBlank(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	return v == "" || v == "null" || v == `""`
}

func (p *Proxy) resolveToken(ctx context.Context, endpoint Endpoint, req Request) (string, error) {
	if req.Source == SourceClient {
		token := strings.TrimSpace(req.ClientToken)
		if token == "" {
			return "", errors.CallerError(MsgTokenRequired)
		}
		return token, nil
	}

	if !endpoint.AllowCached {
		return "", errors.CallerError(MsgCachedNotAllowed).WithContext("operation", string(req.Operation))
	}
	if p.credentials == nil {
		return "", errors.CredentialUnavailableError(errors.ConfigError("no credential provider"))
	}

	cred, err := p.credentials.EnsureFresh(ctx)
	if err != nil {
		p.logger.Warn("No credential for cached call",
			logging.String("operation", string(req.Operation)),
			logging.Err(err),
		)
		return "", errors.CredentialUnavailableError(err)
	}
	return cred.Token, nil
}

func (p *Proxy) send(ctx context.Context, operation, method, url string, body []byte, token string) (commonhttp.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return commonhttp.Result{}, errors.InternalError("failed to build upstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set(TokenHeader, token)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.observe(operation, 0, err, start)
		p.logger.Error("Upstream call failed", err,
			logging.String("operation", operation),
			logging.String("method", method),
			logging.String("url", url),
		)
		return commonhttp.Result{}, errors.GatewayError(MsgUpstreamFailed, err).WithContext("operation", operation)
	}
	defer resp.Body.Close()

	result, err := commonhttp.ReadResult(resp)
	if err != nil {
		p.observe(operation, 0, err, start)
		p.logger.Error("Reading upstream response failed", err, logging.String("operation", operation))
		return commonhttp.Result{}, errors.GatewayError(MsgUpstreamFailed, err).WithContext("operation", operation)
	}

	p.observe(operation, result.Status, nil, start)
	p.logger.Debug("Upstream call relayed",
		logging.String("operation", operation),
		logging.Int("status", result.Status),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (p *Proxy) observe(operation string, status int, err error, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveUpstream(operation, status, err, time.Since(start))
	}
}

// ErrorResult renders an Invoke error as the response the caller receives
func ErrorResult(err error) commonhttp.Result {
	status := errors.HTTPStatus(err)
	message := MsgUpstreamFailed

	if appErr, ok := errors.As(err); ok {
		switch appErr.Type {
		case errors.ErrTypeCaller:
			message = appErr.Message
		case errors.ErrTypeCredentialUnavailable:
			message = MsgCredentialUnavailable
		case errors.ErrTypeGateway:
			message = MsgUpstreamFailed
		default:
			message = http.StatusText(status)
		}
	} else {
		status = http.StatusInternalServerError
		message = http.StatusText(status)
	}

	body, _ := json.Marshal(map[string]string{"error": message})
	return commonhttp.Result{Status: status, Body: body}
}
