// Package yemeksepeti relays login and order acceptance to the Yemeksepeti
// integration middleware.
package yemeksepeti

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace-relay/internal/common/errors"
	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/common/logging"
)

const (
	LoginPath       = "/login"
	AcceptOrderPath = "/order/accept"
)

// Fixed caller-facing messages
const (
	MsgCredentialsRequired   = "username and password are required"
	MsgAuthorizationRequired = "Authorization is required: send an Authorization: Bearer <token> header or token, access_token or bearerToken in the body"
	MsgLoginFailed           = "Yemeksepeti login failed"
	MsgUpstreamFailed        = "Upstream call failed"
)

// Observer is notified after every partner call
type Observer interface {
	ObserveUpstream(operation string, status int, err error, elapsed time.Duration)
}

type Client struct {
	baseURL  string
	client   *http.Client
	observer Observer
	logger   logging.Logger
}

func NewClient(baseURL string, client *http.Client, observer Observer, logger logging.Logger) *Client {
	if client == nil {
		client = commonhttp.NewHTTPClient()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		observer: observer,
		logger:   logger.WithFields(logging.String("component", "yemeksepeti_client")),
	}
}

// Login exchanges username and password for a partner token. The partner
// answer is relayed as is; a failed exchange is an internal error.
func (c *Client) Login(ctx context.Context, username, password string) (commonhttp.Result, error) {
	if username == "" || password == "" {
		return commonhttp.Result{}, errors.CallerError(MsgCredentialsRequired)
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return commonhttp.Result{}, errors.InternalError("failed to build login request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result, err := c.do(req, "yemeksepeti_login")
	if err != nil {
		c.logger.Error("Yemeksepeti login failed", err, logging.String("username", username))
		return commonhttp.Result{}, errors.InternalError(MsgLoginFailed, err)
	}
	return result, nil
}

// AcceptOrder forwards payload with the given Authorization value
func (c *Client) AcceptOrder(ctx context.Context, authorization string, payload []byte) (commonhttp.Result, error) {
	if strings.TrimSpace(authorization) == "" {
		return commonhttp.Result{}, errors.CallerError(MsgAuthorizationRequired)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AcceptOrderPath, bytes.NewReader(payload))
	if err != nil {
		return commonhttp.Result{}, errors.InternalError("failed to build accept request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)

	result, err := c.do(req, "yemeksepeti_accept")
	if err != nil {
		c.logger.Error("Yemeksepeti order accept failed", err)
		return commonhttp.Result{}, errors.GatewayError(MsgUpstreamFailed, err)
	}
	return result, nil
}

func (c *Client) do(req *http.Request, operation string) (commonhttp.Result, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(operation, 0, err, start)
		return commonhttp.Result{}, err
	}
	defer resp.Body.Close()

	result, err := commonhttp.ReadResult(resp)
	c.observe(operation, result.Status, err, start)
	return result, err
}

func (c *Client) observe(operation string, status int, err error, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(operation, status, err, time.Since(start))
	}
}

// Authorization picks the credential for an accept call: a non-blank
// Authorization header wins, otherwise token, access_token or bearerToken
// from the JSON body, prefixed with "Bearer " unless already present.
func Authorization(header string, payload []byte) string {
	if strings.TrimSpace(header) != "" {
		return header
	}

	var body struct {
		Token       interface{} `json:"token"`
		AccessToken interface{} `json:"access_token"`
		BearerToken interface{} `json:"bearerToken"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}

	for _, candidate := range []interface{}{body.Token, body.AccessToken, body.BearerToken} {
		token, ok := candidate.(string)
		if !ok || strings.TrimSpace(token) == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			return token
		}
		return "Bearer " + token
	}
	return ""
}
