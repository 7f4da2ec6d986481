package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marketplace-relay/internal/common/errors"
	commonhttp "marketplace-relay/internal/common/http"
	"marketplace-relay/internal/credential"
)

var secrets = credential.Secrets{AppSecretKey: "app-secret", RestaurantSecretKey: "restaurant-secret"}

type recorded struct {
	Method  string
	Path    string
	Token   string
	Body    string
	HasBody bool
}

// fakePartner stands in for the partner API. Handlers for non-login paths
// default to echoing the order path back as JSON.
type fakePartner struct {
	*httptest.Server
	logins   atomic.Int32
	mu       sync.Mutex
	requests []recorded
	handler  http.HandlerFunc
}

func newFakePartner(t *testing.T) *fakePartner {
	f := &fakePartner{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == credential.LoginPath {
			f.logins.Add(1)
			time.Sleep(20 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"cached-token","restaurantId":"r-1"}`))
			return
		}

		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Method:  r.Method,
			Path:    r.URL.Path,
			Token:   r.Header.Get(TokenHeader),
			Body:    string(raw),
			HasBody: r.ContentLength > 0,
		})
		f.mu.Unlock()

		if f.handler != nil {
			f.handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakePartner) calls() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newProxy(f *fakePartner) (*Proxy, *credential.Guard) {
	acquirer := credential.NewHTTPAcquirer(f.URL, f.Client(), nil)
	guard := credential.NewGuard(nil, acquirer, secrets, nil)
	return New(f.URL, f.Client(), guard, nil), guard
}

func TestInvoke_ConcurrentCachedCallsShareOneLogin(t *testing.T) {
	partner := newFakePartner(t)
	p, _ := newProxy(partner)

	orders := []string{"123", "456"}
	results := make([]commonhttp.Result, len(orders))
	var wg sync.WaitGroup
	for i, id := range orders {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, err := p.Invoke(context.Background(), Request{Operation: OpVerify, OrderID: id, Source: SourceCached})
			assert.NoError(t, err)
			results[i] = res
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), partner.logins.Load())
	for i, id := range orders {
		assert.Equal(t, http.StatusOK, results[i].Status)
		assert.JSONEq(t, fmt.Sprintf(`{"path":"/food-orders/%s/verify"}`, id), string(results[i].Body))
	}
	for _, call := range partner.calls() {
		assert.Equal(t, "cached-token", call.Token)
	}
}

func TestInvoke_ClientModeRequiresToken(t *testing.T) {
	partner := newFakePartner(t)
	p, guard := newProxy(partner)

	for op, endpoint := range Operations {
		t.Run(string(op), func(t *testing.T) {
			req := Request{Operation: op, OrderID: "123", Source: SourceClient}
			if len(endpoint.RequiredFields) > 0 {
				req.Payload = []byte(`{"cancelReasonId":"r1"}`)
			}

			_, err := p.Invoke(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeCaller))

			res := ErrorResult(err)
			assert.Equal(t, http.StatusBadRequest, res.Status)
			assert.JSONEq(t, `{"error":"token header is required"}`, string(res.Body))
		})
	}

	assert.Empty(t, partner.calls())
	assert.Zero(t, partner.logins.Load())
	assert.Nil(t, guard.Current())
}

func TestInvoke_CancelRequiresReasonBeforeCredential(t *testing.T) {
	partner := newFakePartner(t)
	p, _ := newProxy(partner)

	payloads := []string{"", `{}`, `{"cancelReasonId":null}`, `{"cancelReasonId":""}`, `{"cancelNote":"late"}`}
	for _, source := range []Source{SourceClient, SourceCached} {
		for _, payload := range payloads {
			t.Run(source.String()+" "+payload, func(t *testing.T) {
				_, err := p.Invoke(context.Background(), Request{
					Operation: OpCancel,
					OrderID:   "123",
					Payload:   []byte(payload),
					Source:    source,
				})
				require.Error(t, err)
				res := ErrorResult(err)
				assert.Equal(t, http.StatusBadRequest, res.Status)
				assert.JSONEq(t, `{"error":"cancelReasonId is required"}`, string(res.Body))
			})
		}
	}

	assert.Zero(t, partner.logins.Load())
	assert.Empty(t, partner.calls())
}

func TestInvoke_CancelForwardsBodyUnchanged(t *testing.T) {
	partner := newFakePartner(t)
	p, _ := newProxy(partner)

	payload := `{"cancelReasonId":"5","cancelNote":"customer asked","productId":"p-9"}`
	res, err := p.Invoke(context.Background(), Request{
		Operation:   OpCancel,
		OrderID:     "123",
		Payload:     []byte(payload),
		Source:      SourceClient,
		ClientToken: "client-token",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	calls := partner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/food-orders/123/cancel", calls[0].Path)
	assert.Equal(t, "client-token", calls[0].Token)
	assert.Equal(t, payload, calls[0].Body)
}

func TestInvoke_RelaysUpstreamErrorVerbatim(t *testing.T) {
	partner := newFakePartner(t)
	partner.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
	p, _ := newProxy(partner)

	res, err := p.Invoke(context.Background(), Request{Operation: OpVerify, OrderID: "123", Source: SourceClient, ClientToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, `{"message":"not found"}`, string(res.Body))
}

func TestInvoke_WrapsNonJSONBody(t *testing.T) {
	partner := newFakePartner(t)
	partner.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}
	p, _ := newProxy(partner)

	res, err := p.Invoke(context.Background(), Request{Operation: OpPrepare, OrderID: "123", Source: SourceCached})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.JSONEq(t, `{"raw":"Internal Server Error"}`, string(res.Body))
}

func TestInvoke_NetworkFailureIsGatewayError(t *testing.T) {
	for op, endpoint := range Operations {
		t.Run(string(op), func(t *testing.T) {
			dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			url := dead.URL
			dead.Close()

			p := New(url, commonhttp.NewHTTPClientWithTimeout(time.Second), nil, nil)
			req := Request{Operation: op, OrderID: "123", Source: SourceClient, ClientToken: "t"}
			if len(endpoint.RequiredFields) > 0 {
				req.Payload = []byte(`{"cancelReasonId":"1"}`)
			}

			_, err := p.Invoke(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeGateway))

			res := ErrorResult(err)
			assert.Equal(t, http.StatusBadGateway, res.Status)
			assert.JSONEq(t, `{"error":"Upstream call failed"}`, string(res.Body))
		})
	}
}

func TestInvoke_TimeoutIsGatewayError(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer slow.Close()
	defer close(release)

	p := New(slow.URL, commonhttp.NewHTTPClientWithTimeout(50*time.Millisecond), nil, nil)
	_, err := p.Invoke(context.Background(), Request{Operation: OpMenu, Source: SourceClient, ClientToken: "t"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, ErrorResult(err).Status)
}

func TestInvoke_DispatchTable(t *testing.T) {
	partner := newFakePartner(t)
	p, _ := newProxy(partner)

	tests := []struct {
		op       Operation
		payload  string
		method   string
		path     string
		wantBody string
	}{
		{OpVerify, "", http.MethodPost, "/food-orders/o-1/verify", "{}"},
		{OpVerifyScheduled, `{"x":1}`, http.MethodPost, "/food-orders/o-1/verify-scheduled", `{"x":1}`},
		{OpPrepare, "", http.MethodPost, "/food-orders/o-1/prepare", "{}"},
		{OpDeliver, "", http.MethodPost, "/food-orders/o-1/deliver", "{}"},
		{OpCancel, `{"cancelReasonId":"1"}`, http.MethodPost, "/food-orders/o-1/cancel", `{"cancelReasonId":"1"}`},
		{OpCancelOptions, "", http.MethodGet, "/food-orders/o-1/cancel-options", ""},
		{OpActiveOrders, `{"ignored":true}`, http.MethodPost, "/food-orders/active", ""},
		{OpRestaurantOpen, `{"ignored":true}`, http.MethodPut, "/restaurants/status/open", ""},
		{OpRestaurantClose, `{"closeDuration":30}`, http.MethodPut, "/restaurants/status/close", `{"closeDuration":30}`},
		{OpMenu, "", http.MethodGet, "/restaurants/menu", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			before := len(partner.calls())
			_, err := p.Invoke(context.Background(), Request{
				Operation:   tt.op,
				OrderID:     "o-1",
				Payload:     []byte(tt.payload),
				Source:      SourceClient,
				ClientToken: "client-token",
			})
			require.NoError(t, err)

			calls := partner.calls()
			require.Len(t, calls, before+1)
			got := calls[before]
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.wantBody, got.Body)
			assert.Equal(t, tt.wantBody != "", got.HasBody)
			assert.Equal(t, "client-token", got.Token)
		})
	}

	assert.Zero(t, partner.logins.Load(), "client calls never log in")
}

func TestInvoke_CallerErrors(t *testing.T) {
	partner := newFakePartner(t)
	p, _ := newProxy(partner)

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"unknown operation", Request{Operation: "refund", OrderID: "1", ClientToken: "t"}, MsgUnknownOperation},
		{"missing order id", Request{Operation: OpVerify, ClientToken: "t"}, MsgOrderIDRequired},
		{"invalid json", Request{Operation: OpVerify, OrderID: "1", Payload: []byte("{"), ClientToken: "t"}, MsgInvalidJSON},
		{"cached menu", Request{Operation: OpMenu, Source: SourceCached}, MsgCachedNotAllowed},
		{"whitespace token", Request{Operation: OpMenu, ClientToken: "  "}, MsgTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Invoke(context.Background(), tt.req)
			require.Error(t, err)
			res := ErrorResult(err)
			assert.Equal(t, http.StatusBadRequest, res.Status)

			var body map[string]string
			require.NoError(t, json.Unmarshal(res.Body, &body))
			assert.Equal(t, tt.want, body["error"])
		})
	}

	assert.Empty(t, partner.calls())
	assert.Zero(t, partner.logins.Load())
}

type failingProvider struct{}

func (failingProvider) EnsureFresh(context.Context) (*credential.Credential, error) {
	return nil, errors.New("login rejected")
}

func TestInvoke_CredentialUnavailable(t *testing.T) {
	partner := newFakePartner(t)

	for name, provider := range map[string]CredentialProvider{"failing": failingProvider{}, "none": nil} {
		t.Run(name, func(t *testing.T) {
			p := New(partner.URL, partner.Client(), provider, nil)

			_, err := p.Invoke(context.Background(), Request{Operation: OpVerify, OrderID: "1", Source: SourceCached})
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeCredentialUnavailable))

			res := ErrorResult(err)
			assert.Equal(t, http.StatusServiceUnavailable, res.Status)
			assert.NotEqual(t, http.StatusBadGateway, res.Status)
			assert.JSONEq(t, `{"error":"Upstream credential unavailable"}`, string(res.Body))
		})
	}
	assert.Empty(t, partner.calls())
}

func TestLogin_PassesBodyThrough(t *testing.T) {
	var got string
	partner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, credential.LoginPath, r.URL.Path)
		assert.Empty(t, r.Header.Get(TokenHeader))
		raw, _ := io.ReadAll(r.Body)
		got = string(raw)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad secret"))
	}))
	defer partner.Close()

	p := New(partner.URL, partner.Client(), nil, nil)
	res, err := p.Login(context.Background(), []byte(`{"appSecretKey":"a","restaurantSecretKey":"b"}`))
	require.NoError(t, err)

	assert.Equal(t, `{"appSecretKey":"a","restaurantSecretKey":"b"}`, got)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.JSONEq(t, `{"raw":"bad secret"}`, string(res.Body))
}

type countingObserver struct {
	mu       sync.Mutex
	statuses map[string]int
}

func (o *countingObserver) ObserveUpstream(operation string, status int, _ error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[operation] = status
}

func TestInvoke_Observer(t *testing.T) {
	partner := newFakePartner(t)
	observer := &countingObserver{statuses: map[string]int{}}
	p := New(partner.URL, partner.Client(), nil, nil, WithObserver(observer))

	_, err := p.Invoke(context.Background(), Request{Operation: OpMenu, ClientToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, observer.statuses["menu"])
}

func TestEndpoint_URLPathEscapesOrderID(t *testing.T) {
	e := Operations[OpVerify]
	assert.True(t, e.NeedsOrderID())
	assert.Equal(t, "/food-orders/a%2Fb/verify", e.URLPath("a/b"))
	assert.False(t, Operations[OpMenu].NeedsOrderID())
}

func TestCachedOperations(t *testing.T) {
	got := CachedOperations()
	assert.Equal(t, []Operation{
		OpActiveOrders, OpCancel, OpCancelOptions, OpDeliver, OpPrepare, OpVerify, OpVerifyScheduled,
	}, got)
	for _, op := range got {
		assert.False(t, strings.HasPrefix(Operations[op].Path, "/restaurants"))
	}
}
