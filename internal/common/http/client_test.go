package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestDefaultClientConfig(t *testing.T) {
	config := DefaultClientConfig()

	assert.Equal(t, 15*time.Second, config.Timeout)
	assert.Equal(t, 100, config.MaxIdleConns)
	assert.Equal(t, 20, config.MaxIdleConnsPerHost)
	assert.Nil(t, config.Transport)
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("timeout option", func(t *testing.T) {
		client := NewHTTPClientWithTimeout(3 * time.Second)
		assert.Equal(t, 3*time.Second, client.Timeout)
	})

	t.Run("non-positive timeout keeps default", func(t *testing.T) {
		client := NewHTTPClient(WithTimeout(0))
		assert.Equal(t, 15*time.Second, client.Timeout)
	})

	t.Run("custom transport", func(t *testing.T) {
		rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusTeapot, Body: io.NopCloser(strings.NewReader(""))}, nil
		})
		client := NewHTTPClient(WithTransport(rt))

		resp, err := client.Get("http://partner.invalid/")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	})

	t.Run("default transport", func(t *testing.T) {
		client := NewHTTPClient(WithMaxIdleConnsPerHost(4))
		transport, ok := client.Transport.(*http.Transport)
		require.True(t, ok)
		assert.Equal(t, 4, transport.MaxIdleConnsPerHost)
	})
}

func TestWrapBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json object kept verbatim", `{"message":"not found"}`, `{"message":"not found"}`},
		{"json array kept verbatim", `[1, 2 ,3]`, `[1, 2 ,3]`},
		{"plain text wrapped", "Internal Server Error", `{"raw":"Internal Server Error"}`},
		{"empty body wrapped", "", `{"raw":""}`},
		{"whitespace wrapped", "  ", `{"raw":"  "}`},
		{"truncated json wrapped", `{"a":`, `{"raw":"{\"a\":"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(WrapBody([]byte(tt.in))))
		})
	}
}

func TestReadResultAndWrite(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer upstream.Close()

	resp, err := http.Get(upstream.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	result, err := ReadResult(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.JSONEq(t, `{"raw":"Internal Server Error"}`, string(result.Body))

	rec := httptest.NewRecorder()
	result.Write(rec)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"raw":"Internal Server Error"}`, rec.Body.String())
}
