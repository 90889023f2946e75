package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient(t *testing.T) {
	t.Run("Default User-Agent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "SauresHA/"+Version(), r.Header.Get("User-Agent"), "User-Agent should match expected format")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		timeout := 5 * time.Second
		client := HTTPClient(timeout, "")

		assert.Equal(t, timeout, client.Timeout, "Timeout should be set correctly")
		assert.NotNil(t, client.Transport, "Transport should not be nil")

		req, err := http.NewRequest("GET", server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Custom User-Agent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "HTTPie/0.9.8", r.Header.Get("User-Agent"))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := HTTPClient(time.Second, "HTTPie/0.9.8")

		req, err := http.NewRequest("GET", server.URL, nil)
		require.NoError(t, err)
		// the transport overrides whatever the caller set
		req.Header.Set("User-Agent", "something-else")

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "something-else", req.Header.Get("User-Agent"), "original request should not be modified")
	})

	t.Run("Version", func(t *testing.T) {
		assert.NotEmpty(t, Version())
	})
}
