package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sauresha/sauresha/pkg/saures/sauresmock"
	"github.com/sauresha/sauresha/pkg/storage/storagemock"
	"github.com/sauresha/sauresha/pkg/types"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishSnapshot(ctx context.Context, snap types.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func newTestServer() (*Server, *sauresmock.MockSystem, *storagemock.MockDatabase) {
	system := new(sauresmock.MockSystem)
	db := new(storagemock.MockDatabase)
	return &Server{
		saures:     system,
		storage:    db,
		listenAddr: ":8080",
		serverName: "sauresha-test",
	}, system, db
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer()
	handler := srv.setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "sauresha-test", w.Header().Get("Server"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "sauresha_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	srv.gatherer = reg
	handler := srv.setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sauresha_test_total 1")

	t.Run("Disabled Without Gatherer", func(t *testing.T) {
		srv, _, _ := newTestServer()
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	verifier := func(ctx context.Context, token string) (string, error) {
		switch token {
		case "scheduler":
			return "scheduler@example.iam.gserviceaccount.com", nil
		case "someone":
			return "someone@example.com", nil
		}
		return "", errors.New("bad token")
	}

	newAuthServer := func() (*Server, *sauresmock.MockSystem) {
		srv, system, _ := newTestServer()
		srv.verifyToken = verifier
		srv.updateEmail = "scheduler@example.iam.gserviceaccount.com"
		return srv, system
	}

	tests := []struct {
		name   string
		header string
		status int
		errMsg string
	}{
		{name: "Missing Header", header: "", status: http.StatusUnauthorized, errMsg: "missing authorization header"},
		{name: "Not Bearer", header: "Basic abc", status: http.StatusBadRequest, errMsg: "invalid auth header"},
		{name: "Invalid Token", header: "Bearer nope", status: http.StatusUnauthorized, errMsg: "invalid id token"},
		{name: "Wrong Email", header: "Bearer someone", status: http.StatusForbidden, errMsg: "unauthorized email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, system := newAuthServer()
			req := httptest.NewRequest(http.MethodPost, "/api/update", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.setupHandler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.errMsg)
			system.AssertNotCalled(t, "RefreshAll", mock.Anything)
		})
	}

	t.Run("Valid Token", func(t *testing.T) {
		srv, system := newAuthServer()
		system.On("RefreshAll", mock.Anything).Return(nil)
		system.On("Snapshot").Return(types.Snapshot{})

		req := httptest.NewRequest(http.MethodPost, "/api/update", nil)
		req.Header.Set("Authorization", "Bearer scheduler")
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		system.AssertExpectations(t)
	})

	t.Run("Guards Commands", func(t *testing.T) {
		srv, system := newAuthServer()
		req := httptest.NewRequest(http.MethodPost, "/api/meters/103/command", strings.NewReader(`{"command":"activate"}`))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		system.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Reads Are Open", func(t *testing.T) {
		srv, system := newAuthServer()
		system.On("Lookup", "7", "101", types.BucketSensor).Return(types.Sensor{})

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/flats/7/meters/101", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, "boom", http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"boom"}`, w.Body.String())
}
