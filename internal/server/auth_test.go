package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenValidator maps fixed tokens to users; "down" simulates an outage
type tokenValidator map[string]string

func (v tokenValidator) Validate(_ context.Context, token string) (auth.Identity, error) {
	if token == "down" {
		return auth.Identity{}, fmt.Errorf("%w: connection refused", auth.ErrUnavailable)
	}
	user, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return auth.Identity{UserID: user}, nil
}

func newAuthServer(t *testing.T) *Server {
	t.Helper()
	gs := newTestService(t, TableConfig{}, "ThTcTd7d")
	srv := NewServer("127.0.0.1:0", gs.GameService, testLogger(),
		WithValidator(tokenValidator{"tok-alice": "alice"}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func TestHTTPBearerAuth(t *testing.T) {
	t.Parallel()
	h := newAuthServer(t).Handler()

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantCode   string
	}{
		{"valid token", "Authorization", "Bearer tok-alice", http.StatusCreated, ""},
		{"unknown token", "Authorization", "Bearer tok-bob", http.StatusUnauthorized, CodeUnauthenticated},
		{"raw user id is not trusted", UserHeader, "alice", http.StatusUnauthorized, CodeUnauthenticated},
		{"identity service down", "Authorization", "Bearer down", http.StatusServiceUnavailable, CodeAuthUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/rounds", strings.NewReader(`{"bet_amount":10}`))
			req.Header.Set(tt.header, tt.value)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
				return
			}
			assert.NotEmpty(t, decodeSnapshot(t, w).RoundID)
		})
	}
}

func TestHTTPBearerAuthorizesOwnData(t *testing.T) {
	t.Parallel()
	h := newAuthServer(t).Handler()

	start := httptest.NewRequest(http.MethodPost, "/api/rounds", strings.NewReader(`{"bet_amount":10}`))
	start.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, start)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for path, want := range map[string]int{
		"/api/users/alice/balance": http.StatusOK,
		"/api/users/bob/balance":   http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer tok-alice")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, path)
	}
}

func TestWebSocketTokenAuth(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(newAuthServer(t).Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp := roundTrip(t, conn, MessageTypeAuth, "1", AuthData{Token: "tok-bob"})
	require.Equal(t, MessageTypeError, resp.Type)
	var errData ErrorData
	require.NoError(t, resp.Decode(&errData))
	assert.Equal(t, CodeUnauthenticated, errData.Code)

	resp = roundTrip(t, conn, MessageTypeAuth, "2", AuthData{Token: "down"})
	require.NoError(t, resp.Decode(&errData))
	assert.Equal(t, CodeAuthUnavailable, errData.Code)

	resp = roundTrip(t, conn, MessageTypeAuth, "3", AuthData{Token: "tok-alice"})
	require.Equal(t, MessageTypeAuthResponse, resp.Type)
	var authResp AuthResponseData
	require.NoError(t, resp.Decode(&authResp))
	assert.Equal(t, "alice", authResp.UserID)
}
