package keyservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

func TestClient_Decrypt_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DecryptPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		var req DecryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		payload, err := base64.StdEncoding.DecodeString(req.Ciphertext)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, payload)
		assert.Equal(t, "k3y", req.Key)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DecryptResponse{Plaintext: "Winter2026!"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "svc-token", srv.Client())
	assert.Equal(t, srv.URL, c.BaseURL())

	got, err := c.Decrypt(context.Background(), []byte{0xde, 0xad, 0xbe, 0xef}, "k3y")
	require.NoError(t, err)
	assert.Equal(t, "Winter2026!", got)
}

func TestClient_Decrypt_NoTokenNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(DecryptResponse{Plaintext: "x"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", nil).Decrypt(context.Background(), []byte{1}, "k")
	require.NoError(t, err)
}

func TestClient_Decrypt_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, driven.ErrWrongKey},
		{"forbidden", http.StatusForbidden, `{}`, driven.ErrWrongKey},
		{"unprocessable", http.StatusUnprocessableEntity, `{"error":"bad key"}`, driven.ErrWrongKey},
		{"server error", http.StatusInternalServerError, `oops`, driven.ErrCapabilityUnavailable},
		{"bad gateway", http.StatusBadGateway, ``, driven.ErrCapabilityUnavailable},
		{"not found", http.StatusNotFound, ``, driven.ErrCapabilityUnavailable},
		{"malformed success body", http.StatusOK, `not json`, driven.ErrCapabilityUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", srv.Client()).Decrypt(context.Background(), []byte{1}, "k")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_Decrypt_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", nil).Decrypt(context.Background(), []byte{1}, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, driven.ErrCapabilityUnavailable)
}

func TestClient_Decrypt_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, "", srv.Client()).Decrypt(ctx, []byte{1}, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, driven.ErrCapabilityUnavailable)
}

func TestClient_Decrypt_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(DecryptResponse{Plaintext: "pw"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	c.SetRateLimit(0.1)

	got, err := c.Decrypt(context.Background(), []byte{1}, "k")
	require.NoError(t, err)
	assert.Equal(t, "pw", got)

	// The next token is ten seconds away, past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = c.Decrypt(ctx, []byte{1}, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_SetRateLimitZeroRemovesCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DecryptResponse{Plaintext: "pw"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	c.SetRateLimit(0.1)
	c.SetRateLimit(0)

	for range 3 {
		_, err := c.Decrypt(context.Background(), []byte{1}, "k")
		require.NoError(t, err)
	}
}
