package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	spotifyapi "github.com/zmb3/spotify/v2"

	"trackforge/internal/services"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "secret", "", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := NewClient("id", "", "", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRefreshTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("expected basic auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()

	client, err := NewClient("id", "secret", server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	client.mu.Lock()
	err = client.refreshTokenLocked(context.Background())
	client.mu.Unlock()
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if client.accessToken != "tok-1" || client.tokenType != "Bearer" {
		t.Fatalf("unexpected token state: %q %q", client.accessToken, client.tokenType)
	}
}

func TestRefreshTokenRejectedCredentialsAreSystemic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient("id", "secret", server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	client.mu.Lock()
	err = client.refreshTokenLocked(context.Background())
	client.mu.Unlock()
	if !errors.Is(err, services.ErrEnrichmentUnavailable) {
		t.Fatalf("expected systemic marker, got %v", err)
	}
}

func TestRefreshTokenRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient("id", "secret", server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	client.mu.Lock()
	err = client.refreshTokenLocked(context.Background())
	client.mu.Unlock()
	if !services.IsTransient(err) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", spotifyapi.Error{Status: http.StatusUnauthorized}, services.ErrEnrichmentUnavailable},
		{"forbidden", spotifyapi.Error{Status: http.StatusForbidden}, services.ErrEnrichmentUnavailable},
		{"rate limit", spotifyapi.Error{Status: http.StatusTooManyRequests}, services.ErrTransient},
		{"server error", spotifyapi.Error{Status: http.StatusBadGateway}, services.ErrTransient},
		{"unreachable", &url.Error{Op: "Get", URL: "https://api.spotify.com", Err: errors.New("connection refused")}, services.ErrEnrichmentUnavailable},
		{"deadline", context.DeadlineExceeded, services.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("classify(%v) = %v, want marker %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyLeavesBatchRejectionsUnmarked(t *testing.T) {
	err := classify(spotifyapi.Error{Status: http.StatusBadRequest, Message: "invalid id"})
	if services.IsTransient(err) || errors.Is(err, services.ErrEnrichmentUnavailable) {
		t.Fatalf("bad request must stay a batch-level error, got %v", err)
	}
}
