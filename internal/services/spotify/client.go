// Package spotify implements the enrichment source backed by the Spotify Web
// API using the client-credentials flow. It exists behind the enrich.Source
// interface so tests and offline runs can substitute a fake.
package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"

	"trackforge/internal/logging"
	"trackforge/internal/normalize"
	"trackforge/internal/services"
)

const enricherStage = "enriching"

// tokenTransport adds the bearer token to every request.
type tokenTransport struct {
	base      http.RoundTripper
	token     string
	tokenType string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", t.tokenType+" "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Client fetches audio features through the Spotify Web API.
type Client struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenType   string
	expiresAt   time.Time
}

// NewClient validates credentials and constructs a Spotify-backed source.
func NewClient(clientID, clientSecret, tokenURL string, logger *slog.Logger) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, services.Wrap(services.ErrConfiguration, enricherStage, "spotify client", "client id and secret are required", nil)
	}
	if strings.TrimSpace(tokenURL) == "" {
		tokenURL = "https://accounts.spotify.com/api/token"
	}
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logging.NewComponentLogger(logger, "spotify"),
	}, nil
}

// AudioFeatures implements enrich.Source. Systemic faults (unreachable
// endpoint, rejected credentials) carry the enrichment-unavailable marker;
// rate limits and server errors carry the transient marker.
func (c *Client) AudioFeatures(ctx context.Context, trackIDs []string) ([]*normalize.AudioFeatures, error) {
	api, err := c.apiClient(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]spotifyapi.ID, 0, len(trackIDs))
	for _, id := range trackIDs {
		ids = append(ids, spotifyapi.ID(id))
	}

	fetched, err := api.GetAudioFeatures(ctx, ids...)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]*normalize.AudioFeatures, 0, len(fetched))
	for _, f := range fetched {
		if f == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, convert(f))
	}
	return out, nil
}

// apiClient returns a zmb3 client carrying a valid cached token.
func (c *Client) apiClient(ctx context.Context) (*spotifyapi.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" || time.Now().After(c.expiresAt) {
		if err := c.refreshTokenLocked(ctx); err != nil {
			return nil, err
		}
	}

	transport := &tokenTransport{token: c.accessToken, tokenType: c.tokenType}
	return spotifyapi.New(&http.Client{Transport: transport, Timeout: 30 * time.Second}), nil
}

func (c *Client) refreshTokenLocked(ctx context.Context) error {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "token request", "", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close token response body", logging.Error(closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return services.Wrap(services.ErrTransient, enricherStage, "token request", "", err)
		}
		return services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "token request", "credentials rejected", err)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "token response", "", err)
	}
	if token.AccessToken == "" {
		return services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "token response", "no access token received", nil)
	}

	c.accessToken = token.AccessToken
	c.tokenType = token.TokenType
	if c.tokenType == "" {
		c.tokenType = "Bearer"
	}
	// Refresh a minute early so in-flight batches never race expiry.
	c.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return nil
}

// classify maps transport and API errors onto the pipeline error taxonomy.
func classify(err error) error {
	var apiErr spotifyapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "spotify api", "authentication failed", err)
		case apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500:
			return services.Wrap(services.ErrTransient, enricherStage, "spotify api", "", err)
		default:
			// Bad ids and similar request-level rejections degrade only the
			// batch that sent them.
			return err
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, enricherStage, "spotify api", "timeout", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, enricherStage, "spotify api", "timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return services.Wrap(services.ErrEnrichmentUnavailable, enricherStage, "spotify api", "endpoint unreachable", err)
	}
	return err
}

func convert(f *spotifyapi.AudioFeatures) *normalize.AudioFeatures {
	return &normalize.AudioFeatures{
		TrackID:          string(f.ID),
		Danceability:     f64(f.Danceability),
		Energy:           f64(f.Energy),
		Loudness:         f64(f.Loudness),
		Speechiness:      f64(f.Speechiness),
		Acousticness:     f64(f.Acousticness),
		Instrumentalness: f64(f.Instrumentalness),
		Liveness:         f64(f.Liveness),
		Valence:          f64(f.Valence),
		Tempo:            f64(f.Tempo),
	}
}

func f64(v float32) *float64 {
	out := float64(v)
	return &out
}
