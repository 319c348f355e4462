package transfer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// expiryMargin is subtracted from the upstream expires_in so a token is
// never used when it could expire mid-flight.
const expiryMargin = 300 * time.Second

// exchangeTimeout bounds a detached credential exchange.
const exchangeTimeout = 10 * time.Second

// TokenCache obtains a bearer token from the client-credentials endpoint
// and caches it until shortly before expiry. Concurrent refreshes are
// coalesced into a single outstanding exchange.
type TokenCache struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       zerolog.Logger

	now   func() time.Time
	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client, logger zerolog.Logger) *TokenCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenCache{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With().Str("component", "token_cache").Logger(),
		now:          time.Now,
	}
}

// AuthHeader returns the Authorization header for upstream calls,
// performing a credential exchange if no valid token is cached.
func (c *TokenCache) AuthHeader(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.expiry
	c.mu.Unlock()

	if token != "" && c.now().Before(expiry) {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	}

	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have
		// refreshed while this one waited to enter.
		c.mu.Lock()
		token, expiry := c.token, c.expiry
		c.mu.Unlock()
		if token != "" && c.now().Before(expiry) {
			return token, nil
		}
		// The exchange serves every caller piled on this flight, so it
		// runs detached from the first caller's context: one cancelled
		// caller must not fail the waiters.
		exCtx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
		defer cancel()
		return c.exchange(exCtx)
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + v.(string)}, nil
}

func (c *TokenCache) exchange(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if payload.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	expiry := c.now().Add(time.Duration(payload.ExpiresIn)*time.Second - expiryMargin)

	c.mu.Lock()
	c.token = payload.AccessToken
	c.expiry = expiry
	c.mu.Unlock()

	c.logger.Debug().Time("expiry", expiry).Msg("bearer token refreshed")
	return payload.AccessToken, nil
}
