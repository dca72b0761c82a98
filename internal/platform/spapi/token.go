package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenSafetyMargin is subtracted from the token's reported lifetime so a
// token is never used right at its expiry.
const tokenSafetyMargin = 60 * time.Second

// tokenSource caches a bearer token and refreshes it before expiry. The
// mutex is held across the refresh call, so only one refresh proceeds at a
// time; concurrent callers block until the refreshed token is available.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	httpClient   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func newTokenSource(tokenURL, clientID, clientSecret, refreshToken string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns the cached bearer token, refreshing it when it is within the
// safety margin of its expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiresAt.Add(-tokenSafetyMargin)) {
		return ts.token, nil
	}

	token, expiresIn, err := ts.refresh(ctx)
	if err != nil {
		return "", err
	}

	ts.token = token
	ts.expiresAt = ts.now().Add(expiresIn)
	return ts.token, nil
}

// refresh performs the OAuth token exchange. Callers must hold ts.mu.
func (ts *tokenSource) refresh(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {ts.refreshToken},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("spapi: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("spapi: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("spapi: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("spapi: token refresh failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("spapi: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("spapi: token response contained no access token")
	}

	expiresIn := time.Duration(payload.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return payload.AccessToken, expiresIn, nil
}
