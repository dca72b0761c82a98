package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
)

func newTokenServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	}))
}

func newTestClient(t *testing.T, endpoint, tokenURL string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(ClientConfig{
		Endpoint:     endpoint,
		TokenURL:     tokenURL,
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		SellerID:     "SELLER1",
		Rate:         1000, // effectively unthrottled in tests
		Burst:        100,
		MaxAttempts:  5,
	}, logger)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func pricingBody() string {
	return `{"data":[{"asin":"B000TEST01","offers":[
		{"sellerId":"A","listingPrice":{"amount":14.5,"currencyCode":"EUR"},"isBuyBoxWinner":false,"fulfillmentType":"FBA"},
		{"sellerId":"B","listingPrice":{"amount":16.0,"currencyCode":"EUR"},"isBuyBoxWinner":true,"fulfillmentType":"FBM"}
	]}]}`
}

func TestGetCompetitivePricingParsesOffers(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-amz-access-token"); got != "tok-1" {
			t.Errorf("access token header = %q, want tok-1", got)
		}
		if got := r.URL.Query().Get("MarketplaceId"); got != "A1PA6795UKMFR9" {
			t.Errorf("MarketplaceId = %q", got)
		}
		io.WriteString(w, pricingBody())
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL)

	offers, err := c.GetCompetitivePricing(context.Background(), "A1PA6795UKMFR9", []string{"B000TEST01"})
	if err != nil {
		t.Fatalf("GetCompetitivePricing: %v", err)
	}

	got := offers["B000TEST01"]
	if len(got) != 2 {
		t.Fatalf("offers = %d, want 2", len(got))
	}
	if got[0].SellerID != "A" || got[0].Price != 14.5 || got[0].IsBuyBox {
		t.Fatalf("first offer = %+v", got[0])
	}
	if !got[1].IsBuyBox {
		t.Fatalf("second offer should hold the buy box: %+v", got[1])
	}
}

func TestClientRetriesRateLimitsWithBackoff(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	var attempts int32
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"code":"QuotaExceeded","message":"slow down"}`)
			return
		}
		io.WriteString(w, pricingBody())
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL)
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := c.GetCompetitivePricing(context.Background(), "A1PA6795UKMFR9", []string{"B000TEST01"})
	if err != nil {
		t.Fatalf("GetCompetitivePricing: %v", err)
	}

	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("backoff delays = %v, want [1s 2s]", delays)
	}
}

func TestBackoffDelayDoublesAndStaysCapped(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 2, want: time.Second},
		{attempt: 3, want: 2 * time.Second},
		{attempt: 7, want: 32 * time.Second},
		{attempt: 8, want: backoffCap},
		{attempt: 40, want: backoffCap},
		{attempt: 500, want: backoffCap},
	}

	for _, tt := range tests {
		got := backoffDelay(tt.attempt)
		if got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
		if got <= 0 {
			t.Errorf("backoffDelay(%d) = %v, must stay positive", tt.attempt, got)
		}
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	var attempts int32
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL)

	_, err := c.GetCompetitivePricing(context.Background(), "A1PA6795UKMFR9", []string{"B000TEST01"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 5 {
		t.Fatalf("attempts = %d, want 5", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	var attempts int32
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"InvalidInput","message":"bad asin"}`)
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL)

	_, err := c.GetCompetitivePricing(context.Background(), "A1PA6795UKMFR9", []string{"bad"})
	if err == nil {
		t.Fatal("want error for HTTP 400")
	}
	if errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("400 should not map to ErrRateLimited: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries)", got)
	}
}

func TestTokenCachedAcrossRequests(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, pricingBody())
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL)

	for i := 0; i < 3; i++ {
		if _, err := c.GetCompetitivePricing(context.Background(), "A1PA6795UKMFR9", []string{"B000TEST01"}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&tokenHits); got != 1 {
		t.Fatalf("token refreshes = %d, want 1 (cached)", got)
	}
}

func TestTokenRefreshedNearExpiry(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	ts := newTokenSource(tokenSrv.URL, "client", "secret", "refresh", tokenSrv.Client())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	ts.now = func() time.Time { return now }

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	// Inside the safety margin of the 1h expiry: must refresh.
	now = base.Add(time.Hour - 30*time.Second)
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := atomic.LoadInt32(&tokenHits); got != 2 {
		t.Fatalf("token refreshes = %d, want 2", got)
	}
}

func TestSubmitPriceUpdate(t *testing.T) {
	var tokenHits int32
	tokenSrv := newTokenServer(t, &tokenHits)
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["sku"] != "SKU-1" || payload["price"] != 14.99 {
			t.Errorf("payload = %v", payload)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"submissionId": "sub-42",
			"status":       "ACCEPTED",
		})
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL)

	receipt, err := c.SubmitPriceUpdate(context.Background(), "A1PA6795UKMFR9", "SKU-1", 14.99, nil)
	if err != nil {
		t.Fatalf("SubmitPriceUpdate: %v", err)
	}
	if receipt.SubmissionID != "sub-42" || receipt.Status != "ACCEPTED" {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestThrottleDelaysBeyondBurst(t *testing.T) {
	th := newThrottle(100, 1) // one request per 10ms

	ctx := context.Background()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	start := time.Now()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("second Wait returned after %v, want a throttle delay", elapsed)
	}
}

func TestThrottleHonoursCancellation(t *testing.T) {
	th := newThrottle(0.001, 1) // ~17 minutes between requests

	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := th.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}
