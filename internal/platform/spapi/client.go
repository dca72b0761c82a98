package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sdtonline/repricer/internal/domain"
)

const (
	defaultMaxAttempts = 5
	backoffBase        = time.Second
	backoffCap         = 60 * time.Second
)

// ClientConfig holds credentials and limits for the marketplace pricing API.
type ClientConfig struct {
	Endpoint     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	SellerID     string
	Rate         float64
	Burst        int
	MaxAttempts  int
}

// Client is the rate-limited REST client for the marketplace pricing API.
// Every request passes the throttle gate first, carries a cached bearer
// token, and is retried with exponential backoff on transport errors and
// HTTP 429 responses. Other error statuses propagate immediately.
type Client struct {
	endpoint    string
	sellerID    string
	maxAttempts int
	tokens      *tokenSource
	throttle    *throttle
	httpClient  *http.Client
	logger      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new pricing API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		sellerID:    cfg.SellerID,
		maxAttempts: maxAttempts,
		tokens:      newTokenSource(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, httpClient),
		throttle:    newThrottle(cfg.Rate, cfg.Burst),
		httpClient:  httpClient,
		logger:      logger.With(slog.String("component", "spapi")),
		sleep:       sleepCtx,
	}
}

// GetCompetitivePricing fetches current competitor offers for a batch of
// ASINs. The result maps each ASIN to its offers; ASINs absent from the
// response are simply missing from the map.
func (c *Client) GetCompetitivePricing(ctx context.Context, marketplaceExternalID string, asins []string) (map[string][]domain.CompetitorOffer, error) {
	if len(asins) == 0 {
		return map[string][]domain.CompetitorOffer{}, nil
	}

	params := url.Values{}
	params.Set("MarketplaceId", marketplaceExternalID)
	params.Set("Asins", strings.Join(asins, ","))
	params.Set("ItemType", "Asin")

	body, err := c.doRequest(ctx, http.MethodGet, "/products/pricing/v0/competitivePrice?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("spapi: get competitive pricing: %w", err)
	}

	var resp pricingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("spapi: decode competitive pricing: %w", err)
	}

	offers := make(map[string][]domain.CompetitorOffer, len(resp.Data))
	for _, entry := range resp.Data {
		converted := make([]domain.CompetitorOffer, 0, len(entry.Offers))
		for _, o := range entry.Offers {
			converted = append(converted, domain.CompetitorOffer{
				SellerID:        o.SellerID,
				Price:           o.ListingPrice.Amount,
				IsBuyBox:        o.IsBuyBoxWinner,
				FulfillmentType: o.FulfillmentType,
			})
		}
		offers[entry.ASIN] = converted
	}
	return offers, nil
}

// SubmitPriceUpdate pushes a new price for a single SKU. businessPrice is
// optional.
func (c *Client) SubmitPriceUpdate(ctx context.Context, marketplaceExternalID, skuCode string, price float64, businessPrice *float64) (SubmissionReceipt, error) {
	payload := map[string]any{
		"marketplaceId": marketplaceExternalID,
		"sellerId":      c.sellerID,
		"sku":           skuCode,
		"price":         price,
	}
	if businessPrice != nil {
		payload["businessPrice"] = *businessPrice
	}

	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s/price", url.PathEscape(c.sellerID), url.PathEscape(skuCode))
	body, err := c.doRequest(ctx, http.MethodPatch, path, payload)
	if err != nil {
		return SubmissionReceipt{}, fmt.Errorf("spapi: submit price update %s: %w", skuCode, err)
	}

	var receipt SubmissionReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return SubmissionReceipt{}, fmt.Errorf("spapi: decode submission receipt: %w", err)
	}
	return receipt, nil
}

// SubmitBulkFeed uploads a price feed document covering many SKUs at once.
func (c *Client) SubmitBulkFeed(ctx context.Context, marketplaceExternalID string, document []byte) (FeedReceipt, error) {
	payload := map[string]any{
		"marketplaceIds": []string{marketplaceExternalID},
		"sellerId":       c.sellerID,
		"feedType":       "POST_PRODUCT_PRICING_DATA",
		"document":       string(document),
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/feeds/2021-06-30/feeds", payload)
	if err != nil {
		return FeedReceipt{}, fmt.Errorf("spapi: submit bulk feed: %w", err)
	}

	var receipt FeedReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return FeedReceipt{}, fmt.Errorf("spapi: decode feed receipt: %w", err)
	}
	return receipt, nil
}

// doRequest sends a single API request through the throttle gate, retrying
// transient failures with exponential backoff. Only transport errors and
// rate-limit responses are retried.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt)
			c.logger.Warn("retrying request",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// backoffDelay doubles from backoffBase up to backoffCap. The shift exponent
// is bounded so a large attempt count cannot overflow the duration.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 2; i < attempt && delay < backoffCap; i++ {
		delay *= 2
	}
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-amz-access-token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read response: %w", err)}
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrRateLimited)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

// transportError marks network-level failures so the retry loop can tell
// them apart from API error responses.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, domain.ErrRateLimited)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
