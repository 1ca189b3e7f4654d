package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Mossos12/AlemAuto/internal/infra"
)

const cacheTTL = 24 * time.Hour

// lookupResponse is returned by the valuation service.
type lookupResponse struct {
	MarketValue string `json:"market_value"`
}

// Client talks to the external valuation HTTP service. Calls are bounded
// by the configured timeout, run through a circuit breaker so a dead
// service fast-fails instead of stalling writes, and successful quotes
// are cached in redis per VIN.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *infra.CircuitBreaker
	rdb        *redis.Client // nil disables caching
}

// NewClient builds a Client. rdb may be nil — caching then becomes a no-op.
func NewClient(baseURL string, timeout time.Duration, rdb *redis.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    infra.NewCircuitBreaker(infra.DefaultCBConfig()),
		rdb:        rdb,
	}
}

// Breaker exposes the circuit state for the health endpoint.
func (c *Client) Breaker() *infra.CircuitBreaker { return c.breaker }

// Lookup fetches an estimate for the vehicle. Every failure path comes
// back wrapped in ErrUnavailable.
func (c *Client) Lookup(ctx context.Context, req Request) (decimal.Decimal, error) {
	if cached, ok := c.fromCache(ctx, req.VIN); ok {
		return cached, nil
	}

	var value decimal.Decimal
	err := c.breaker.Execute(func() error {
		v, err := c.fetch(ctx, req)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.toCache(ctx, req.VIN, value)
	return value, nil
}

func (c *Client) fetch(ctx context.Context, req Request) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("vin", req.VIN)
	q.Set("make", req.Make)
	q.Set("model", req.Model)
	q.Set("year", strconv.Itoa(req.Year))
	q.Set("mileage", strconv.Itoa(req.Mileage))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/valuations?"+q.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("valuation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("valuation service returned %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode response: %w", err)
	}
	value, err := decimal.NewFromString(body.MarketValue)
	if err != nil || value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("malformed market_value %q", body.MarketValue)
	}
	return value, nil
}

// ── Redis write-through cache ────────────────────────────────────────────────

func cacheKey(vin string) string { return "valuation:" + vin }

func (c *Client) fromCache(ctx context.Context, vin string) (decimal.Decimal, bool) {
	if c.rdb == nil {
		return decimal.Decimal{}, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(vin)).Result()
	if err != nil {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

func (c *Client) toCache(ctx context.Context, vin string, value decimal.Decimal) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(vin), value.String(), cacheTTL).Err(); err != nil {
		log.Debug().Err(err).Str("vin", vin).Msg("valuation cache write failed")
	}
}

var _ Oracle = (*Client)(nil)
