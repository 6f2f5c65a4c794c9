package data

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"battle-arena/internal/model"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com"

// coinIDs maps universe symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	model.SymbolBTC:  "bitcoin",
	model.SymbolETH:  "ethereum",
	model.SymbolDOGE: "dogecoin",
	model.SymbolPEPE: "pepe",
}

// CoinGeckoClient fetches spot and historical USD prices from the CoinGecko API.
type CoinGeckoClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewCoinGeckoClient creates a new CoinGecko client.
// If baseURL is empty, defaults to the public API host. The demo API key is optional.
func NewCoinGeckoClient(apiKey, baseURL string, logger *zap.Logger) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoinGeckoClient{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		Logger: logger.Named("coingecko"),
	}
}

// CoinGeckoError represents a non-200 answer from the CoinGecko API.
type CoinGeckoError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string // For rate limit errors
}

func (e *CoinGeckoError) Error() string {
	return e.Message
}

// FetchPrices returns the current USD price of every universe symbol.
func (c *CoinGeckoClient) FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	ids := ""
	for i, sym := range model.Universe {
		if i > 0 {
			ids += ","
		}
		ids += coinIDs[sym]
	}
	q := url.Values{}
	q.Set("ids", ids)
	q.Set("vs_currencies", "usd")

	var body map[string]map[string]decimal.Decimal
	if err := c.get(ctx, "/api/v3/simple/price", q, &body); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(model.Universe))
	for _, sym := range model.Universe {
		quote, ok := body[coinIDs[sym]]
		if !ok {
			continue
		}
		usd, ok := quote["usd"]
		if !ok {
			continue
		}
		prices[sym] = usd
	}
	return prices, nil
}

// History returns [time, price] points for symbol over the last days days.
func (c *CoinGeckoClient) History(ctx context.Context, symbol string, days int) ([]model.PricePoint, error) {
	id, ok := coinIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSymbol, symbol)
	}
	if days <= 0 {
		days = 1
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))

	var body struct {
		Prices [][]decimal.Decimal `json:"prices"`
	}
	if err := c.get(ctx, "/api/v3/coins/"+id+"/market_chart", q, &body); err != nil {
		return nil, err
	}

	points := make([]model.PricePoint, 0, len(body.Prices))
	for _, row := range body.Prices {
		if len(row) < 2 {
			continue
		}
		points = append(points, model.PricePoint{
			Time:  time.UnixMilli(row[0].IntPart()).UTC(),
			Price: row[1],
		})
	}
	return points, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, q url.Values, out any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.APIKey)
	}

	start := time.Now()
	resp, err := c.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.Logger.Warn("request failed", zap.String("path", u.Path), zap.Duration("duration", duration), zap.Error(err))
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	c.Logger.Debug("response", zap.String("path", u.Path), zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return &CoinGeckoError{
			StatusCode: resp.StatusCode,
			Code:       "UNAUTHORIZED",
			Message:    "Invalid API key or insufficient permissions",
		}
	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		c.Logger.Warn("rate limited", zap.String("retry_after", retryAfter))
		return &CoinGeckoError{
			StatusCode: resp.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    fmt.Sprintf("Rate limit exceeded. Retry after: %s", retryAfter),
			RetryAfter: retryAfter,
		}
	default:
		return &CoinGeckoError{
			StatusCode: resp.StatusCode,
			Code:       "API_ERROR",
			Message:    fmt.Sprintf("API returned status %d: %s", resp.StatusCode, resp.Status),
		}
	}

	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
