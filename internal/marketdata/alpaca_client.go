package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/marketwise/backtester/pkg/types"
)

// AlpacaClient fetches historical bars from the Alpaca Markets REST API.
// It implements HistoricalBarSource; it carries none of the real-time
// streaming machinery a live-trading client would need.
type AlpacaClient struct {
	config *Config
	logger zerolog.Logger

	httpClient *http.Client

	// limiter throttles outbound REST calls so concurrent optimizer/
	// walk-forward workers fetching the same symbol don't trip Alpaca's
	// per-key rate limit.
	limiter *rate.Limiter
}

// NewAlpacaClient creates a new Alpaca historical-data client.
func NewAlpacaClient(config *Config, logger zerolog.Logger) (*AlpacaClient, error) {
	if config.APIKey == "" || config.APISecret == "" {
		return nil, fmt.Errorf("Alpaca API key and secret are required")
	}

	return &AlpacaClient{
		config: config,
		logger: logger.With().Str("component", "alpaca_client").Logger(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(3), 5), // 3 req/s sustained, burst of 5
	}, nil
}

// HistoricalBars fetches historical bar data from Alpaca's REST API.
// Implements HistoricalBarSource.
func (c *AlpacaClient) HistoricalBars(ctx context.Context, symbol string, timeframe string, start, end time.Time) ([]types.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Time("start", start).
		Time("end", end).
		Msg("Fetching historical bars")

	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars", c.config.DataURL, symbol)

	params := url.Values{}
	params.Add("timeframe", timeframe)
	params.Add("start", start.Format(time.RFC3339))
	params.Add("end", end.Format(time.RFC3339))
	params.Add("feed", c.config.FeedType)
	params.Add("limit", "10000") // Max bars per request

	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("APCA-API-KEY-ID", c.config.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.config.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp AlpacaBarsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	bars := make([]types.Bar, 0, len(apiResp.Bars))
	for _, alpacaBar := range apiResp.Bars {
		bars = append(bars, types.Bar{
			Symbol:     symbol,
			Timestamp:  alpacaBar.Timestamp,
			Open:       alpacaBar.Open,
			High:       alpacaBar.High,
			Low:        alpacaBar.Low,
			Close:      alpacaBar.Close,
			Volume:     alpacaBar.Volume,
			VWAP:       alpacaBar.VWAP,
			TradeCount: alpacaBar.TradeCount,
		})
	}

	c.logger.Info().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars_count", len(bars)).
		Msg("Fetched historical bars")

	return bars, nil
}

// GetName returns provider name
func (c *AlpacaClient) GetName() string {
	return "alpaca"
}

// AlpacaBarsResponse represents Alpaca API response for bars
type AlpacaBarsResponse struct {
	Bars          []AlpacaBar `json:"bars"`
	Symbol        string      `json:"symbol"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

// AlpacaBar represents a bar from Alpaca API
type AlpacaBar struct {
	Timestamp  time.Time `json:"t"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     int64     `json:"v"`
	VWAP       float64   `json:"vw"`
	TradeCount int       `json:"n"`
}
