package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPSourceConfig configures the historical candle source
type HTTPSourceConfig struct {
	BaseURL      string
	Symbol       string
	Interval     time.Duration
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second
	PageSize     int
}

// DefaultHTTPSourceConfig returns recommended defaults
func DefaultHTTPSourceConfig() HTTPSourceConfig {
	return HTTPSourceConfig{
		Interval:     time.Hour,
		Timeout:      30 * time.Second,
		MaxRetries:   5,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
		RateLimit:    10.0,
		PageSize:     1000,
	}
}

// HTTPSource fetches historical candles from a REST endpoint with
// retries and client-side rate limiting.
type HTTPSource struct {
	cfg     HTTPSourceConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewHTTPSource creates a candle source
func NewHTTPSource(cfg HTTPSourceConfig, logger *logrus.Logger) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("candle source requires a base URL")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10.0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = candleRetryPolicy()
	retryClient.Logger = nil

	return &HTTPSource{
		cfg:     cfg,
		client:  retryClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger,
	}, nil
}

// candleRecord is the wire format: [time, open, high, low, close, volume]
type candleRecord [6]json.Number

// Fetch retrieves candles between start and end, paging until the
// window is covered.
func (s *HTTPSource) Fetch(ctx context.Context, start, end time.Time) (*Series, error) {
	candles := make([]Candle, 0, s.cfg.PageSize)
	cursor := start

	for cursor.Before(end) {
		page, err := s.fetchPage(ctx, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		candles = append(candles, page...)
		cursor = page[len(page)-1].Time.Add(s.cfg.Interval)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles returned for %s between %s and %s",
			s.cfg.Symbol, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"symbol":  s.cfg.Symbol,
			"candles": len(candles),
		}).Info("Fetched historical candles")
	}
	return NewSeries(candles, s.cfg.Interval)
}

func (s *HTTPSource) fetchPage(ctx context.Context, start, end time.Time) ([]Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("symbol", s.cfg.Symbol)
	q.Set("interval", intervalToken(s.cfg.Interval))
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(s.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("candle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("candle request returned %d: %s", resp.StatusCode, string(body))
	}

	var records []candleRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}

	candles := make([]Candle, 0, len(records))
	for i, rec := range records {
		c, err := rec.toCandle()
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (r candleRecord) toCandle() (Candle, error) {
	ms, err := r[0].Int64()
	if err != nil {
		return Candle{}, fmt.Errorf("bad timestamp: %w", err)
	}
	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		values[i], err = r[i+1].Float64()
		if err != nil {
			return Candle{}, fmt.Errorf("bad field %d: %w", i+1, err)
		}
	}
	return Candle{
		Time: time.UnixMilli(ms).UTC(), Open: values[0], High: values[1],
		Low: values[2], Close: values[3], Volume: values[4],
	}, nil
}

func intervalToken(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
}

func candleRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return true, err
		}
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}
}
