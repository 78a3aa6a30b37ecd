package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultRatesURL is the frankfurter.app compatible endpoint used for exchange rates.
const DefaultRatesURL = "https://api.frankfurter.app"

// RateSource fetches exchange rates for targets relative to base.
type RateSource interface {
	FetchRates(ctx context.Context, base string, targets []string) (Rates, error)
}

// HTTPRateSource reads rates from a frankfurter.app compatible HTTP API:
// GET /latest?from=USD&to=EUR,GBP returns {"rates": {"EUR": 0.92, "GBP": 0.79}}.
type HTTPRateSource struct {
	client *resty.Client
}

type latestRatesResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// NewHTTPRateSource creates a rate source from config.
func NewHTTPRateSource(cfg RatesConfig) *HTTPRateSource {
	url := cfg.URL
	if url == "" {
		url = DefaultRatesURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(url, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		})

	return &HTTPRateSource{client: c}
}

func (s *HTTPRateSource) FetchRates(ctx context.Context, base string, targets []string) (Rates, error) {
	base = strings.ToUpper(base)
	var to []string
	for _, code := range targets {
		if code = strings.ToUpper(code); code != base {
			to = append(to, code)
		}
	}

	var body latestRatesResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("from", base).
		SetQueryParam("to", strings.Join(to, ",")).
		SetResult(&body).
		Get("/latest")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateFetch, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrRateFetch, resp.Status())
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("%w: response has no rates", ErrRateFetch)
	}

	rates := make(Rates, len(body.Rates)+1)
	for code, rate := range body.Rates {
		if rate <= 0 {
			return nil, fmt.Errorf("%w: invalid rate %v for %s", ErrRateFetch, rate, code)
		}
		rates[strings.ToUpper(code)] = rate
	}
	rates[base] = 1.0
	return rates, nil
}
