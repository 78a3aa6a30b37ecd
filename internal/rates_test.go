package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRateSource_FetchRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "EUR,TRY,GBP,CHF,JPY", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2025-01-15",
			"rates":{"EUR":0.92,"TRY":34.1,"GBP":0.79,"CHF":0.88,"JPY":151.3}}`))
	}))
	defer srv.Close()

	src := NewHTTPRateSource(RatesConfig{URL: srv.URL, Timeout: time.Second})
	rates, err := src.FetchRates(context.Background(), "usd", SupportedCurrencies)
	require.NoError(t, err)

	assert.Equal(t, Rates{"USD": 1.0, "EUR": 0.92, "TRY": 34.1, "GBP": 0.79, "CHF": 0.88, "JPY": 151.3}, rates)
}

func TestHTTPRateSource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"not found", http.StatusNotFound, `{"message":"not found"}`},
		{"empty rates", http.StatusOK, `{"rates":{}}`},
		{"malformed json", http.StatusOK, `{"rates":`},
		{"negative rate", http.StatusOK, `{"rates":{"EUR":-1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewHTTPRateSource(RatesConfig{URL: srv.URL, Timeout: time.Second})
			_, err := src.FetchRates(context.Background(), "USD", SupportedCurrencies)
			assert.ErrorIs(t, err, ErrRateFetch)
		})
	}
}

func TestHTTPRateSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"rates":{"EUR":0.9}}`))
	}))
	defer srv.Close()

	src := NewHTTPRateSource(RatesConfig{URL: srv.URL, Timeout: time.Second, Retries: 2})
	rates, err := src.FetchRates(context.Background(), "USD", []string{"USD", "EUR"})
	require.NoError(t, err)
	assert.Equal(t, 0.9, rates["EUR"])
	assert.Equal(t, int32(2), calls.Load())
}
