package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/adapters/notify"
	"github.com/alejandrodnm/polyrevert/internal/domain"
)

func testPosition() *domain.Position {
	return &domain.Position{
		Signal: domain.Signal{
			Symbol:         "BTC/USDT",
			Timestamp:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
			ZScore:         2.4,
			Direction:      domain.FadeUp,
			WinProbability: 0.65,
			EntryPrice:     0.55,
			ExpectedValue:  0.18,
			KellyFraction:  0.05,
			InstrumentID:   "0xbtc",
			Outcome:        domain.OutcomeNo,
			Title:          "BTC 15m above $97k?",
			Slug:           "btc-15m",
			URL:            "https://polymarket.com/event/btc-15m",
		},
		SizeUSD:    50,
		EntryPrice: 0.55,
		Status:     domain.PositionOpen,
	}
}

func TestWebhook_PostsNotice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/oracle/execute", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := notify.NewWebhook(srv.URL + "/")
	err := hook.Notify(context.Background(), domain.NewExecutionNotice(testPosition(), true))
	require.NoError(t, err)

	assert.Equal(t, "BUY", got["action"])
	assert.Equal(t, "0xbtc", got["market_id"])
	assert.Equal(t, "NO", got["outcome"])
	assert.Equal(t, true, got["simulated"])
	assert.InDelta(t, 50.0, got["size_usd"], 1e-9)

	sig, ok := got["signal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sig_1780315200000000000_BTC_USDT", sig["id"])
	assert.Equal(t, "FADE_UP", sig["direction"])
	assert.InDelta(t, 0.65, sig["confidence"], 1e-9)
	assert.Equal(t, "btc-15m", sig["marketSlug"])
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := notify.NewWebhook(srv.URL).Notify(context.Background(), domain.NewExecutionNotice(testPosition(), false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhook_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := notify.NewWebhook(url).Notify(context.Background(), domain.NewExecutionNotice(testPosition(), false))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
