package binance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/adapters/binance"
	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const klinesFixture = `[
	[1780315200000, "97000.00", "97100.00", "96950.00", "97050.00", "12.5", 1780315259999, "0", 100, "0", "0", "0"],
	[1780315260000, "97050.00", "97400.00", "97040.00", "97390.00", "30.1", 1780315319999, "0", 250, "0", "0", "0"],
	[1780315320000, "97390.00"]
]`

func newClient(srv *httptest.Server) *binance.Client {
	c := binance.NewClient(srv.URL)
	c.SetRetryWait(0)
	return c
}

func TestRecentCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "40", r.URL.Query().Get("limit"))
		w.Write([]byte(klinesFixture))
	}))
	defer srv.Close()

	candles, err := newClient(srv).RecentCandles(context.Background(), "BTC/USDT", "1m", 40)
	require.NoError(t, err)
	require.Len(t, candles, 2, "las filas incompletas se descartan")

	c := candles[1]
	assert.Equal(t, time.Date(2026, 6, 1, 12, 1, 0, 0, time.UTC), c.Timestamp)
	assert.InDelta(t, 97050.0, c.Open, 1e-9)
	assert.InDelta(t, 97400.0, c.High, 1e-9)
	assert.InDelta(t, 97040.0, c.Low, 1e-9)
	assert.InDelta(t, 97390.0, c.Close, 1e-9)
	assert.InDelta(t, 30.1, c.Volume, 1e-9)
	assert.True(t, candles[0].Timestamp.Before(c.Timestamp))
}

func TestRecentCandles_ServesLastGoodOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(klinesFixture))
	}))
	defer srv.Close()

	client := newClient(srv)
	first, err := client.RecentCandles(context.Background(), "BTC/USDT", "1m", 40)
	require.NoError(t, err)

	fail.Store(true)
	second, err := client.RecentCandles(context.Background(), "BTC/USDT", "1m", 40)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = client.RecentCandles(context.Background(), "ETH/USDT", "1m", 40)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestRecentCandles_MalformedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."`))
	}))
	defer srv.Close()

	_, err := newClient(srv).RecentCandles(context.Background(), "BTC/USDT", "1m", 40)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestRecentCandles_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).RecentCandles(context.Background(), "DOGE/XYZ", "1m", 40)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol.")
	assert.NotErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRecentCandles_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(klinesFixture))
	}))
	defer srv.Close()

	candles, err := newClient(srv).RecentCandles(context.Background(), "BTC/USDT", "1m", 40)
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSpotPrice(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"symbol": "ETHUSDT", "price": "3512.45000000"}`))
	}))
	defer srv.Close()

	client := newClient(srv)
	price, err := client.SpotPrice(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 3512.45, price, 1e-9)

	fail.Store(true)
	price, err = client.SpotPrice(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 3512.45, price, 1e-9, "sirve el último precio conocido")
}

func TestSpotPrice_NoHistoryFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "ETHUSDT"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).SpotPrice(context.Background(), "ETH/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
