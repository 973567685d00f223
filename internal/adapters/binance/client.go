// Package binance lee velas y precio spot de la API REST pública de Binance.
package binance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const (
	defaultBase = "https://api.binance.com"
	klinesPath  = "/api/v3/klines"
	tickerPath  = "/api/v3/ticker/price"

	// Peso 1200/min → 600/min al 50%: 10/s.
	ratePerSec = 10

	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond
	maxKlines     = 1000
)

// Client implementa ports.MarketData. Si una petición falla y hay datos
// previos del mismo símbolo, los devuelve y loguea un warning.
type Client struct {
	http      *http.Client
	base      string
	limiter   *rate.Limiter
	retryWait time.Duration

	mu      sync.Mutex
	candles map[string][]domain.Candle // symbol|interval → última respuesta buena
	spot    map[string]float64
}

// NewClient crea el client. Con base vacío usa la API de producción.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		base:      strings.TrimRight(base, "/"),
		limiter:   rate.NewLimiter(ratePerSec, 5),
		retryWait: baseRetryWait,
		candles:   make(map[string][]domain.Candle),
		spot:      make(map[string]float64),
	}
}

// SetRetryWait cambia la espera base del backoff. Los tests la bajan a 0.
func (c *Client) SetRetryWait(d time.Duration) { c.retryWait = d }

// RecentCandles devuelve las últimas count velas en orden cronológico.
// La última vela puede estar todavía en formación.
func (c *Client) RecentCandles(ctx context.Context, symbol, interval string, count int) ([]domain.Candle, error) {
	count = min(max(count, 1), maxKlines)
	q := url.Values{}
	q.Set("symbol", pairOf(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(count))

	key := symbol + "|" + interval
	body, err := c.get(ctx, c.base+klinesPath+"?"+q.Encode())
	if err == nil {
		var candles []domain.Candle
		if candles, err = parseKlines(body); err == nil {
			c.mu.Lock()
			c.candles[key] = candles
			c.mu.Unlock()
			return candles, nil
		}
	}

	c.mu.Lock()
	cached, ok := c.candles[key]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("binance.RecentCandles %s: %w", symbol, err)
	}
	slog.Warn("candle fetch failed, serving last good candles",
		"symbol", symbol, "cached", len(cached), "err", err)
	return append([]domain.Candle(nil), cached...), nil
}

// SpotPrice devuelve el último precio negociado, o el último conocido si la
// petición falla.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.get(ctx, c.base+tickerPath+"?symbol="+url.QueryEscape(pairOf(symbol)))
	if err == nil {
		price := gjson.GetBytes(body, "price").Float()
		if price > 0 {
			c.mu.Lock()
			c.spot[symbol] = price
			c.mu.Unlock()
			return price, nil
		}
		err = fmt.Errorf("ticker without price: %w", domain.ErrUnavailable)
	}

	c.mu.Lock()
	last, ok := c.spot[symbol]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("binance.SpotPrice %s: %w", symbol, err)
	}
	slog.Warn("spot fetch failed, serving last price", "symbol", symbol, "price", last, "err", err)
	return last, nil
}

// pairOf convierte "BTC/USDT" en "BTCUSDT".
func pairOf(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// parseKlines lee el array de klines: [openTime, open, high, low, close, volume, ...].
// Los precios vienen como strings.
func parseKlines(body []byte) ([]domain.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("klines: invalid json: %w", domain.ErrUnavailable)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("klines: expected array: %w", domain.ErrUnavailable)
	}

	rows := root.Array()
	candles := make([]domain.Candle, 0, len(rows))
	for _, k := range rows {
		f := k.Array()
		if len(f) < 6 {
			continue
		}
		candles = append(candles, domain.Candle{
			Timestamp: time.UnixMilli(f[0].Int()).UTC(),
			Open:      f[1].Float(),
			High:      f[2].Float(),
			Low:       f[3].Float(),
			Close:     f[4].Float(),
			Volume:    f[5].Float(),
		})
	}
	return candles, nil
}

// get hace un GET con rate limiting y backoff exponencial.
// 429/418 y 5xx se reintentan; el resto de 4xx no.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w: %w", domain.ErrUnavailable, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return nil, fmt.Errorf("request failed: %w: %w", domain.ErrUnavailable, err)
			}
			c.sleep(ctx, attempt)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
			slog.Warn("binance rate limited", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, gjson.GetBytes(body, "msg").String())
		}
		if readErr != nil {
			return nil, fmt.Errorf("read body: %w: %w", domain.ErrUnavailable, readErr)
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", maxRetries, domain.ErrUnavailable)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
