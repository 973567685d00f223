package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const gammaFixture = `[
	{
		"conditionId": "0xbtc15",
		"question": "Bitcoin Up or Down - 15 min: will BTC be above $97,000?",
		"description": "Resolves YES if the BTC price is above the open.",
		"slug": "btc-up-or-down-15m",
		"image": "",
		"icon": "https://img/btc.png",
		"outcomes": "[\"Yes\", \"No\"]",
		"outcomePrices": "[\"0.42\", \"0.58\"]",
		"clobTokenIds": "[\"111\", \"222\"]",
		"liquidity": "15234.5",
		"liquidityNum": 15234.5,
		"volume24hr": 8800.25,
		"endDate": "2026-06-01T12:15:00Z",
		"negRisk": false,
		"closed": false
	},
	{
		"conditionId": "0xreversed",
		"question": "ETH 15m price above $3,500?",
		"outcomes": "[\"No\", \"Yes\"]",
		"outcomePrices": "[\"0.30\", \"0.70\"]",
		"clobTokenIds": "[\"333\", \"444\"]",
		"liquidity": "900",
		"negRisk": true,
		"closed": true
	},
	{
		"conditionId": "0xnotokens",
		"question": "Missing tokens",
		"clobTokenIds": "[]"
	},
	{
		"question": "Missing condition id",
		"clobTokenIds": "[\"5\", \"6\"]"
	}
]`

func TestListEligibleInstruments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(gammaFixture))
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	got, err := client.ListEligibleInstruments(context.Background(), domain.ListingFilter{Limit: 50, Active: true})
	require.NoError(t, err)
	require.Len(t, got, 2)

	btc := got[0]
	assert.Equal(t, "0xbtc15", btc.ID)
	assert.Equal(t, "111", btc.YesTokenID)
	assert.Equal(t, "222", btc.NoTokenID)
	assert.InDelta(t, 0.42, btc.YesPrice, 1e-9)
	assert.InDelta(t, 15234.5, btc.Liquidity, 1e-9)
	assert.InDelta(t, 8800.25, btc.Volume24h, 1e-9)
	assert.Equal(t, "https://img/btc.png", btc.Image, "sin image se usa el icon")
	assert.Equal(t, time.Date(2026, 6, 1, 12, 15, 0, 0, time.UTC), btc.EndDate)
	assert.Equal(t, "https://polymarket.com/event/btc-up-or-down-15m", btc.URL())
	assert.False(t, btc.NegRisk)

	rev := got[1]
	assert.Equal(t, "444", rev.YesTokenID, "outcomes en orden No/Yes")
	assert.Equal(t, "333", rev.NoTokenID)
	assert.InDelta(t, 0.70, rev.YesPrice, 1e-9)
	assert.InDelta(t, 900, rev.Liquidity, 1e-9)
	assert.True(t, rev.NegRisk)
	assert.True(t, rev.Closed)
}

func TestListEligibleInstruments_DefaultLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	got, err := client.ListEligibleInstruments(context.Background(), domain.ListingFilter{Active: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListEligibleInstruments_MalformedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "not an array"`))
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	_, err := client.ListEligibleInstruments(context.Background(), domain.ListingFilter{Active: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
