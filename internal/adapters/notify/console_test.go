package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/adapters/notify"
	"github.com/alejandrodnm/polyrevert/internal/domain"
)

func TestConsole_ReportStats_WithPositions(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	stats := domain.SessionStats{
		Trades: 4, Wins: 3, DailyPnL: 12.5,
		Bankroll: 1012.5, InitialBankroll: 1000,
		TradingEnabled: true,
	}
	open := []domain.Position{{
		Signal: domain.Signal{
			Symbol:    "BTC/USDT",
			Direction: domain.FadeUp,
			Outcome:   domain.OutcomeNo,
			Title:     "Will BTC be above $97,000? 15 min",
		},
		EntryTime:  time.Now().Add(-2 * time.Minute),
		EntryPrice: 0.25,
		SizeUSD:    40,
		Status:     domain.PositionOpen,
	}}

	require.NoError(t, c.ReportStats(context.Background(), stats, open))

	out := buf.String()
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "$+12.50")
	assert.Contains(t, out, "$1012.50")
	assert.Contains(t, out, "OPEN POSITIONS (1)")
	assert.Contains(t, out, "FADE_UP")
	assert.Contains(t, out, "$40.00")
}

func TestConsole_ReportStats_PausedEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	require.NoError(t, c.ReportStats(context.Background(), domain.SessionStats{InitialBankroll: 1000}, nil))
	out := buf.String()
	assert.Contains(t, out, "PAUSED")
	assert.Contains(t, out, "(none)")
}

func TestConsole_PrintSignals(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	pnl := -3.25
	c.PrintSignals([]domain.SignalRecord{
		{
			ID:      "sig_1",
			Signal:  domain.Signal{Symbol: "ETH/USDT", Direction: domain.FadeDown, ZScore: -3.1, WinProbability: 0.75, EntryPrice: 0.4},
			Status:  domain.SignalClosed,
			SizeUSD: 20,
			PnL:     &pnl,
		},
		{
			ID:     "sig_2",
			Signal: domain.Signal{Symbol: "BTC/USDT", Direction: domain.FadeUp, ZScore: 2.4},
			Status: domain.SignalPending,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "ETH/USDT")
	assert.Contains(t, out, "CLOSED")
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "Realized P&L: $-3.25")
}

func TestConsole_PrintSignals_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintSignals(nil)
	assert.Contains(t, buf.String(), "No signals recorded")
}
