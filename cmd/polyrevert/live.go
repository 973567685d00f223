package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyrevert/config"
	"github.com/alejandrodnm/polyrevert/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyrevert/internal/application/execution"
)

const abortWindow = 5 * time.Second

type liveSetup struct {
	backend *execution.Live
	trading *polymarket.TradingClient
	balance float64
}

// setupLive da una ventana para abortar, autentica contra el CLOB y lee el
// saldo USDC.e de la wallet. Devuelve context.Canceled si el usuario aborta.
func setupLive(ctx context.Context, cfg *config.Config) (*liveSetup, error) {
	fmt.Printf("\n⚠️  LIVE TRADING MODE — REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Bankroll: $%.2f | Position: $%.2f–$%.2f | Daily loss limit: $%.2f\n",
		cfg.Risk.Bankroll, cfg.Risk.MinPositionUSD, cfg.Risk.MaxPositionUSD, cfg.Risk.DailyLossLimit)
	fmt.Printf("   Press Ctrl+C within %s to abort...\n\n", abortWindow)

	abortTimer := time.NewTimer(abortWindow)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.Execution.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials (check POLY_PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	trading, err := polymarket.NewTradingClient(auth, cfg.API.PolygonRPC)
	if err != nil {
		return nil, fmt.Errorf("trading client: %w", err)
	}

	balance, err := trading.GetBalance(ctx)
	if err != nil {
		trading.Close()
		return nil, fmt.Errorf("wallet balance: %w", err)
	}
	slog.Info("live: wallet balance", "usdc", fmt.Sprintf("$%.2f", balance))

	if balance < cfg.Risk.MinPositionUSD {
		trading.Close()
		return nil, fmt.Errorf("insufficient balance $%.2f < min position $%.2f", balance, cfg.Risk.MinPositionUSD)
	}

	return &liveSetup{
		backend: execution.NewLive(trading),
		trading: trading,
		balance: balance,
	}, nil
}
