// Package execution dimensiona las señales, las ejecuta a través de un backend
// simulado o live y mantiene el registro persistido de cada una.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/metrics"
	"github.com/alejandrodnm/polyrevert/internal/ports"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

// Gateway es la única puerta de entrada y salida de posiciones.
type Gateway struct {
	backend Backend
	store   ports.SignalStore
	notices ports.NoticeSink // nil = sin avisos
	minSize float64
	maxSize float64
	now     func() time.Time

	mu sync.Mutex // serializa cierres para que sean idempotentes
}

// Option configura un Gateway.
type Option func(*Gateway)

// WithClock sustituye el reloj usado para sellar entradas y salidas.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithNotices activa el envío best-effort de avisos de ejecución.
func WithNotices(sink ports.NoticeSink) Option {
	return func(g *Gateway) { g.notices = sink }
}

// New crea un Gateway con el backend y el store dados.
func New(backend Backend, store ports.SignalStore, p strategy.Params, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		store:   store,
		minSize: p.MinPositionUSD,
		maxSize: p.MaxPositionUSD,
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Backend devuelve el backend activo.
func (g *Gateway) Backend() Backend { return g.backend }

// Size devuelve clamp(bankroll·kelly, floor, ceiling) y false si la operación
// no se puede dimensionar (kelly no positivo o bankroll por debajo del mínimo).
func (g *Gateway) Size(bankroll, kelly float64) (float64, bool) {
	if kelly <= 0 || bankroll < g.minSize {
		return 0, false
	}
	size := math.Max(g.minSize, math.Min(g.maxSize, bankroll*kelly))
	if size < g.minSize {
		return 0, false
	}
	return size, true
}

// ExecuteSignal dimensiona y ejecuta una señal. Devuelve (nil, nil) si el
// dimensionado la rechaza. Si el backend falla, el registro queda PENDING y
// el error envuelve domain.ErrExecution.
func (g *Gateway) ExecuteSignal(ctx context.Context, sig domain.Signal, bankroll float64) (*domain.Position, error) {
	size, ok := g.Size(bankroll, sig.KellyFraction)
	if !ok {
		slog.Debug("sizing rejected",
			"symbol", sig.Symbol,
			"bankroll", fmt.Sprintf("$%.2f", bankroll),
			"kelly", fmt.Sprintf("%.4f", sig.KellyFraction),
		)
		metrics.Executions.WithLabelValues(sig.Symbol, "rejected").Inc()
		return nil, nil
	}

	rec := domain.NewSignalRecord(sig)
	rec.SizeUSD = size
	rec.UpdatedAt = g.now()
	if err := g.store.UpsertSignal(ctx, rec); err != nil {
		return nil, fmt.Errorf("execution.ExecuteSignal: persist pending: %w", err)
	}

	fill, err := g.backend.Open(ctx, sig, size)
	if err != nil {
		metrics.Executions.WithLabelValues(sig.Symbol, "failed").Inc()
		return nil, fmt.Errorf("execution.ExecuteSignal: %s open %s: %w: %w", g.backend.Name(), rec.ID, domain.ErrExecution, err)
	}

	pos := &domain.Position{
		Signal:     sig,
		OrderID:    fill.OrderID,
		EntryTime:  g.now(),
		SizeUSD:    fill.SizeUSD,
		EntryPrice: fill.Price,
		Status:     domain.PositionOpen,
	}

	rec.Status = domain.SignalExecuted
	rec.OrderID = fill.OrderID
	rec.SizeUSD = fill.SizeUSD
	rec.EntryTime = &pos.EntryTime
	rec.UpdatedAt = g.now()
	if err := g.store.UpsertSignal(ctx, rec); err != nil {
		slog.Error("persist executed signal failed", "id", rec.ID, "err", err)
	}

	metrics.Executions.WithLabelValues(sig.Symbol, "filled").Inc()
	slog.Info("position opened",
		"backend", g.backend.Name(),
		"symbol", sig.Symbol,
		"direction", sig.Direction,
		"outcome", sig.Outcome,
		"size", fmt.Sprintf("$%.2f", pos.SizeUSD),
		"entry", fmt.Sprintf("%.3f", pos.EntryPrice),
		"order_id", pos.OrderID,
	)

	g.notify(ctx, pos)
	return pos, nil
}

// ClosePosition cierra la posición a la cotización YES dada y devuelve el P&L
// realizado. Cerrar una posición ya cerrada devuelve (0, false, nil). Si el
// backend falla la posición sigue abierta.
func (g *Gateway) ClosePosition(ctx context.Context, pos *domain.Position, exitYes float64) (float64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !pos.IsOpen() {
		return 0, false, nil
	}
	if err := g.backend.Close(ctx, pos, exitYes); err != nil {
		return 0, false, fmt.Errorf("execution.ClosePosition: %s close %s: %w: %w",
			g.backend.Name(), pos.Signal.ID(), domain.ErrExecution, err)
	}
	if !pos.MarkClosed(exitYes, g.now()) {
		return 0, false, nil
	}

	g.persistClose(ctx, pos)

	slog.Info("position closed",
		"symbol", pos.Signal.Symbol,
		"direction", pos.Signal.Direction,
		"exit_yes", fmt.Sprintf("%.3f", exitYes),
		"pnl", fmt.Sprintf("$%+.2f", pos.PnL),
	)
	return pos.PnL, true, nil
}

// Restore reconstruye las posiciones abiertas a partir de los registros
// EXECUTED persistidos. Se usa al arrancar para reconciliar tras un reinicio.
func (g *Gateway) Restore(ctx context.Context) ([]*domain.Position, error) {
	recs, err := g.store.OpenSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("execution.Restore: %w", err)
	}

	out := make([]*domain.Position, 0, len(recs))
	for _, rec := range recs {
		if rec.EntryTime == nil || rec.Signal.EntryPrice <= 0 {
			slog.Warn("skipping unrecoverable record", "id", rec.ID)
			continue
		}
		out = append(out, &domain.Position{
			Signal:     rec.Signal,
			OrderID:    rec.OrderID,
			EntryTime:  *rec.EntryTime,
			SizeUSD:    rec.SizeUSD,
			EntryPrice: rec.Signal.EntryPrice,
			Status:     domain.PositionOpen,
		})
	}
	return out, nil
}

func (g *Gateway) persistClose(ctx context.Context, pos *domain.Position) {
	id := pos.Signal.ID()
	rec, ok, err := g.store.GetSignal(ctx, id)
	if err != nil {
		slog.Warn("load signal record failed", "id", id, "err", err)
	}
	if !ok {
		rec = domain.NewSignalRecord(pos.Signal)
		rec.SizeUSD = pos.SizeUSD
		rec.OrderID = pos.OrderID
		rec.EntryTime = &pos.EntryTime
	}

	pnl := pos.PnL
	rec.Status = domain.SignalClosed
	rec.ExitPrice = pos.ExitPrice
	rec.PnL = &pnl
	rec.UpdatedAt = g.now()
	if err := g.store.UpsertSignal(ctx, rec); err != nil {
		slog.Error("persist closed signal failed", "id", id, "err", err)
	}
}

func (g *Gateway) notify(ctx context.Context, pos *domain.Position) {
	if g.notices == nil {
		return
	}
	if err := g.notices.Notify(ctx, domain.NewExecutionNotice(pos, g.backend.Simulated())); err != nil {
		slog.Warn("execution notice failed", "symbol", pos.Signal.Symbol, "err", err)
	}
}
