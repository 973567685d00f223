// Package orchestrator ejecuta el ciclo de trading: gestión de salidas,
// selección de mercado, velas, señal, ejecución y registro de la posición.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyrevert/internal/application/execution"
	"github.com/alejandrodnm/polyrevert/internal/application/risk"
	"github.com/alejandrodnm/polyrevert/internal/application/selector"
	"github.com/alejandrodnm/polyrevert/internal/application/signal"
	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/metrics"
	"github.com/alejandrodnm/polyrevert/internal/ports"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

// Umbrales de la cotización YES a partir de los cuales el mercado se da por resuelto.
const (
	resolvedLow  = 0.01
	resolvedHigh = 0.99
)

// CycleResult resume lo que hizo un ciclo.
type CycleResult struct {
	Paused    bool
	Evaluated int
	Signals   int
	Opened    int
	Closed    int
	Skipped   int
}

// Deps agrupa las dependencias del orquestador.
type Deps struct {
	Data     ports.MarketData
	Selector *selector.Selector
	Engine   *signal.Engine
	Risk     *risk.Manager
	Gateway  *execution.Gateway
	Marks    ports.MarkProvider  // nil = salidas sin precio de mercado
	Reporter ports.StatsReporter // nil = sin resumen de sesión
}

// Orchestrator es secuencial y no reentrante: un solo goroutine llama a RunOnce.
type Orchestrator struct {
	params strategy.Params
	deps   Deps
	now    func() time.Time

	buffers    map[string]*domain.CandleBuffer
	lastCandle map[string]time.Time // vela que produjo la última señal por símbolo
	day        time.Time
	cycles     int
}

// Option configura un Orchestrator.
type Option func(*Orchestrator)

// WithClock sustituye el reloj usado para el cambio de día.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New crea un Orchestrator.
func New(p strategy.Params, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		params:     p,
		deps:       deps,
		now:        time.Now,
		buffers:    make(map[string]*domain.CandleBuffer, len(p.Symbols)),
		lastCandle: make(map[string]time.Time, len(p.Symbols)),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, s := range p.Symbols {
		o.buffers[s] = domain.NewCandleBufferFor(p.Lookback)
	}
	o.day = dayOf(o.now())
	return o
}

// Reconcile reabre en el RiskManager las posiciones que quedaron abiertas
// en una ejecución anterior.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	positions, err := o.deps.Gateway.Restore(ctx)
	if err != nil {
		return 0, fmt.Errorf("orchestrator.Reconcile: %w", err)
	}
	for _, p := range positions {
		o.deps.Risk.RestorePosition(p)
		slog.Info("position restored",
			"symbol", p.Signal.Symbol,
			"order_id", p.OrderID,
			"size", fmt.Sprintf("$%.2f", p.SizeUSD),
			"entry_time", p.EntryTime.Format(time.RFC3339),
		)
	}
	return len(positions), nil
}

// Run ejecuta ciclos hasta que el contexto se cancele, esperando el poll
// interval entre ciclos. Las posiciones abiertas se dejan abiertas al salir.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("orchestrator starting",
		"symbols", o.params.Symbols,
		"interval", o.params.PollInterval,
		"backend", o.deps.Gateway.Backend().Name(),
		"bankroll", fmt.Sprintf("$%.2f", o.deps.Risk.Bankroll()),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.report(context.Background())
			slog.Info("orchestrator stopped", "cycles", o.cycles, "open_positions", len(o.deps.Risk.OpenPositions()))
			return nil
		case <-timer.C:
		}

		o.RunOnce(ctx)
		if o.params.StatsEvery > 0 && o.cycles%o.params.StatsEvery == 0 {
			o.report(ctx)
		}
		timer.Reset(o.params.PollInterval)
	}
}

// RunOnce ejecuta un ciclo completo.
func (o *Orchestrator) RunOnce(ctx context.Context) CycleResult {
	start := o.now()
	o.cycles++
	var res CycleResult

	if d := dayOf(start); d.After(o.day) {
		slog.Info("day rollover", "day", d.Format("2006-01-02"))
		o.deps.Risk.ResetDaily()
		o.day = d
	}

	canTrade := o.deps.Risk.CanTrade()

	marks := o.fetchMarks(ctx)
	res.Closed += len(o.deps.Risk.CheckTimeStops(ctx, o.deps.Gateway, marks))
	res.Closed += o.manageTargets(ctx, marks)

	if !canTrade {
		res.Paused = true
		metrics.Cycles.WithLabelValues("paused").Inc()
		slog.Debug("trading paused, entries skipped")
		return res
	}

	for _, symbol := range o.params.Symbols {
		if ctx.Err() != nil {
			break
		}
		o.processSymbol(ctx, symbol, &res)
	}

	metrics.Cycles.WithLabelValues("ok").Inc()
	slog.Debug("cycle complete",
		"evaluated", res.Evaluated,
		"signals", res.Signals,
		"opened", res.Opened,
		"closed", res.Closed,
		"skipped", res.Skipped,
		"duration", o.now().Sub(start).Round(time.Millisecond),
	)
	return res
}

// processSymbol ejecuta el pipeline de un símbolo. Los fallos transitorios
// saltan el símbolo hasta el siguiente ciclo.
func (o *Orchestrator) processSymbol(ctx context.Context, symbol string, res *CycleResult) {
	inst, err := o.deps.Selector.Select(ctx, symbol)
	if err != nil {
		res.Skipped++
		slog.Warn("select instrument failed", "symbol", symbol, "err", err)
		return
	}
	if inst == nil || ctx.Err() != nil {
		return
	}

	candles, err := o.deps.Data.RecentCandles(ctx, symbol, o.params.CandleInterval, o.params.CandleCount())
	if err != nil {
		res.Skipped++
		if !errors.Is(err, context.Canceled) {
			slog.Warn("fetch candles failed", "symbol", symbol, "err", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	buf := o.buffer(symbol)
	buf.Replace(candles)
	last, ok := buf.Last()
	if ok && last.Timestamp.Equal(o.lastCandle[symbol]) {
		return
	}

	res.Evaluated++
	sig, verdict := o.deps.Engine.Generate(symbol, buf, inst)
	if verdict != domain.VerdictSignal {
		return
	}
	res.Signals++
	o.lastCandle[symbol] = last.Timestamp

	if spot, err := o.deps.Data.SpotPrice(ctx, symbol); err == nil {
		slog.Info("signal spot", "symbol", symbol, "spot", fmt.Sprintf("%.2f", spot), "candle_close", fmt.Sprintf("%.2f", last.Close))
	}
	if ctx.Err() != nil {
		return
	}

	pos, err := o.deps.Gateway.ExecuteSignal(ctx, *sig, o.deps.Risk.Bankroll())
	if err != nil {
		slog.Error("execute signal failed", "symbol", symbol, "signal_id", sig.ID(), "err", err)
		return
	}
	if pos == nil {
		return
	}
	o.deps.Risk.AddPosition(pos)
	res.Opened++
}

// manageTargets cierra las posiciones cuyo outcome en cartera ha ganado al
// menos el take profit, o cuyo mercado se ha resuelto.
func (o *Orchestrator) manageTargets(ctx context.Context, marks map[string]float64) int {
	if len(marks) == 0 {
		return 0
	}

	closed := 0
	for _, p := range o.deps.Risk.OpenPositions() {
		if ctx.Err() != nil {
			break
		}
		mark, ok := marks[p.Signal.InstrumentID]
		if !ok {
			continue
		}

		var reason domain.CloseReason
		switch {
		case mark <= resolvedLow || mark >= resolvedHigh:
			reason = domain.CloseResolution
		case o.params.TakeProfit > 0 && p.HeldPrice(mark) >= p.EntryPrice*(1+o.params.TakeProfit):
			reason = domain.CloseTarget
		default:
			continue
		}

		slog.Info("exit triggered",
			"symbol", p.Signal.Symbol,
			"reason", reason,
			"entry", fmt.Sprintf("%.3f", p.EntryPrice),
			"held_mark", fmt.Sprintf("%.3f", p.HeldPrice(mark)),
		)
		if o.deps.Risk.Close(ctx, o.deps.Gateway, p, mark, reason) {
			closed++
		}
	}
	return closed
}

// fetchMarks cotiza los instrumentos de las posiciones abiertas. Un fallo se
// trata como "sin precio": los time stops usan el precio de respaldo.
func (o *Orchestrator) fetchMarks(ctx context.Context) map[string]float64 {
	open := o.deps.Risk.OpenPositions()
	if len(open) == 0 || o.deps.Marks == nil {
		return nil
	}

	seen := make(map[string]bool, len(open))
	instruments := make([]domain.Instrument, 0, len(open))
	for _, p := range open {
		s := p.Signal
		if seen[s.InstrumentID] {
			continue
		}
		seen[s.InstrumentID] = true
		inst := domain.Instrument{ID: s.InstrumentID, Title: s.Title}
		if s.Outcome == domain.OutcomeNo {
			inst.NoTokenID = s.TokenID
		} else {
			inst.YesTokenID = s.TokenID
		}
		instruments = append(instruments, inst)
	}

	marks, err := o.deps.Marks.YesMarks(ctx, instruments)
	if err != nil {
		slog.Warn("fetch marks failed", "positions", len(open), "err", err)
		return nil
	}
	return marks
}

func (o *Orchestrator) report(ctx context.Context) {
	stats := o.deps.Risk.Stats()
	slog.Info("session stats",
		"trades", stats.Trades,
		"wins", stats.Wins,
		"win_rate", fmt.Sprintf("%.1f%%", stats.WinRate()*100),
		"daily_pnl", fmt.Sprintf("$%+.2f", stats.DailyPnL),
		"bankroll", fmt.Sprintf("$%.2f", stats.Bankroll),
		"drawdown", fmt.Sprintf("%.1f%%", stats.Drawdown*100),
		"signals", o.deps.Engine.Generated(),
	)
	if o.deps.Reporter == nil {
		return
	}

	open := o.deps.Risk.OpenPositions()
	snapshot := make([]domain.Position, 0, len(open))
	for _, p := range open {
		snapshot = append(snapshot, *p)
	}
	if err := o.deps.Reporter.ReportStats(ctx, stats, snapshot); err != nil {
		slog.Warn("stats report failed", "err", err)
	}
}

func (o *Orchestrator) buffer(symbol string) *domain.CandleBuffer {
	buf, ok := o.buffers[symbol]
	if !ok {
		buf = domain.NewCandleBufferFor(o.params.Lookback)
		o.buffers[symbol] = buf
	}
	return buf
}

// dayOf trunca t al día natural UTC.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
