// Package risk guarda el bankroll y las posiciones de la sesión y aplica los
// límites de capital: pérdida diaria, drawdown máximo y time stop.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/metrics"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

// FallbackSlip es el movimiento adverso asumido al cerrar sin precio de mercado.
const FallbackSlip = 0.02

// Closer cierra una posición a una cotización YES. Lo implementa el gateway
// de ejecución.
type Closer interface {
	ClosePosition(ctx context.Context, pos *domain.Position, exitYes float64) (pnl float64, closed bool, err error)
}

// Manager es el único escritor del bankroll. Todos sus métodos toman el mismo
// mutex, así que es seguro para uso concurrente.
type Manager struct {
	params strategy.Params
	now    func() time.Time

	mu          sync.Mutex
	initial     decimal.Decimal
	current     decimal.Decimal
	peak        decimal.Decimal
	dailyPnL    decimal.Decimal
	tradesToday int
	winsToday   int
	enabled     bool
	positions   []*domain.Position
}

// Option configura un Manager.
type Option func(*Manager)

// WithClock sustituye el reloj usado para los time stops.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager crea un Manager con el bankroll inicial dado.
func NewManager(bankroll float64, p strategy.Params, opts ...Option) *Manager {
	b := decimal.NewFromFloat(bankroll)
	m := &Manager{
		params:  p,
		now:     time.Now,
		initial: b,
		current: b,
		peak:    b,
		enabled: true,
	}
	for _, o := range opts {
		o(m)
	}
	metrics.Bankroll.Set(bankroll)
	return m
}

// CanTrade indica si se pueden abrir posiciones. Si se rompe el límite de
// pérdida diaria o el drawdown máximo, deshabilita el trading hasta ResetDaily.
func (m *Manager) CanTrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return false
	}

	limit := decimal.NewFromFloat(m.params.DailyLossLimit).Neg()
	if m.dailyPnL.LessThan(limit) {
		slog.Warn("daily loss limit reached, trading paused",
			"daily_pnl", fmt.Sprintf("$%.2f", m.dailyPnL.InexactFloat64()),
			"limit", fmt.Sprintf("$%.2f", m.params.DailyLossLimit),
		)
		m.enabled = false
		return false
	}

	if dd := m.drawdownLocked(); dd.GreaterThan(decimal.NewFromFloat(m.params.MaxDrawdown)) {
		slog.Warn("max drawdown reached, trading paused",
			"drawdown", fmt.Sprintf("%.1f%%", dd.InexactFloat64()*100),
			"bankroll", fmt.Sprintf("$%.2f", m.current.InexactFloat64()),
		)
		m.enabled = false
		return false
	}
	return true
}

// CheckTimeStops cierra cada posición abierta que lleve al menos el time stop.
// El precio de salida es la cotización YES de marks por instrumento; si falta,
// se asume un movimiento adverso de FallbackSlip sobre el precio de entrada.
// Devuelve las posiciones cerradas.
func (m *Manager) CheckTimeStops(ctx context.Context, closer Closer, marks map[string]float64) []*domain.Position {
	now := m.now()

	var due []*domain.Position
	for _, p := range m.OpenPositions() {
		if p.HeldFor(now) >= m.params.TimeStop {
			due = append(due, p)
		}
	}

	var closed []*domain.Position
	for _, p := range due {
		exit, ok := marks[p.Signal.InstrumentID]
		if !ok {
			exit = p.FallbackExit(FallbackSlip)
		}
		slog.Info("time stop",
			"symbol", p.Signal.Symbol,
			"held", p.HeldFor(now).Round(time.Second),
			"exit_yes", fmt.Sprintf("%.3f", exit),
			"marked", ok,
		)
		if m.Close(ctx, closer, p, exit, domain.CloseTimeStop) {
			closed = append(closed, p)
		}
	}
	return closed
}

// Close cierra una posición a través del closer y contabiliza su P&L.
// Devuelve true si la posición quedó cerrada en esta llamada.
func (m *Manager) Close(ctx context.Context, closer Closer, p *domain.Position, exitYes float64, reason domain.CloseReason) bool {
	pnl, closed, err := closer.ClosePosition(ctx, p, exitYes)
	if err != nil {
		slog.Error("close position failed",
			"symbol", p.Signal.Symbol,
			"order_id", p.OrderID,
			"reason", reason,
			"err", err,
		)
		return false
	}
	if !closed {
		return false
	}
	m.UpdatePnL(pnl)
	metrics.Closes.WithLabelValues(string(reason)).Inc()
	return true
}

// AddPosition registra una posición recién abierta y cuenta el trade.
func (m *Manager) AddPosition(p *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, p)
	m.tradesToday++
	metrics.OpenPositions.Set(float64(m.openCountLocked()))
}

// RestorePosition vuelve a registrar una posición reconstruida al arrancar.
// No cuenta como trade del día.
func (m *Manager) RestorePosition(p *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, p)
	metrics.OpenPositions.Set(float64(m.openCountLocked()))
}

// UpdatePnL contabiliza el P&L realizado de un cierre.
func (m *Manager) UpdatePnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := decimal.NewFromFloat(pnl)
	m.dailyPnL = m.dailyPnL.Add(d)
	m.current = m.current.Add(d)
	if m.current.GreaterThan(m.peak) {
		m.peak = m.current
	}
	if pnl > 0 {
		m.winsToday++
	}
	metrics.Bankroll.Set(m.current.InexactFloat64())
	metrics.OpenPositions.Set(float64(m.openCountLocked()))
}

// ResetDaily pone a cero los contadores diarios y reactiva el trading.
// Las posiciones cerradas se descartan; las abiertas se conservan.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dailyPnL = decimal.Zero
	m.tradesToday = 0
	m.winsToday = 0
	m.enabled = true

	open := m.positions[:0]
	for _, p := range m.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	clear(m.positions[len(open):])
	m.positions = open

	slog.Info("daily counters reset", "bankroll", fmt.Sprintf("$%.2f", m.current.InexactFloat64()))
}

// OpenPositions devuelve las posiciones abiertas en orden de apertura.
func (m *Manager) OpenPositions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

// Bankroll devuelve el bankroll actual en USD.
func (m *Manager) Bankroll() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.InexactFloat64()
}

// Stats devuelve un resumen de la sesión.
func (m *Manager) Stats() domain.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return domain.SessionStats{
		Trades:          m.tradesToday,
		Wins:            m.winsToday,
		DailyPnL:        m.dailyPnL.InexactFloat64(),
		Bankroll:        m.current.InexactFloat64(),
		InitialBankroll: m.initial.InexactFloat64(),
		Drawdown:        m.drawdownLocked().InexactFloat64(),
		OpenPositions:   m.openCountLocked(),
		TradingEnabled:  m.enabled,
	}
}

// drawdownLocked devuelve (inicial − actual) / inicial. Requiere m.mu.
func (m *Manager) drawdownLocked() decimal.Decimal {
	if m.initial.IsZero() {
		return decimal.Zero
	}
	return m.initial.Sub(m.current).Div(m.initial)
}

func (m *Manager) openCountLocked() int {
	n := 0
	for _, p := range m.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}
