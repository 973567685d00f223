package domain

import "time"

// PositionStatus es el estado de una posición.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// CloseReason indica qué cerró una posición.
type CloseReason string

const (
	CloseTimeStop   CloseReason = "time_stop"
	CloseTarget     CloseReason = "target"
	CloseResolution CloseReason = "resolution"
)

// Position es una apuesta abierta sobre un outcome, creada al ejecutar una Signal.
//
// Precios: EntryPrice está en unidades del outcome comprado (precio NO si la
// señal es FadeUp). ExitPrice siempre es una cotización YES del mercado.
type Position struct {
	Signal     Signal
	OrderID    string
	EntryTime  time.Time
	SizeUSD    float64
	EntryPrice float64
	Status     PositionStatus
	ExitTime   *time.Time
	ExitPrice  *float64
	PnL        float64
}

// IsOpen devuelve true si la posición sigue abierta.
func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// Shares devuelve el número de shares compradas.
func (p *Position) Shares() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return p.SizeUSD / p.EntryPrice
}

// HeldFor devuelve cuánto tiempo lleva abierta la posición a la hora dada.
func (p *Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// HeldPrice convierte una cotización YES al precio del outcome en cartera.
func (p *Position) HeldPrice(yes float64) float64 {
	if p.Signal.Direction.IsLong() {
		return yes
	}
	return 1 - yes
}

// UnrealizedPnL calcula el P&L si se cerrara a la cotización YES dada.
//
//	long:  (exit − entry) · shares
//	short: ((1 − exit) − (1 − entryYes)) · shares, con entryYes = 1 − entry
func (p *Position) UnrealizedPnL(exitYes float64) float64 {
	shares := p.Shares()
	if p.Signal.Direction.IsLong() {
		return (exitYes - p.EntryPrice) * shares
	}
	entryYes := 1 - p.EntryPrice
	return ((1 - exitYes) - (1 - entryYes)) * shares
}

// FallbackExit devuelve una cotización YES que representa un movimiento adverso
// de slip (fracción) sobre el precio de entrada del outcome en cartera.
// Se usa cuando no hay precio de mercado para cerrar.
func (p *Position) FallbackExit(slip float64) float64 {
	held := p.EntryPrice * (1 - slip)
	if p.Signal.Direction.IsLong() {
		return held
	}
	return 1 - held
}

// MarkClosed aplica el cierre. Devuelve false si ya estaba cerrada.
func (p *Position) MarkClosed(exitYes float64, at time.Time) bool {
	if p.Status == PositionClosed {
		return false
	}
	p.PnL = p.UnrealizedPnL(exitYes)
	p.Status = PositionClosed
	p.ExitTime = &at
	p.ExitPrice = &exitYes
	return true
}
