package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/ports"
)

// Backend abre y cierra posiciones en un venue. Se elige al construir el
// Gateway: Simulated para dry-run, Live para órdenes reales.
type Backend interface {
	Name() string
	Simulated() bool
	Open(ctx context.Context, sig domain.Signal, sizeUSD float64) (domain.Fill, error)
	Close(ctx context.Context, pos *domain.Position, exitYes float64) error
}

// Simulated rellena en memoria al precio de entrada de la señal.
type Simulated struct{}

// NewSimulated crea un backend simulado.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Name() string    { return "simulated" }
func (s *Simulated) Simulated() bool { return true }

// Open implementa Backend. Siempre tiene éxito.
func (s *Simulated) Open(_ context.Context, sig domain.Signal, sizeUSD float64) (domain.Fill, error) {
	return domain.Fill{
		OrderID: "sim_" + uuid.New().String(),
		Price:   sig.EntryPrice,
		SizeUSD: sizeUSD,
	}, nil
}

// Close implementa Backend. No hay nada que deshacer en memoria.
func (s *Simulated) Close(context.Context, *domain.Position, float64) error { return nil }

// Live coloca órdenes límite reales: BUY del outcome para abrir y SELL de las
// shares en cartera para cerrar.
type Live struct {
	placer ports.OrderPlacer
}

// NewLive crea un backend live sobre el placer dado.
func NewLive(placer ports.OrderPlacer) *Live {
	return &Live{placer: placer}
}

func (l *Live) Name() string    { return "live" }
func (l *Live) Simulated() bool { return false }

// Open implementa Backend con una orden BUY al precio de entrada.
func (l *Live) Open(ctx context.Context, sig domain.Signal, sizeUSD float64) (domain.Fill, error) {
	if sig.TokenID == "" {
		return domain.Fill{}, fmt.Errorf("live.Open: signal %s has no token id", sig.ID())
	}
	placed, err := l.placer.PlaceLimitOrder(ctx, domain.OrderRequest{
		InstrumentID: sig.InstrumentID,
		TokenID:      sig.TokenID,
		Outcome:      sig.Outcome,
		Side:         domain.SideBuy,
		Price:        sig.EntryPrice,
		Size:         sizeUSD,
		NegRisk:      sig.NegRisk,
	})
	if err != nil {
		return domain.Fill{}, fmt.Errorf("live.Open: place buy: %w", err)
	}
	logPlaced("buy", sig.Symbol, placed)
	return domain.Fill{
		OrderID: placed.OrderID,
		Price:   sig.EntryPrice,
		SizeUSD: sizeUSD,
	}, nil
}

// Close implementa Backend con una orden SELL de las shares en cartera al
// precio del outcome equivalente a exitYes.
func (l *Live) Close(ctx context.Context, pos *domain.Position, exitYes float64) error {
	placed, err := l.placer.PlaceLimitOrder(ctx, domain.OrderRequest{
		InstrumentID: pos.Signal.InstrumentID,
		TokenID:      pos.Signal.TokenID,
		Outcome:      pos.Signal.Outcome,
		Side:         domain.SideSell,
		Price:        sellPrice(pos.HeldPrice(exitYes)),
		Size:         pos.Shares(),
		NegRisk:      pos.Signal.NegRisk,
	})
	if err != nil {
		return fmt.Errorf("live.Close: place sell: %w", err)
	}
	logPlaced("sell", pos.Signal.Symbol, placed)
	return nil
}

// logPlaced registra cuánto de la orden se llenó al instante y cuánto quedó
// en el libro.
func logPlaced(side, symbol string, o domain.PlacedOrder) {
	slog.Info("live order placed",
		"side", side,
		"symbol", symbol,
		"order_id", o.OrderID,
		"status", o.Status,
		"taken", fmt.Sprintf("%.2f", o.TakenAmount),
		"made", fmt.Sprintf("%.2f", o.MadeAmount),
	)
}

// sellPrice redondea al tick de 0.01 dentro del rango que acepta el CLOB.
func sellPrice(held float64) float64 {
	return math.Min(0.99, math.Max(0.01, math.Round(held*100)/100))
}
