package ports

import (
	"context"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// OrderPlacer coloca órdenes reales en el CLOB de Polymarket.
type OrderPlacer interface {
	// PlaceLimitOrder firma y envía una orden límite maker (GTC).
	PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error)
}
