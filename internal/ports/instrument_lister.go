package ports

import (
	"context"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// InstrumentLister lista los mercados de predicción candidatos (Gamma API).
type InstrumentLister interface {
	// ListEligibleInstruments devuelve los mercados que cumplen el filtro,
	// en el orden en que los devuelve el proveedor.
	ListEligibleInstruments(ctx context.Context, filter domain.ListingFilter) ([]domain.Instrument, error)
}
