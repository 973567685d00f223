package ports

import (
	"context"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// MarkProvider cotiza los instrumentos abiertos para gestionar salidas.
type MarkProvider interface {
	// YesMarks devuelve la cotización YES (0–1) por ID de instrumento.
	// Los instrumentos sin precio disponible no aparecen en el map.
	YesMarks(ctx context.Context, instruments []domain.Instrument) (map[string]float64, error)
}
