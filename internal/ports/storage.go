package ports

import (
	"context"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// SignalStore persiste los registros de señales/posiciones.
// Las escrituras son idempotentes por ID (upsert) y el store retiene
// solo los registros más recientes.
type SignalStore interface {
	// UpsertSignal inserta o reemplaza el registro con el mismo ID.
	UpsertSignal(ctx context.Context, rec domain.SignalRecord) error

	// GetSignal devuelve el registro por ID y false si no existe.
	GetSignal(ctx context.Context, id string) (domain.SignalRecord, bool, error)

	// ListSignals devuelve los registros más recientes primero.
	ListSignals(ctx context.Context, limit int) ([]domain.SignalRecord, error)

	// OpenSignals devuelve los registros EXECUTED (posiciones aún abiertas).
	OpenSignals(ctx context.Context) ([]domain.SignalRecord, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
