package ports

import (
	"context"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// NoticeSink recibe los avisos de ejecución para observación externa.
// Es best-effort: sus errores se loguean y nunca deshacen un trade.
type NoticeSink interface {
	Notify(ctx context.Context, notice domain.ExecutionNotice) error
}

// StatsReporter presenta el resumen de la sesión al operador.
type StatsReporter interface {
	ReportStats(ctx context.Context, stats domain.SessionStats, open []domain.Position) error
}
