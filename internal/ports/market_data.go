package ports

import (
	"context"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// MarketData obtiene precios del activo de referencia (ej: Binance BTC/USDT).
// Ante fallos transitorios devuelve un error que envuelve domain.ErrUnavailable;
// el orquestador lo trata como "saltar este símbolo en este ciclo".
type MarketData interface {
	// RecentCandles devuelve las últimas count velas del intervalo dado, en orden cronológico.
	RecentCandles(ctx context.Context, symbol, interval string, count int) ([]domain.Candle, error)

	// SpotPrice devuelve el último precio negociado.
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}
