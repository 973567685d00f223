package strategy

import "time"

// Params es la configuración inmutable de la estrategia, construida una vez al
// arrancar y pasada por valor a cada componente.
type Params struct {
	Symbols         []string
	CandleInterval  string
	Lookback        int
	ZEntry          float64
	ZExtreme        float64
	BollingerPeriod int
	MinEdge         float64
	KellyMultiplier float64
	Estimator       string

	MinPositionUSD float64
	MaxPositionUSD float64
	TimeStop       time.Duration
	TakeProfit     float64 // ganancia relativa del outcome en cartera (0.10 = +10%)
	DailyLossLimit float64 // USD
	MaxDrawdown    float64 // fracción del bankroll inicial

	PollInterval time.Duration
	ListingTTL   time.Duration
	ListingLimit int
	MaxRecords   int
	StatsEvery   int // ciclos entre resúmenes de sesión
}

// DefaultParams devuelve los valores por defecto de la estrategia.
func DefaultParams() Params {
	return Params{
		Symbols:         []string{"BTC/USDT", "ETH/USDT"},
		CandleInterval:  "1m",
		Lookback:        30,
		ZEntry:          2.0,
		ZExtreme:        3.0,
		BollingerPeriod: 20,
		MinEdge:         0.03,
		KellyMultiplier: 0.25,
		Estimator:       tieredName,
		MinPositionUSD:  5,
		MaxPositionUSD:  100,
		TimeStop:        5 * time.Minute,
		TakeProfit:      0.10,
		DailyLossLimit:  50,
		MaxDrawdown:     0.10,
		PollInterval:    time.Second,
		ListingTTL:      30 * time.Second,
		ListingLimit:    100,
		MaxRecords:      50,
		StatsEvery:      60,
	}
}

// CandleCount devuelve cuántas velas hay que pedir por ciclo.
func (p Params) CandleCount() int {
	return p.Lookback
}
