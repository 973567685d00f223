package domain

// SessionStats es el resumen de la sesión de trading del día.
type SessionStats struct {
	Trades          int
	Wins            int
	DailyPnL        float64
	Bankroll        float64
	InitialBankroll float64
	Drawdown        float64 // fracción (0.05 = -5%)
	OpenPositions   int
	TradingEnabled  bool
}

// WinRate devuelve la fracción de trades ganadores del día (0 si no hay trades).
func (s SessionStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}
