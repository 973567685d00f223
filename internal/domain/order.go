package domain

// OrderSide es el lado de una orden en el CLOB.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderRequest es una orden límite maker (GTC) para el CLOB.
// Para BUY, Size está en USDC; para SELL, Size son shares.
type OrderRequest struct {
	InstrumentID string
	TokenID      string
	Outcome      Outcome
	Side         OrderSide
	Price        float64
	Size         float64
	NegRisk      bool
}

// PlacedOrder es la respuesta del CLOB tras aceptar una orden.
type PlacedOrder struct {
	OrderID     string
	Status      string
	TakenAmount float64 // llenado inmediato (parte taker)
	MadeAmount  float64 // en el libro (parte maker)
}

// Fill es el resultado de abrir una posición en un backend de ejecución.
type Fill struct {
	OrderID string
	Price   float64
	SizeUSD float64
}

// ExecutionNotice es el aviso best-effort que se envía al consumidor externo
// cada vez que se ejecuta una señal.
type ExecutionNotice struct {
	Action       string  `json:"action"`
	Signal       Notice  `json:"signal"`
	SizeUSD      float64 `json:"size_usd"`
	MarketID     string  `json:"market_id"`
	Outcome      Outcome `json:"outcome"`
	MarketTitle  string  `json:"market_question"`
	SimulatedRun bool    `json:"simulated"`
}

// Notice es el resumen de la señal incluido en un ExecutionNotice.
type Notice struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	ZScore         float64   `json:"zScore"`
	Confidence     float64   `json:"confidence"`
	EntryPrice     float64   `json:"entryPrice"`
	ExpectedValue  float64   `json:"expectedValue"`
	KellySize      float64   `json:"kellySize"`
	MarketQuestion string    `json:"marketQuestion"`
	MarketImage    string    `json:"marketImage"`
	MarketURL      string    `json:"marketUrl"`
	MarketSlug     string    `json:"marketSlug"`
}

// NewExecutionNotice construye el aviso para una posición recién abierta.
func NewExecutionNotice(p *Position, simulated bool) ExecutionNotice {
	s := p.Signal
	return ExecutionNotice{
		Action: string(SideBuy),
		Signal: Notice{
			ID:             s.ID(),
			Symbol:         s.Symbol,
			Direction:      s.Direction,
			ZScore:         s.ZScore,
			Confidence:     s.WinProbability,
			EntryPrice:     s.EntryPrice,
			ExpectedValue:  s.ExpectedValue,
			KellySize:      s.KellyFraction,
			MarketQuestion: s.Title,
			MarketImage:    s.Image,
			MarketURL:      s.URL,
			MarketSlug:     s.Slug,
		},
		SizeUSD:      p.SizeUSD,
		MarketID:     s.InstrumentID,
		Outcome:      s.Outcome,
		MarketTitle:  s.Title,
		SimulatedRun: simulated,
	}
}
