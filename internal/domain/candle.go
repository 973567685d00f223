package domain

import (
	"iter"
	"time"
)

// BufferMargin es el margen de velas que el buffer guarda por encima del lookback.
const BufferMargin = 10

// Candle es una vela OHLCV del activo de referencia (ej: BTC/USDT 1m).
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ChangePct devuelve el cambio open→close como fracción (0.01 = +1%).
// Devuelve 0 si open es 0.
func (c Candle) ChangePct() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open
}

// RangePct devuelve el rango high-low relativo al low.
// Devuelve 0 si low es 0.
func (c Candle) RangePct() float64 {
	if c.Low == 0 {
		return 0
	}
	return (c.High - c.Low) / c.Low
}

// CandleBuffer es un ring buffer de capacidad fija con las velas más recientes
// de un símbolo. Cuando se llena, la vela más antigua se descarta.
// No es seguro para uso concurrente: solo lo muta el orquestador.
type CandleBuffer struct {
	data  []Candle
	start int
	size  int
}

// NewCandleBuffer crea un buffer con la capacidad dada (mínimo 1).
func NewCandleBuffer(capacity int) *CandleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CandleBuffer{data: make([]Candle, capacity)}
}

// NewCandleBufferFor crea un buffer dimensionado para un lookback dado.
func NewCandleBufferFor(lookback int) *CandleBuffer {
	return NewCandleBuffer(lookback + BufferMargin)
}

// Cap devuelve la capacidad del buffer.
func (b *CandleBuffer) Cap() int { return len(b.data) }

// Len devuelve el número de velas almacenadas.
func (b *CandleBuffer) Len() int { return b.size }

// Push añade una vela al final, descartando la más antigua si está lleno.
func (b *CandleBuffer) Push(c Candle) {
	if b.size < len(b.data) {
		b.data[(b.start+b.size)%len(b.data)] = c
		b.size++
		return
	}
	b.data[b.start] = c
	b.start = (b.start + 1) % len(b.data)
}

// Replace vacía el buffer y carga las velas dadas (en orden cronológico).
// Si hay más velas que capacidad, solo se conservan las más recientes.
func (b *CandleBuffer) Replace(candles []Candle) {
	b.start, b.size = 0, 0
	if over := len(candles) - len(b.data); over > 0 {
		candles = candles[over:]
	}
	for _, c := range candles {
		b.Push(c)
	}
}

// At devuelve la vela i-ésima en orden cronológico (0 = más antigua).
func (b *CandleBuffer) At(i int) Candle {
	return b.data[(b.start+i)%len(b.data)]
}

// Last devuelve la vela más reciente y false si el buffer está vacío.
func (b *CandleBuffer) Last() (Candle, bool) {
	if b.size == 0 {
		return Candle{}, false
	}
	return b.At(b.size - 1), true
}

// Snapshot devuelve una secuencia de solo lectura con las velas actuales en orden
// cronológico. La secuencia es perezosa y se puede recorrer varias veces; cada
// recorrido refleja el contenido del buffer en ese momento.
func (b *CandleBuffer) Snapshot() iter.Seq[Candle] {
	return func(yield func(Candle) bool) {
		for i := 0; i < b.size; i++ {
			if !yield(b.At(i)) {
				return
			}
		}
	}
}

// Candles copia el contenido del buffer a un slice nuevo.
func (b *CandleBuffer) Candles() []Candle {
	out := make([]Candle, 0, b.size)
	for c := range b.Snapshot() {
		out = append(out, c)
	}
	return out
}
