// Package signal convierte el historial de velas de un activo en señales de
// reversión a la media sobre un mercado binario.
package signal

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/metrics"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

// maxKelly es el techo de la fracción de Kelly antes del multiplicador.
const maxKelly = 0.25

// bandEdge define el 10% exterior de la banda de Bollinger.
const bandEdge = 0.1

// Engine calcula z-score, posición en banda, probabilidad, EV y Kelly.
// No es seguro para uso concurrente: lo usa solo el orquestador.
type Engine struct {
	params    strategy.Params
	estimator strategy.Estimator
	now       func() time.Time
	generated int
}

// Option configura un Engine.
type Option func(*Engine)

// WithClock sustituye el reloj usado para sellar las señales.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine crea un motor con los params y el estimador de probabilidad dados.
func NewEngine(p strategy.Params, est strategy.Estimator, opts ...Option) *Engine {
	e := &Engine{params: p, estimator: est, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Generated devuelve cuántas señales ha emitido el motor.
func (e *Engine) Generated() int { return e.generated }

// DetectAnomaly calcula el z-score del cambio de la última vela respecto a la
// media y desviación muestral de las anteriores. El z devuelto conserva el signo.
func (e *Engine) DetectAnomaly(buf *domain.CandleBuffer) (float64, domain.Anomaly) {
	if buf.Len() < e.params.Lookback || buf.Len() < 3 {
		return 0, domain.AnomalyNone
	}

	n := buf.Len() - 1
	changes := make([]float64, 0, n)
	for i := range n {
		changes = append(changes, buf.At(i).ChangePct())
	}
	last, _ := buf.Last()

	mean, stdev := sampleStats(changes)
	if stdev == 0 {
		return 0, domain.AnomalyNone
	}

	z := (last.ChangePct() - mean) / stdev
	switch {
	case z > e.params.ZEntry:
		return z, domain.AnomalyPump
	case z < -e.params.ZEntry:
		return z, domain.AnomalyDump
	}
	return z, domain.AnomalyNone
}

// BollingerPosition devuelve la posición del último cierre dentro de las bandas
// media ± 2σ de los últimos period cierres (0 = banda inferior, 1 = superior).
// Con menos de period velas o bandas degeneradas devuelve 0.5.
func (e *Engine) BollingerPosition(buf *domain.CandleBuffer, period int) (pos, upper, lower float64) {
	if period < 2 || buf.Len() < period {
		return 0.5, 0, 0
	}

	closes := make([]float64, 0, period)
	for i := buf.Len() - period; i < buf.Len(); i++ {
		closes = append(closes, buf.At(i).Close)
	}
	mean, stdev := sampleStats(closes)
	upper = mean + 2*stdev
	lower = mean - 2*stdev
	if upper == lower {
		return 0.5, upper, lower
	}

	last := closes[len(closes)-1]
	return clamp((last-lower)/(upper-lower), 0, 1), upper, lower
}

// Generate evalúa el buffer de un símbolo contra el instrumento elegido.
// Devuelve la señal (o nil) y el veredicto que explica la decisión.
func (e *Engine) Generate(symbol string, buf *domain.CandleBuffer, inst *domain.Instrument) (*domain.Signal, domain.Verdict) {
	sig, verdict := e.generate(symbol, buf, inst)
	metrics.SignalVerdicts.WithLabelValues(symbol, verdict.String()).Inc()
	return sig, verdict
}

func (e *Engine) generate(symbol string, buf *domain.CandleBuffer, inst *domain.Instrument) (*domain.Signal, domain.Verdict) {
	if buf == nil || buf.Len() < e.params.Lookback {
		slog.Debug("insufficient candles", "symbol", symbol, "have", bufLen(buf), "need", e.params.Lookback)
		return nil, domain.VerdictNoData
	}

	z, anomaly := e.DetectAnomaly(buf)
	dir, ok := domain.FadeOf(anomaly)
	if !ok {
		return nil, domain.VerdictNoAnomaly
	}

	if inst == nil || inst.YesPrice <= 0 || inst.YesPrice >= 1 {
		slog.Debug("no usable instrument price", "symbol", symbol)
		return nil, domain.VerdictNoEdge
	}

	bandPos, _, _ := e.BollingerPosition(buf, e.params.BollingerPeriod)
	bandExtreme := (dir == domain.FadeUp && bandPos > 1-bandEdge) ||
		(dir == domain.FadeDown && bandPos < bandEdge)

	p := e.estimator.WinProbability(math.Abs(z), bandExtreme)

	entry, fair := inst.YesPrice, p
	if !dir.IsLong() {
		entry, fair = inst.NoPrice(), 1-p
	}
	if entry <= 0 || entry >= 1 {
		return nil, domain.VerdictNoEdge
	}

	edge := fair - entry
	if edge < e.params.MinEdge {
		slog.Debug("edge too small",
			"symbol", symbol,
			"edge", fmt.Sprintf("%.2f%%", edge*100),
			"min", fmt.Sprintf("%.2f%%", e.params.MinEdge*100),
		)
		return nil, domain.VerdictNoEdge
	}

	odds := (1 - entry) / entry
	ev := ExpectedValue(p, odds)
	if ev <= 0 {
		slog.Debug("negative EV", "symbol", symbol, "ev", fmt.Sprintf("%.4f", ev))
		return nil, domain.VerdictNegativeEV
	}

	outcome := dir.Outcome()
	sig := &domain.Signal{
		Symbol:         symbol,
		Timestamp:      e.now(),
		ZScore:         z,
		Direction:      dir,
		WinProbability: p,
		EntryPrice:     entry,
		Edge:           edge,
		ExpectedValue:  ev,
		KellyFraction:  KellyFraction(p, odds, e.params.KellyMultiplier),
		BandPosition:   bandPos,
		InstrumentID:   inst.ID,
		TokenID:        inst.TokenFor(outcome),
		Outcome:        outcome,
		Title:          inst.Title,
		Image:          inst.Image,
		URL:            inst.URL(),
		Slug:           inst.Slug,
		NegRisk:        inst.NegRisk,
	}
	e.generated++

	slog.Info("signal",
		"symbol", symbol,
		"direction", sig.Direction,
		"z", fmt.Sprintf("%.2f", z),
		"p", fmt.Sprintf("%.2f", p),
		"entry", fmt.Sprintf("%.3f", entry),
		"ev", fmt.Sprintf("%.2f%%", ev*100),
		"kelly", fmt.Sprintf("%.1f%%", sig.KellyFraction*100),
		"market", domain.TruncateQuestion(inst.Title, inst.ID, 60),
	)
	return sig, domain.VerdictSignal
}

// ExpectedValue devuelve el EV por dólar arriesgado: p·odds − (1−p).
func ExpectedValue(p, odds float64) float64 {
	return p*odds - (1 - p)
}

// KellyFraction devuelve clamp((p·odds − q)/odds, 0, 0.25) · multiplier.
// Con odds no positivas devuelve 0.
func KellyFraction(p, odds, multiplier float64) float64 {
	if odds <= 0 || math.IsInf(odds, 0) || math.IsNaN(odds) {
		return 0
	}
	k := (p*odds - (1 - p)) / odds
	return clamp(k, 0, maxKelly) * multiplier
}

// sampleStats devuelve media y desviación estándar muestral (n−1).
func sampleStats(xs []float64) (mean, stdev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func bufLen(buf *domain.CandleBuffer) int {
	if buf == nil {
		return 0
	}
	return buf.Len()
}
