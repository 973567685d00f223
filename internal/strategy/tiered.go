package strategy

const tieredName = "tiered"

// Probabilidades de la tabla heurística de reversión.
const (
	baseWinProb    = 0.55
	strongWinProb  = 0.65
	extremeWinProb = 0.75
	bandBonus      = 0.05

	// StrongZ es el umbral fijo del tramo intermedio (2σ).
	StrongZ = 2.0
)

// Tiered implementa Estimator con la tabla de tres tramos:
// 0.55 desde el umbral de entrada, 0.65 desde 2σ y 0.75 desde el umbral extremo,
// más 0.05 si el precio está en el extremo de la banda.
type Tiered struct {
	entryZ   float64
	extremeZ float64
}

// NewTiered crea el estimador con los umbrales de los params.
func NewTiered(p Params) *Tiered {
	return &Tiered{entryZ: p.ZEntry, extremeZ: p.ZExtreme}
}

// Name implementa Estimator.
func (t *Tiered) Name() string { return tieredName }

// WinProbability implementa Estimator.
func (t *Tiered) WinProbability(absZ float64, bandExtreme bool) float64 {
	p := 0.5
	switch {
	case absZ >= t.extremeZ:
		p = extremeWinProb
	case absZ >= StrongZ:
		p = strongWinProb
	case absZ >= t.entryZ:
		p = baseWinProb
	}
	if bandExtreme && p > 0.5 {
		p += bandBonus
	}
	return p
}
