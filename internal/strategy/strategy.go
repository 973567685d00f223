package strategy

// Estimator define el contrato para estimar la probabilidad de que una anomalía
// revierta. Permite sustituir la tabla heurística por un modelo calibrado
// sin tocar el motor de señales.
type Estimator interface {
	// Name devuelve el identificador único del estimador.
	Name() string

	// WinProbability devuelve la probabilidad (0–1) de ganar el fade de un
	// movimiento con |z| = absZ. bandExtreme indica que el precio está en el
	// 10% exterior de la banda de Bollinger del lado del movimiento.
	WinProbability(absZ float64, bandExtreme bool) float64
}

// Registry mantiene los estimadores disponibles indexados por nombre.
type Registry map[string]Estimator

// NewRegistry crea un registry con los estimadores incluidos para los params dados.
func NewRegistry(p Params) Registry {
	r := make(Registry)
	r.Register(NewTiered(p))
	return r
}

// Register añade un estimador al registry.
func (r Registry) Register(e Estimator) {
	r[e.Name()] = e
}

// Get devuelve el estimador por nombre.
func (r Registry) Get(name string) (Estimator, bool) {
	e, ok := r[name]
	return e, ok
}
