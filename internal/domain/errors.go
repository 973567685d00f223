package domain

import "errors"

// Clases de error que el orquestador distingue con errors.Is.
var (
	// ErrUnavailable marca un fallo transitorio de I/O (timeout, 5xx, respuesta
	// malformada). Se salta el símbolo y se reintenta en el siguiente ciclo.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrExecution marca una orden rechazada por el venue.
	ErrExecution = errors.New("execution failed")

	// ErrConfig marca una configuración inválida. Es el único error fatal.
	ErrConfig = errors.New("invalid configuration")
)
