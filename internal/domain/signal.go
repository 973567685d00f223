package domain

import (
	"fmt"
	"strings"
	"time"
)

// Anomaly clasifica el movimiento de la última vela respecto a su historia.
type Anomaly string

const (
	AnomalyNone Anomaly = "NONE"
	AnomalyPump Anomaly = "PUMP"
	AnomalyDump Anomaly = "DUMP"
)

// Direction es el lado de la apuesta de reversión.
// FadeUp apuesta contra una subida (compra NO); FadeDown contra una caída (compra YES).
type Direction string

const (
	FadeUp   Direction = "FADE_UP"
	FadeDown Direction = "FADE_DOWN"
)

// IsLong devuelve true si la posición compra el lado YES.
func (d Direction) IsLong() bool { return d == FadeDown }

// Outcome devuelve el outcome que se compra para esta dirección.
func (d Direction) Outcome() Outcome {
	if d == FadeUp {
		return OutcomeNo
	}
	return OutcomeYes
}

// FadeOf devuelve la dirección que hace fade de la anomalía dada.
func FadeOf(a Anomaly) (Direction, bool) {
	switch a {
	case AnomalyPump:
		return FadeUp, true
	case AnomalyDump:
		return FadeDown, true
	}
	return "", false
}

// Verdict explica por qué una evaluación terminó (o no) en señal.
type Verdict int

const (
	VerdictNoData Verdict = iota
	VerdictNoAnomaly
	VerdictNoEdge
	VerdictNegativeEV
	VerdictSignal
)

// String devuelve el nombre del veredicto para logs y métricas.
func (v Verdict) String() string {
	switch v {
	case VerdictNoData:
		return "no_data"
	case VerdictNoAnomaly:
		return "no_anomaly"
	case VerdictNoEdge:
		return "no_edge"
	case VerdictNegativeEV:
		return "negative_ev"
	case VerdictSignal:
		return "signal"
	}
	return "unknown"
}

// Signal es una oportunidad de reversión lista para dimensionar y ejecutar.
// Inmutable una vez creada; se consume una sola vez.
type Signal struct {
	Symbol         string
	Timestamp      time.Time
	ZScore         float64 // con signo: > 0 subida, < 0 caída
	Direction      Direction
	WinProbability float64
	EntryPrice     float64 // precio del outcome comprado (0–1)
	Edge           float64
	ExpectedValue  float64 // por dólar arriesgado
	KellyFraction  float64
	BandPosition   float64

	InstrumentID string
	TokenID      string
	Outcome      Outcome
	Title        string
	Image        string
	URL          string
	Slug         string
	NegRisk      bool
}

// ID devuelve el identificador determinista de la señal (símbolo + timestamp).
// Ej: "sig_1718000000000000000_BTC_USDT".
func (s Signal) ID() string {
	return fmt.Sprintf("sig_%d_%s", s.Timestamp.UnixNano(), strings.ReplaceAll(s.Symbol, "/", "_"))
}

// SignalStatus es el ciclo de vida del registro persistido de una señal.
type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalExecuted SignalStatus = "EXECUTED"
	SignalClosed   SignalStatus = "CLOSED"
)

// SignalRecord es el registro persistido: la señal más su estado de ejecución.
type SignalRecord struct {
	ID        string
	Signal    Signal
	Status    SignalStatus
	SizeUSD   float64
	OrderID   string
	EntryTime *time.Time
	ExitPrice *float64
	PnL       *float64
	UpdatedAt time.Time
}

// NewSignalRecord crea un registro PENDING para la señal.
func NewSignalRecord(s Signal) SignalRecord {
	return SignalRecord{ID: s.ID(), Signal: s, Status: SignalPending}
}
