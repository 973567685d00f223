// Package metrics expone contadores Prometheus del ciclo de trading.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalVerdicts cuenta evaluaciones del motor de señales por símbolo y veredicto.
	SignalVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyrevert_signal_verdicts_total", Help: "Signal engine evaluations by verdict"},
		[]string{"symbol", "verdict"},
	)
	// Executions cuenta intentos de ejecución por resultado (filled | rejected | failed).
	Executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyrevert_executions_total", Help: "Execution attempts by result"},
		[]string{"symbol", "result"},
	)
	// Closes cuenta posiciones cerradas por motivo.
	Closes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyrevert_position_closes_total", Help: "Closed positions by reason"},
		[]string{"reason"},
	)
	// Bankroll es el bankroll actual en USD.
	Bankroll = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "polyrevert_bankroll_usd", Help: "Current bankroll in USD"},
	)
	// OpenPositions es el número de posiciones abiertas.
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "polyrevert_open_positions", Help: "Open positions"},
	)
	// Cycles cuenta ciclos del orquestador por estado (ok | paused).
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyrevert_cycles_total", Help: "Orchestrator cycles by state"},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(SignalVerdicts, Executions, Closes, Bankroll, OpenPositions, Cycles)
}

// Serve arranca el endpoint /metrics en addr. Devuelve nil si addr está vacío.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}

// Shutdown detiene el servidor de métricas si está activo.
func Shutdown(ctx context.Context, srv *http.Server) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics shutdown", "err", err)
	}
}
