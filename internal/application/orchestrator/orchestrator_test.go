package orchestrator_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrevert/internal/adapters/storage"
	"github.com/alejandrodnm/polyrevert/internal/application/execution"
	"github.com/alejandrodnm/polyrevert/internal/application/orchestrator"
	"github.com/alejandrodnm/polyrevert/internal/application/risk"
	"github.com/alejandrodnm/polyrevert/internal/application/selector"
	"github.com/alejandrodnm/polyrevert/internal/application/signal"
	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/metrics"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeData struct {
	candles map[string][]domain.Candle
	err     error
	calls   int
}

func (f *fakeData) RecentCandles(_ context.Context, symbol, _ string, _ int) ([]domain.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[symbol], nil
}

func (f *fakeData) SpotPrice(context.Context, string) (float64, error) { return 97000, nil }

type fakeLister struct {
	instruments []domain.Instrument
	err         error
}

func (f *fakeLister) ListEligibleInstruments(context.Context, domain.ListingFilter) ([]domain.Instrument, error) {
	return f.instruments, f.err
}

type fakeMarks struct {
	marks    map[string]float64
	requests [][]domain.Instrument
}

func (f *fakeMarks) YesMarks(_ context.Context, instruments []domain.Instrument) (map[string]float64, error) {
	f.requests = append(f.requests, instruments)
	return f.marks, nil
}

type fakeReporter struct{ calls int }

func (f *fakeReporter) ReportStats(context.Context, domain.SessionStats, []domain.Position) error {
	f.calls++
	return nil
}

// --- harness ---

type harness struct {
	clock    *clock
	data     *fakeData
	lister   *fakeLister
	marks    *fakeMarks
	reporter *fakeReporter
	store    *storage.SQLiteStorage
	risk     *risk.Manager
	orch     *orchestrator.Orchestrator
}

func testParams() strategy.Params {
	p := strategy.DefaultParams()
	p.Symbols = []string{"BTC/USDT"}
	p.Lookback = 5
	p.StatsEvery = 0
	p.PollInterval = 10 * time.Millisecond
	return p
}

func btcInstrument() domain.Instrument {
	return domain.Instrument{
		ID:         "0xbtc",
		Title:      "Bitcoin 15 min: will BTC price be above $97,000?",
		Slug:       "btc-15m",
		YesTokenID: "yes-btc",
		NoTokenID:  "no-btc",
		YesPrice:   0.80,
		Liquidity:  20000,
		Volume24h:  5000,
	}
}

// pumpCandles devuelve 5 velas de 1m terminadas en start+4m: cuatro con
// media 0 y desviación 0.01 y una última de +2.5% (z = 2.5).
func pumpCandles(start time.Time) []domain.Candle {
	a := 0.01 * math.Sqrt(3) / 2
	changes := []float64{a, -a, a, -a, 0.025}
	out := make([]domain.Candle, len(changes))
	for i, c := range changes {
		closePx := 100 * (1 + c)
		out[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      100,
			High:      math.Max(100, closePx),
			Low:       math.Min(100, closePx),
			Close:     closePx,
			Volume:    1,
		}
	}
	return out
}

func newHarness(t *testing.T, store *storage.SQLiteStorage) *harness {
	t.Helper()
	return newHarnessWith(t, store, testParams())
}

func newHarnessWith(t *testing.T, store *storage.SQLiteStorage, p strategy.Params) *harness {
	t.Helper()
	if store == nil {
		var err error
		store, err = storage.NewSQLiteStorage(":memory:", 50)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}

	clk := &clock{t: t0.Add(4*time.Minute + 30*time.Second)}
	h := &harness{
		clock:    clk,
		data:     &fakeData{candles: map[string][]domain.Candle{"BTC/USDT": pumpCandles(t0)}},
		lister:   &fakeLister{instruments: []domain.Instrument{btcInstrument()}},
		marks:    &fakeMarks{marks: map[string]float64{}},
		reporter: &fakeReporter{},
		store:    store,
	}
	h.risk = risk.NewManager(1000, p, risk.WithClock(clk.now))
	gw := execution.New(execution.NewSimulated(), store, p, execution.WithClock(clk.now))
	h.orch = orchestrator.New(p, orchestrator.Deps{
		Data:     h.data,
		Selector: selector.New(h.lister, p, selector.WithClock(clk.now)),
		Engine:   signal.NewEngine(p, strategy.NewTiered(p), signal.WithClock(clk.now)),
		Risk:     h.risk,
		Gateway:  gw,
		Marks:    h.marks,
		Reporter: h.reporter,
	}, orchestrator.WithClock(clk.now))
	return h
}

// openOne ejecuta un ciclo que abre la posición NO del pump.
func (h *harness) openOne(t *testing.T) *domain.Position {
	t.Helper()
	res := h.orch.RunOnce(context.Background())
	require.Equal(t, 1, res.Opened)
	open := h.risk.OpenPositions()
	require.Len(t, open, 1)
	return open[0]
}

func closes(reason domain.CloseReason) float64 {
	return testutil.ToFloat64(metrics.Closes.WithLabelValues(string(reason)))
}

// --- tests ---

func TestRunOnce_OpensPositionOnPump(t *testing.T) {
	h := newHarness(t, nil)

	res := h.orch.RunOnce(context.Background())
	assert.False(t, res.Paused)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Signals)
	assert.Equal(t, 1, res.Opened)

	open := h.risk.OpenPositions()
	require.Len(t, open, 1)
	pos := open[0]
	assert.Equal(t, domain.FadeUp, pos.Signal.Direction)
	assert.Equal(t, domain.OutcomeNo, pos.Signal.Outcome)
	assert.Equal(t, "no-btc", pos.Signal.TokenID)
	assert.Equal(t, "0xbtc", pos.Signal.InstrumentID)
	assert.InDelta(t, 0.20, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 62.5, pos.SizeUSD, 1e-9, "kelly 0.0625 sobre $1000")
	assert.Equal(t, h.clock.now(), pos.EntryTime)

	recs, err := h.store.OpenSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.SignalExecuted, recs[0].Status)
	assert.Equal(t, pos.OrderID, recs[0].OrderID)
	assert.Equal(t, 1, h.risk.Stats().Trades)
}

func TestRunOnce_SameCandleSignalsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.openOne(t)

	h.clock.advance(time.Second)
	res := h.orch.RunOnce(context.Background())
	assert.Zero(t, res.Evaluated)
	assert.Zero(t, res.Signals)
	assert.Len(t, h.risk.OpenPositions(), 1)

	// Vela nueva con el mismo patrón: vuelve a señalar.
	h.clock.advance(time.Minute)
	h.data.candles["BTC/USDT"] = pumpCandles(t0.Add(time.Minute))
	res = h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Signals)
	assert.Equal(t, 1, res.Opened)
	assert.Len(t, h.risk.OpenPositions(), 2)
}

func TestRunOnce_NoAnomalyNoSignal(t *testing.T) {
	h := newHarness(t, nil)
	flat := pumpCandles(t0)
	for i := range flat {
		flat[i].Close = 100
	}
	h.data.candles["BTC/USDT"] = flat

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Evaluated)
	assert.Zero(t, res.Signals)
	assert.Empty(t, h.risk.OpenPositions())
}

func TestRunOnce_MarksRequestHeldToken(t *testing.T) {
	h := newHarness(t, nil)
	h.openOne(t)

	h.clock.advance(time.Second)
	h.orch.RunOnce(context.Background())

	require.NotEmpty(t, h.marks.requests)
	req := h.marks.requests[len(h.marks.requests)-1]
	require.Len(t, req, 1)
	assert.Equal(t, "0xbtc", req[0].ID)
	assert.Equal(t, "no-btc", req[0].NoTokenID)
	assert.Empty(t, req[0].YesTokenID)
}

func TestRunOnce_TimeStopWithMark(t *testing.T) {
	h := newHarness(t, nil)
	pos := h.openOne(t)

	// Held 0.21 < 0.22 (take profit): solo actúa el time stop.
	h.marks.marks["0xbtc"] = 0.79
	h.clock.advance(5 * time.Minute)
	before := closes(domain.CloseTimeStop)

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Closed)
	assert.False(t, pos.IsOpen())
	assert.InDelta(t, 3.125, pos.PnL, 1e-6, "(0.21 − 0.20) · 312.5 shares")
	assert.Equal(t, before+1, closes(domain.CloseTimeStop))

	stats := h.risk.Stats()
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, 1003.125, stats.Bankroll, 1e-6)

	rec, ok, err := h.store.GetSignal(context.Background(), pos.Signal.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SignalClosed, rec.Status)
	require.NotNil(t, rec.PnL)
	assert.InDelta(t, 3.125, *rec.PnL, 1e-6)
}

func TestRunOnce_TimeStopFallbackWithoutMark(t *testing.T) {
	h := newHarness(t, nil)
	pos := h.openOne(t)

	h.clock.advance(5 * time.Minute)
	res := h.orch.RunOnce(context.Background())

	assert.Equal(t, 1, res.Closed)
	// 2% adverso sobre el NO: 0.196 → YES 0.804
	require.NotNil(t, pos.ExitPrice)
	assert.InDelta(t, 0.804, *pos.ExitPrice, 1e-9)
	assert.InDelta(t, -1.25, pos.PnL, 1e-6)
}

func TestRunOnce_TakeProfit(t *testing.T) {
	h := newHarness(t, nil)
	pos := h.openOne(t)

	h.marks.marks["0xbtc"] = 0.75 // held 0.25 ≥ 0.22
	h.clock.advance(time.Minute)
	before := closes(domain.CloseTarget)

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Closed)
	assert.False(t, pos.IsOpen())
	assert.InDelta(t, 15.625, pos.PnL, 1e-6)
	assert.Equal(t, before+1, closes(domain.CloseTarget))
}

func TestRunOnce_TakeProfitDisabled(t *testing.T) {
	p := testParams()
	p.TakeProfit = 0
	h := newHarnessWith(t, nil, p)
	pos := h.openOne(t)

	h.marks.marks["0xbtc"] = 0.50 // held 0.50, el doble de la entrada
	h.clock.advance(time.Minute)

	res := h.orch.RunOnce(context.Background())
	assert.Zero(t, res.Closed)
	assert.True(t, pos.IsOpen())
}

func TestRunOnce_Resolution(t *testing.T) {
	h := newHarness(t, nil)
	pos := h.openOne(t)

	h.marks.marks["0xbtc"] = 0.995
	h.clock.advance(time.Minute)
	before := closes(domain.CloseResolution)

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Closed)
	assert.InDelta(t, (0.005-0.20)*312.5, pos.PnL, 1e-6)
	assert.Equal(t, before+1, closes(domain.CloseResolution))
}

func TestRunOnce_PausedStillManagesExits(t *testing.T) {
	h := newHarness(t, nil)
	pos := h.openOne(t)

	h.risk.UpdatePnL(-60) // por encima del límite diario de $50
	h.clock.advance(5 * time.Minute)
	h.data.candles["BTC/USDT"] = pumpCandles(t0.Add(5 * time.Minute))
	calls := h.data.calls

	res := h.orch.RunOnce(context.Background())
	assert.True(t, res.Paused)
	assert.Equal(t, 1, res.Closed)
	assert.False(t, pos.IsOpen())
	assert.Zero(t, res.Evaluated)
	assert.Equal(t, calls, h.data.calls, "sin entradas no se piden velas")
	assert.Empty(t, h.risk.OpenPositions())
}

func TestRunOnce_DayRolloverResumesTrading(t *testing.T) {
	h := newHarness(t, nil)
	h.risk.UpdatePnL(-60)

	res := h.orch.RunOnce(context.Background())
	require.True(t, res.Paused)

	h.clock.t = time.Date(2026, 6, 2, 0, 0, 30, 0, time.UTC)
	res = h.orch.RunOnce(context.Background())
	assert.False(t, res.Paused)
	assert.Equal(t, 1, res.Opened)

	stats := h.risk.Stats()
	assert.True(t, stats.TradingEnabled)
	assert.Equal(t, 1, stats.Trades)
	assert.Zero(t, stats.DailyPnL)
	assert.InDelta(t, 940, stats.Bankroll, 1e-9, "el bankroll no se resetea")
}

func TestRunOnce_CandleErrorSkipsSymbol(t *testing.T) {
	h := newHarness(t, nil)
	h.data.err = fmt.Errorf("klines: %w", domain.ErrUnavailable)

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Evaluated)

	h.data.err = nil
	res = h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Opened, "se reintenta en el siguiente ciclo")
}

func TestRunOnce_ListingErrorSkipsSymbol(t *testing.T) {
	h := newHarness(t, nil)
	h.lister.err = fmt.Errorf("gamma: %w", domain.ErrUnavailable)

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, h.data.calls)
}

func TestRunOnce_NoInstrument(t *testing.T) {
	h := newHarness(t, nil)
	h.lister.instruments = []domain.Instrument{{ID: "0xother", Title: "Will it rain in Madrid tomorrow?"}}

	res := h.orch.RunOnce(context.Background())
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Evaluated)
	assert.Zero(t, h.data.calls)
}

func TestRunOnce_SizingRejectedOnTinyBankroll(t *testing.T) {
	h := newHarness(t, nil)
	h.risk = risk.NewManager(4, testParams(), risk.WithClock(h.clock.now))
	p := testParams()
	h.orch = orchestrator.New(p, orchestrator.Deps{
		Data:     h.data,
		Selector: selector.New(h.lister, p, selector.WithClock(h.clock.now)),
		Engine:   signal.NewEngine(p, strategy.NewTiered(p), signal.WithClock(h.clock.now)),
		Risk:     h.risk,
		Gateway:  execution.New(execution.NewSimulated(), h.store, p, execution.WithClock(h.clock.now)),
	}, orchestrator.WithClock(h.clock.now))

	res := h.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Signals)
	assert.Zero(t, res.Opened)

	recs, err := h.store.ListSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs, "una señal rechazada por tamaño no se persiste")
}

func TestReconcile_RestoresOpenPositions(t *testing.T) {
	first := newHarness(t, nil)
	pos := first.openOne(t)

	second := newHarness(t, first.store)
	n, err := second.orch.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open := second.risk.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, pos.OrderID, open[0].OrderID)
	assert.Equal(t, domain.OutcomeNo, open[0].Signal.Outcome)
	assert.InDelta(t, pos.SizeUSD, open[0].SizeUSD, 1e-9)
	assert.Zero(t, second.risk.Stats().Trades, "restaurar no cuenta como trade")

	// La posición restaurada sigue sujeta al time stop.
	second.clock.advance(5 * time.Minute)
	res := second.orch.RunOnce(context.Background())
	assert.Equal(t, 1, res.Closed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h.data.calls, 1)
	assert.Equal(t, 1, h.reporter.calls, "resumen final al parar")
	assert.Len(t, h.risk.OpenPositions(), 1, "las posiciones quedan abiertas al salir")
}
