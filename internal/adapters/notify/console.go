package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// Console implementa ports.StatsReporter escribiendo a un io.Writer.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// ReportStats imprime el resumen de la sesión y las posiciones abiertas.
func (c *Console) ReportStats(_ context.Context, stats domain.SessionStats, open []domain.Position) error {
	now := c.now()
	state := "ACTIVE"
	if !stats.TradingEnabled {
		state = "PAUSED"
	}

	fmt.Fprintf(c.out, "\n[%s] ── SESSION ── %s\n", now.Format("15:04:05"), state)
	fmt.Fprintf(c.out, "  Trades:    %d | Wins: %d (%.1f%%)\n", stats.Trades, stats.Wins, stats.WinRate()*100)
	fmt.Fprintf(c.out, "  Daily P&L: $%+.2f\n", stats.DailyPnL)
	fmt.Fprintf(c.out, "  Bankroll:  $%.2f (start $%.2f, drawdown %.1f%%)\n",
		stats.Bankroll, stats.InitialBankroll, stats.Drawdown*100)

	fmt.Fprintf(c.out, "\n── OPEN POSITIONS (%d) ──\n", len(open))
	if len(open) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		fmt.Fprintln(c.out)
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Dir", "Out", "Entry", "Size$", "Age", "Market")
	for _, p := range open {
		s := p.Signal
		table.Append(
			s.Symbol,
			string(s.Direction),
			string(s.Outcome),
			fmt.Sprintf("%.3f", p.EntryPrice),
			fmt.Sprintf("$%.2f", p.SizeUSD),
			p.HeldFor(now).Truncate(time.Second).String(),
			domain.TruncateQuestion(s.Title, s.InstrumentID, 40),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
	return nil
}

// PrintSignals imprime el historial de registros persistidos.
func (c *Console) PrintSignals(records []domain.SignalRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No signals recorded")
		return
	}

	fmt.Fprintf(c.out, "\n── SIGNALS (%d most recent) ──\n", len(records))
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Symbol", "Dir", "Z", "P", "Entry", "EV", "Size$", "Status", "P&L")

	var total float64
	for _, r := range records {
		s := r.Signal
		pnl := "-"
		if r.PnL != nil {
			pnl = fmt.Sprintf("$%+.2f", *r.PnL)
			total += *r.PnL
		}
		table.Append(
			s.Timestamp.Local().Format("01-02 15:04:05"),
			s.Symbol,
			string(s.Direction),
			fmt.Sprintf("%+.2f", s.ZScore),
			fmt.Sprintf("%.2f", s.WinProbability),
			fmt.Sprintf("%.3f", s.EntryPrice),
			fmt.Sprintf("%.1f%%", s.ExpectedValue*100),
			fmt.Sprintf("$%.2f", r.SizeUSD),
			string(r.Status),
			pnl,
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  Realized P&L: $%+.2f\n\n", total)
}
