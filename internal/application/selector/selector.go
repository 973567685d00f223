// Package selector elige, para cada símbolo, el mercado binario de 15 minutos
// con mejor puntuación entre los que lista Polymarket.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/alejandrodnm/polyrevert/internal/domain"
	"github.com/alejandrodnm/polyrevert/internal/ports"
	"github.com/alejandrodnm/polyrevert/internal/strategy"
)

var (
	durationKeywords = []string{"15 min", "15min", "15 minute", "15-min", "15-minute"}
	cryptoKeywords   = []string{"btc", "bitcoin", "eth", "ethereum"}
	priceMarkers     = []string{"price", ">", "<", "above", "below"}

	// aliases mapea el activo base del símbolo a su nombre largo.
	aliases = map[string]string{
		"btc": "bitcoin",
		"eth": "ethereum",
		"sol": "solana",
		"xrp": "ripple",
	}
)

// Selector cachea durante un TTL el listado elegible, compartido por todos los
// símbolos, y elige el mejor instrumento de cada uno. Seguro para uso concurrente.
type Selector struct {
	lister ports.InstrumentLister
	ttl    time.Duration
	limit  int
	now    func() time.Time

	mu        sync.Mutex
	eligible  []domain.Instrument
	fetchedAt time.Time
	fetched   bool
}

// Option configura un Selector.
type Option func(*Selector)

// WithClock sustituye el reloj usado para el TTL de la caché.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// New crea un Selector sobre el lister dado.
func New(lister ports.InstrumentLister, p strategy.Params, opts ...Option) *Selector {
	s := &Selector{
		lister: lister,
		ttl:    p.ListingTTL,
		limit:  p.ListingLimit,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select devuelve el instrumento con mayor puntuación para el símbolo, o nil
// si ninguno encaja. Los empates se resuelven a favor del primero listado.
func (s *Selector) Select(ctx context.Context, symbol string) (*domain.Instrument, error) {
	candidates, err := s.Candidates(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("selector.Select: %w", err)
	}

	var (
		best      *domain.Instrument
		bestScore = math.Inf(-1)
	)
	for i := range candidates {
		if sc := Score(candidates[i]); sc > bestScore {
			inst := candidates[i]
			best, bestScore = &inst, sc
		}
	}

	if best == nil {
		slog.Debug("no instrument for symbol", "symbol", symbol)
		return nil, nil
	}
	slog.Debug("instrument selected",
		"symbol", symbol,
		"market", domain.TruncateQuestion(best.Title, best.ID, 60),
		"score", fmt.Sprintf("%.2f", bestScore),
	)
	return best, nil
}

// Candidates devuelve los instrumentos elegibles para el símbolo, en orden de
// listado.
func (s *Selector) Candidates(ctx context.Context, symbol string) ([]domain.Instrument, error) {
	eligible, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]domain.Instrument, 0, len(eligible))
	for _, inst := range eligible {
		if MatchesSymbol(inst, symbol) {
			candidates = append(candidates, inst)
		}
	}
	return candidates, nil
}

// listing devuelve el listado elegible, refrescándolo si ha expirado. Si el
// refresco falla se sirve el último listado bueno.
func (s *Selector) listing(ctx context.Context) ([]domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.fetched && now.Sub(s.fetchedAt) < s.ttl {
		return s.eligible, nil
	}

	all, err := s.lister.ListEligibleInstruments(ctx, domain.ListingFilter{
		Limit:  s.limit,
		Active: true,
		Closed: false,
	})
	if err != nil {
		if s.fetched {
			slog.Warn("instrument refresh failed, serving cached listing",
				"cached", len(s.eligible),
				"age", now.Sub(s.fetchedAt).Round(time.Second),
				"err", err,
			)
			return s.eligible, nil
		}
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	eligible := make([]domain.Instrument, 0, len(all))
	for _, inst := range all {
		if IsEligible(inst) {
			eligible = append(eligible, inst)
		}
	}
	s.eligible, s.fetchedAt, s.fetched = eligible, now, true

	slog.Info("instrument listing refreshed",
		"listed", len(all),
		"eligible", len(eligible),
	)
	return eligible, nil
}

// IsEligible aplica los filtros de keyword: referencia a 15 minutos, a un
// cripto-activo y a un precio.
func IsEligible(inst domain.Instrument) bool {
	if inst.Closed {
		return false
	}
	text := inst.SearchText()
	return containsAny(text, durationKeywords) &&
		containsAny(text, cryptoKeywords) &&
		containsAny(text, priceMarkers)
}

// MatchesSymbol indica si el título menciona el activo base del símbolo
// (ej: "btc" de "BTC/USDT") o su alias ("bitcoin") como palabra completa.
func MatchesSymbol(inst domain.Instrument, symbol string) bool {
	base := strings.ToLower(strings.SplitN(symbol, "/", 2)[0])
	if base == "" {
		return false
	}
	alias := aliases[base]

	for _, w := range words(inst.Title) {
		if w == base || (alias != "" && w == alias) {
			return true
		}
	}
	return false
}

// Score puntúa un instrumento: liquidez (máx 5), distancia de 0.5 del
// precio YES (×10) y volumen 24h (máx 3).
func Score(inst domain.Instrument) float64 {
	return math.Min(inst.Liquidity/10000, 5) +
		10*math.Abs(inst.YesPrice-0.5) +
		math.Min(inst.Volume24h/1000, 3)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
