package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Outcome es el lado de un mercado binario.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Instrument representa un mercado binario de Polymarket elegible para operar
// (ej: "Will BTC be above $97,000 at 12:15 UTC? 15 min").
type Instrument struct {
	ID          string // conditionId
	Title       string
	Description string
	Slug        string
	Image       string
	YesTokenID  string
	NoTokenID   string
	YesPrice    float64 // probabilidad YES (0–1)
	Liquidity   float64 // USDC
	Volume24h   float64 // USDC
	EndDate     time.Time
	NegRisk     bool
	Closed      bool
}

// NoPrice devuelve el precio implícito del lado NO.
func (i Instrument) NoPrice() float64 {
	return 1 - i.YesPrice
}

// TokenFor devuelve el token_id del CLOB para el outcome dado.
func (i Instrument) TokenFor(o Outcome) string {
	if o == OutcomeNo {
		return i.NoTokenID
	}
	return i.YesTokenID
}

// URL devuelve el link público del evento, o "" si no hay slug.
func (i Instrument) URL() string {
	if i.Slug == "" {
		return ""
	}
	return "https://polymarket.com/event/" + i.Slug
}

// SearchText devuelve título y descripción en minúsculas para los filtros por keyword.
func (i Instrument) SearchText() string {
	return strings.ToLower(i.Title + " " + i.Description)
}

// ListingFilter acota el listado de mercados pedido al proveedor.
type ListingFilter struct {
	Limit  int
	Active bool
	Closed bool
}

// TruncateQuestion devuelve el título truncado a maxLen caracteres (runas,
// no bytes). Si está vacío usa el ID del instrumento como fallback.
func TruncateQuestion(question, id string, maxLen int) string {
	q := question
	if q == "" {
		q = truncateRunes(id, 23)
	}
	return truncateRunes(q, maxLen)
}

// truncateRunes corta s a n runas como mucho, terminando en "..." si recorta.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:max(n, 0)])
	}
	return string([]rune(s)[:n-3]) + "..."
}
