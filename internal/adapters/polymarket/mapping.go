package polymarket

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

// mapGammaInstruments convierte la respuesta de GET /markets de Gamma en
// instrumentos. Descarta los mercados sin conditionId o sin ambos tokens.
func mapGammaInstruments(body []byte) ([]domain.Instrument, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("gamma markets: invalid json: %w", domain.ErrUnavailable)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("gamma markets: expected array, got %s: %w", root.Type, domain.ErrUnavailable)
	}

	var out []domain.Instrument
	root.ForEach(func(_, m gjson.Result) bool {
		if inst, ok := mapGammaInstrument(m); ok {
			out = append(out, inst)
		}
		return true
	})
	return out, nil
}

// mapGammaInstrument convierte un mercado de Gamma. Gamma serializa outcomes,
// outcomePrices y clobTokenIds como strings que contienen un array JSON.
func mapGammaInstrument(m gjson.Result) (domain.Instrument, bool) {
	id := m.Get("conditionId").String()
	tokens := embeddedArray(m.Get("clobTokenIds"))
	if id == "" || len(tokens) < 2 {
		return domain.Instrument{}, false
	}

	yes, no := 0, 1
	for i, o := range embeddedArray(m.Get("outcomes")) {
		if i > 1 {
			break
		}
		if strings.EqualFold(o.String(), "no") {
			yes, no = 1-i, i
		}
	}

	inst := domain.Instrument{
		ID:          id,
		Title:       m.Get("question").String(),
		Description: m.Get("description").String(),
		Slug:        m.Get("slug").String(),
		Image:       m.Get("image").String(),
		YesTokenID:  tokens[yes].String(),
		NoTokenID:   tokens[no].String(),
		Liquidity:   firstFloat(m, "liquidityNum", "liquidity"),
		Volume24h:   firstFloat(m, "volume24hr", "volume24hrClob"),
		EndDate:     parseEndDate(m.Get("endDate").String()),
		NegRisk:     m.Get("negRisk").Bool(),
		Closed:      m.Get("closed").Bool(),
	}
	if inst.Image == "" {
		inst.Image = m.Get("icon").String()
	}
	if prices := embeddedArray(m.Get("outcomePrices")); len(prices) > yes {
		inst.YesPrice = prices[yes].Float()
	}
	return inst, true
}

// embeddedArray devuelve los elementos de un array que puede venir tal cual
// o serializado dentro de un string.
func embeddedArray(r gjson.Result) []gjson.Result {
	if r.IsArray() {
		return r.Array()
	}
	if r.Type == gjson.String {
		if inner := gjson.Parse(r.String()); inner.IsArray() {
			return inner.Array()
		}
	}
	return nil
}

// firstFloat devuelve el primer campo numérico presente (número o string numérico).
func firstFloat(m gjson.Result, keys ...string) float64 {
	for _, k := range keys {
		if r := m.Get(k); r.Exists() && r.String() != "" {
			return r.Float()
		}
	}
	return 0
}

// parseEndDate acepta los formatos de fecha que usa Gamma.
func parseEndDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
