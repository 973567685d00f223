package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const (
	gammaMarketsPath    = "/markets"
	defaultListingLimit = 100
)

// ListEligibleInstruments lista los mercados de Gamma que cumplen el filtro,
// en el orden en que los devuelve la API. Implementa ports.InstrumentLister.
func (c *Client) ListEligibleInstruments(ctx context.Context, filter domain.ListingFilter) ([]domain.Instrument, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListingLimit
	}
	q := url.Values{}
	q.Set("active", strconv.FormatBool(filter.Active))
	q.Set("closed", strconv.FormatBool(filter.Closed))
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.getRaw(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("gamma.ListEligibleInstruments: %w", err)
	}

	instruments, err := mapGammaInstruments(body)
	if err != nil {
		return nil, fmt.Errorf("gamma.ListEligibleInstruments: %w", err)
	}

	slog.Debug("gamma instruments fetched", "count", len(instruments), "limit", limit)
	return instruments, nil
}
