package cache

import (
	"context"
	"time"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
)

// QuoteCache keeps resolved price quotes for a short TTL so repeated previews
// of the same (product, quantity, unit) combination skip the catalog read.
// Quotes are advisory: the nota commit always re-resolves against live data.
type QuoteCache interface {
	Get(ctx context.Context, key string) (*domain.PriceQuote, bool, error)
	Set(ctx context.Context, key string, value *domain.PriceQuote, ttl time.Duration) error
}

type NoopQuoteCache struct{}

func (NoopQuoteCache) Get(_ context.Context, _ string) (*domain.PriceQuote, bool, error) {
	return nil, false, nil
}

func (NoopQuoteCache) Set(_ context.Context, _ string, _ *domain.PriceQuote, _ time.Duration) error {
	return nil
}
