package pnl

import (
	"context"
	"errors"
	"log/slog"

	"github.com/etnz/pnl/date"
	"github.com/patrickmn/go-cache"
)

// Quote is a read-only price record returned by a PriceProvider.
type Quote struct {
	Price
	// Missing is true when the source had no observation and the record was synthesised.
	Missing bool
}

// quoteCache is the per build memory of quote lookups, keyed by (id, date).
type quoteCache struct{ c *cache.Cache }

func newQuoteCache() quoteCache {
	// No expiration and no janitor: the cache lives exactly as long as its build.
	return quoteCache{cache.New(cache.NoExpiration, 0)}
}

func quoteKey(id string, on date.Date) string { return id + "@" + on.String() }

func (q quoteCache) get(id string, on date.Date) (any, bool) { return q.c.Get(quoteKey(id, on)) }

func (q quoteCache) set(id string, on date.Date, v any) {
	q.c.Set(quoteKey(id, on), v, cache.NoExpiration)
}

// PriceProvider looks up instrument prices for one build.
//
// Each (instrument, date) is looked up at most once in the source. A missing
// observation or a source failure is remembered as a zero-valued Quote.
type PriceProvider struct {
	src        PriceSource
	policy     string
	reportDate date.Date
	cache      quoteCache
	log        *slog.Logger
}

// NewPriceProvider returns a provider reading from src with a pricing policy.
func NewPriceProvider(src PriceSource, policy string, reportDate date.Date, log *slog.Logger) *PriceProvider {
	return &PriceProvider{src: src, policy: policy, reportDate: reportDate, cache: newQuoteCache(), log: log}
}

// Get returns the quote of instrument on a date. A zero date means the report date.
func (p *PriceProvider) Get(ctx context.Context, instrument string, on date.Date) Quote {
	if on.IsZero() {
		on = p.reportDate
	}
	if v, ok := p.cache.get(instrument, on); ok {
		return v.(Quote)
	}
	var q Quote
	price, err := p.src.Price(ctx, p.policy, instrument, on)
	switch {
	case err == nil:
		q.Price = Price{finite(price.Principal), finite(price.Accrued)}
	case errors.Is(err, ErrNotFound):
		q.Missing = true
		p.log.Debug("missing price", "instrument", instrument, "date", on, "policy", p.policy)
	default:
		q.Missing = true
		p.log.Debug("price lookup failed", "instrument", instrument, "date", on, "error", err)
	}
	p.cache.set(instrument, on, q)
	return q
}

// FXProvider looks up currency FX rates for one build.
//
// The system currency always has a rate of 1. A missing rate is 0.
type FXProvider struct {
	src        FXSource
	policy     string
	system     string
	reportDate date.Date
	cache      quoteCache
	log        *slog.Logger
}

// NewFXProvider returns a provider reading from src, system being the id of the system currency.
func NewFXProvider(src FXSource, policy, system string, reportDate date.Date, log *slog.Logger) *FXProvider {
	return &FXProvider{src: src, policy: policy, system: system, reportDate: reportDate, cache: newQuoteCache(), log: log}
}

// Get returns the rate of currency on a date. A zero date means the report date.
func (p *FXProvider) Get(ctx context.Context, currency string, on date.Date) float64 {
	if currency == "" {
		return 0
	}
	if currency == p.system {
		return 1
	}
	if on.IsZero() {
		on = p.reportDate
	}
	if v, ok := p.cache.get(currency, on); ok {
		return v.(float64)
	}
	rate, err := p.src.Rate(ctx, p.policy, currency, on)
	switch {
	case err == nil:
		rate = finite(rate)
	case errors.Is(err, ErrNotFound):
		rate = 0
		p.log.Debug("missing fx rate", "currency", currency, "date", on, "policy", p.policy)
	default:
		rate = 0
		p.log.Debug("fx rate lookup failed", "currency", currency, "date", on, "error", err)
	}
	p.cache.set(currency, on, rate)
	return rate
}

// Cross returns the rate of currency expressed in the report currency, on a date.
func (p *FXProvider) Cross(ctx context.Context, currency, report string, on date.Date) float64 {
	return p.Get(ctx, currency, on) * div(1, p.Get(ctx, report, on))
}
