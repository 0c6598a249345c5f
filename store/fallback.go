package store

import (
	"context"
	"errors"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
)

// QuoteSource serves both prices and FX rates.
type QuoteSource interface {
	pnl.PriceSource
	pnl.FXSource
}

// Fallback serves quotes from Primary, and from Secondary for the quotes
// Primary does not have.
type Fallback struct {
	Primary, Secondary QuoteSource
}

// Wrap returns src with its quote ports replaced by f.
func (f *Fallback) Wrap(src pnl.Sources) pnl.Sources {
	src.Prices, src.FX = f, f
	return src
}

// Price implements pnl.PriceSource.
func (f *Fallback) Price(ctx context.Context, policy, instrument string, on date.Date) (pnl.Price, error) {
	p, err := f.Primary.Price(ctx, policy, instrument, on)
	if errors.Is(err, pnl.ErrNotFound) {
		return f.Secondary.Price(ctx, policy, instrument, on)
	}
	return p, err
}

// Rate implements pnl.FXSource.
func (f *Fallback) Rate(ctx context.Context, policy, currency string, on date.Date) (float64, error) {
	r, err := f.Primary.Rate(ctx, policy, currency, on)
	if errors.Is(err, pnl.ErrNotFound) {
		return f.Secondary.Rate(ctx, policy, currency, on)
	}
	return r, err
}
