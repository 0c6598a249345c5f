package store

import (
	"context"
	"fmt"
	"time"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
	"golang.org/x/time/rate"
)

// Throttled limits the rate of quote lookups reaching a price and an FX
// source, for sources backed by a remote service.
type Throttled struct {
	prices  pnl.PriceSource
	fx      pnl.FXSource
	limiter *rate.Limiter
}

// NewThrottled returns a wrapper allowing one lookup every interval, with
// bursts of up to burst lookups.
func NewThrottled(prices pnl.PriceSource, fx pnl.FXSource, interval time.Duration, burst int) *Throttled {
	return &Throttled{prices: prices, fx: fx, limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wrap returns src with its quote ports throttled.
func (t *Throttled) Wrap(src pnl.Sources) pnl.Sources {
	src.Prices, src.FX = t, t
	return src
}

// Price implements pnl.PriceSource.
func (t *Throttled) Price(ctx context.Context, policy, instrument string, on date.Date) (pnl.Price, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return pnl.Price{}, fmt.Errorf("waiting for price of %q: %w", instrument, err)
	}
	return t.prices.Price(ctx, policy, instrument, on)
}

// Rate implements pnl.FXSource.
func (t *Throttled) Rate(ctx context.Context, policy, currency string, on date.Date) (float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("waiting for fx rate of %q: %w", currency, err)
	}
	return t.fx.Rate(ctx, policy, currency, on)
}
