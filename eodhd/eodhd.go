// Package eodhd serves instrument prices and FX rates from the EODHD
// end-of-day API (https://eodhd.com).
//
// It is meant as a secondary quote source, behind a local database and a
// rate limiter: every lookup is one HTTP request, cached on disk for the day.
package eodhd

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the root of the EODHD API.
const DefaultBaseURL = "https://eodhd.com/api"

// lookback is the number of days before a date searched for its last quote.
const lookback = 10

// Client calls the EODHD API.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client of the public API whose responses are cached on disk for the day.
func NewClient(apiKey string) *Client {
	return &Client{APIKey: apiKey, BaseURL: DefaultBaseURL, HTTP: newDailyCachingClient()}
}

// Quote is one day of an EODHD ticker.
type Quote struct {
	Date  date.Date       `json:"date"`
	Open  decimal.Decimal `json:"open"`
	Close decimal.Decimal `json:"close"`
}

// EOD returns the daily quotes of ticker from from to to, bounds included,
// oldest first. The ticker format is "SYMBOL.EXCHANGE", e.g. "MCD.US".
func (c *Client) EOD(ctx context.Context, ticker string, from, to date.Date) ([]Quote, error) {
	q := url.Values{
		"fmt":       {"json"},
		"api_token": {c.APIKey},
		"from":      {from.String()},
		"to":        {to.String()},
	}
	addr := fmt.Sprintf("%s/eod/%s?%s", c.BaseURL, url.PathEscape(ticker), q.Encode())

	var quotes []Quote
	if err := jwget(ctx, c.HTTP, addr, &quotes); err != nil {
		return nil, fmt.Errorf("fetching %s quotes: %w", ticker, err)
	}
	slices.SortFunc(quotes, func(a, b Quote) int { return a.Date.Compare(b.Date) })
	return quotes, nil
}

// Source implements pnl.PriceSource and pnl.FXSource. Pricing policies are
// ignored: EODHD has one quote per day.
type Source struct {
	Client *Client
	// System is the currency rates are expressed in.
	System string
	// Tickers maps instrument ids to EODHD tickers. Instruments without a
	// mapping use their id as ticker.
	Tickers map[string]string
}

// Price returns the last close of the instrument on or before on.
func (s *Source) Price(ctx context.Context, _ string, instrument string, on date.Date) (pnl.Price, error) {
	ticker := cmp.Or(s.Tickers[instrument], instrument)
	quotes, err := s.Client.EOD(ctx, ticker, on.Add(-lookback), on)
	if err != nil {
		return pnl.Price{}, err
	}
	q, ok := last(quotes, on)
	if !ok {
		return pnl.Price{}, fmt.Errorf("no %s quote in the %d days before %s: %w", ticker, lookback, on, pnl.ErrNotFound)
	}
	return pnl.Price{Principal: q.Close.InexactFloat64()}, nil
}

// Rate returns the value of one unit of currency in the system currency on
// or before on.
//
// EODHD forex closes are often equal to the open of the same day, the open
// of the next day is used as the close instead.
func (s *Source) Rate(ctx context.Context, _ string, currency string, on date.Date) (float64, error) {
	if currency == s.System {
		return 1, nil
	}
	ticker := fmt.Sprintf("%s%s.FOREX", currency, s.System)
	quotes, err := s.Client.EOD(ctx, ticker, on.Add(1-lookback), on.Add(1))
	if err != nil {
		return 0, err
	}
	for i := range quotes {
		quotes[i].Date = quotes[i].Date.Add(-1)
		quotes[i].Close = quotes[i].Open
	}
	q, ok := last(quotes, on)
	if !ok {
		return 0, fmt.Errorf("no %s quote in the %d days before %s: %w", ticker, lookback, on, pnl.ErrNotFound)
	}
	return q.Close.InexactFloat64(), nil
}

// last returns the latest quote dated on or before on.
func last(quotes []Quote, on date.Date) (Quote, bool) {
	for i := len(quotes) - 1; i >= 0; i-- {
		if !quotes[i].Date.After(on) {
			return quotes[i], true
		}
	}
	return Quote{}, false
}
