package eodhd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
)

// fakeAPI serves the eod endpoint for MCD.US and EURUSD.FOREX.
func fakeAPI(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("api_token") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/eod/MCD.US":
			fmt.Fprint(w, `[
				{"date":"2024-02-14","open":290.5,"close":291.25},
				{"date":"2024-02-16","open":292,"close":293.5},
				{"date":"2024-02-15","open":291,"close":292.75}
			]`)
		case "/eod/EURUSD.FOREX":
			fmt.Fprint(w, `[
				{"date":"2024-02-15","open":1.07,"close":1.07},
				{"date":"2024-02-16","open":1.08,"close":1.08}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func d(s string) date.Date { return date.MustParse(s) }

func TestSource(t *testing.T) {
	var hits atomic.Int32
	srv := fakeAPI(t, &hits)
	s := &Source{
		Client:  &Client{APIKey: "secret", BaseURL: srv.URL, HTTP: srv.Client()},
		System:  "USD",
		Tickers: map[string]string{"mcd": "MCD.US"},
	}
	ctx := context.Background()

	// Saturday gets the Friday close.
	p, err := s.Price(ctx, "", "mcd", d("2024-02-17"))
	if err != nil || p.Principal != 293.5 {
		t.Errorf("Price(saturday) = %v, %v, want 293.5", p, err)
	}
	p, err = s.Price(ctx, "", "mcd", d("2024-02-15"))
	if err != nil || p.Principal != 292.75 {
		t.Errorf("Price(thursday) = %v, %v, want 292.75", p, err)
	}
	if _, err := s.Price(ctx, "", "mcd", d("2024-02-13")); !errors.Is(err, pnl.ErrNotFound) {
		t.Errorf("Price(before any quote) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Price(ctx, "", "UNKNOWN.US", d("2024-02-15")); !errors.Is(err, pnl.ErrNotFound) {
		t.Errorf("Price(unknown ticker) error = %v, want ErrNotFound", err)
	}

	// The rate of a day is the open of the next one.
	r, err := s.Rate(ctx, "", "EUR", d("2024-02-14"))
	if err != nil || r != 1.07 {
		t.Errorf("Rate() = %v, %v, want 1.07", r, err)
	}
	before := hits.Load()
	if r, err := s.Rate(ctx, "", "USD", d("2024-02-14")); err != nil || r != 1 {
		t.Errorf("Rate(system) = %v, %v, want 1", r, err)
	}
	if hits.Load() != before {
		t.Error("Rate(system) called the API")
	}

	s.Client.APIKey = "wrong"
	if _, err := s.Price(ctx, "", "mcd", d("2024-02-15")); err == nil || errors.Is(err, pnl.ErrNotFound) {
		t.Errorf("Price() with a bad key error = %v, want a failure other than ErrNotFound", err)
	}
}

func TestDiskCache(t *testing.T) {
	var hits atomic.Int32
	srv := fakeAPI(t, &hits)
	client := &http.Client{Transport: &diskCache{base: srv.Client().Transport, dir: t.TempDir()}}
	c := &Client{APIKey: "secret", BaseURL: srv.URL, HTTP: client}
	ctx := context.Background()

	for range 3 {
		quotes, err := c.EOD(ctx, "MCD.US", d("2024-02-10"), d("2024-02-20"))
		if err != nil || len(quotes) != 3 {
			t.Fatalf("EOD() = %v, %v, want 3 quotes", quotes, err)
		}
		if !quotes[0].Date.Before(quotes[1].Date) {
			t.Errorf("EOD() quotes are not sorted: %v", quotes)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}

	// Failures are not cached.
	for range 2 {
		c.EOD(ctx, "NOPE.US", d("2024-02-10"), d("2024-02-20"))
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}
