// Package cmd implements the pnl command line application.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/etnz/pnl"
	"github.com/etnz/pnl/eodhd"
	"github.com/etnz/pnl/logger"
	"github.com/etnz/pnl/store"
	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

// Environment variables providing the defaults of the global flags.
const (
	EnvDB           = "PNL_DB"
	EnvCurrency     = "PNL_CURRENCY"
	EnvPolicy       = "PNL_PRICING_POLICY"
	EnvCostMethod   = "PNL_COST_METHOD"
	EnvTenant       = "PNL_TENANT"
	EnvActor        = "PNL_ACTOR"
	EnvTimeout      = "PNL_TIMEOUT"
	EnvLookupPeriod = "PNL_LOOKUP_INTERVAL"
	EnvEODHDKey     = "PNL_EODHD_API_KEY"
	EnvEODHDTickers = "PNL_EODHD_TICKERS"
	EnvLogLevel     = "PNL_LOG_LEVEL"
	EnvLogFormat    = "PNL_LOG_FORMAT"
)

// Commands lists the subcommands of the application.
var Commands = []subcommands.Command{
	&balanceCmd{},
	&plCmd{},
	&performanceCmd{},
	&importCmd{},
	&fieldsCmd{},
	&topicCmd{},
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.
var (
	dbPath         *string
	reportCurrency *string
	pricingPolicy  *string
	costMethod     *string
	tenant         *string
	actor          *string
	timeout        *time.Duration
	lookupInterval *time.Duration
	eodhdKey       *string
	eodhdTickers   listFlag
	logLevel       *string
	logFormat      *string
)

// LoadEnv loads the environment variables of a .env file, when there is one.
// It must be called before SetFlags so that the file sets flag defaults.
func LoadEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning, cannot load %s: %v", path, err)
	}
}

// SetFlags declares the global flags on f, with defaults read from the environment.
func SetFlags(f *flag.FlagSet) {
	dbPath = f.String("db", env(EnvDB, "pnl.db"), "Path to the SQLite database")
	reportCurrency = f.String("currency", env(EnvCurrency, "EUR"), "Report currency")
	pricingPolicy = f.String("policy", env(EnvPolicy, ""), "Pricing policy of price and FX lookups")
	costMethod = f.String("method", env(EnvCostMethod, "avco"), "Cost method: avco or fifo")
	tenant = f.String("tenant", env(EnvTenant, ""), "Tenant the reports are built for")
	actor = f.String("actor", env(EnvActor, os.Getenv("USER")), "Actor recorded in build logs")
	timeout = f.Duration("timeout", envDuration(EnvTimeout, pnl.DefaultTimeout), "Wall time budget of a build")
	lookupInterval = f.Duration("lookup-interval", envDuration(EnvLookupPeriod, time.Second), "Minimum interval between two EODHD quote lookups, 0 for none")
	eodhdKey = f.String("eodhd-key", env(EnvEODHDKey, ""), "EODHD API key. When set, quotes missing from the database are fetched from EODHD")
	eodhdTickers = nil
	eodhdTickers.Set(env(EnvEODHDTickers, ""))
	f.Var(&eodhdTickers, "eodhd-tickers", "Comma separated instrument=TICKER.EXCHANGE EODHD tickers")
	logLevel = f.String("log-level", env(EnvLogLevel, "warn"), "Log level: debug, info, warn or error")
	logFormat = f.String("log-format", env(EnvLogFormat, "text"), "Log format: text or json")
}

// InitLogger initializes the process logger from the global flags.
func InitLogger() { logger.InitLogger(*logLevel, *logFormat) }

// Environ returns the global flag values as environment variables, for
// external commands.
func Environ() []string {
	return []string{
		EnvDB + "=" + *dbPath,
		EnvCurrency + "=" + *reportCurrency,
		EnvPolicy + "=" + *pricingPolicy,
		EnvCostMethod + "=" + *costMethod,
		EnvTenant + "=" + *tenant,
		EnvActor + "=" + *actor,
		EnvTimeout + "=" + timeout.String(),
		EnvLookupPeriod + "=" + lookupInterval.String(),
		EnvEODHDKey + "=" + *eodhdKey,
		EnvEODHDTickers + "=" + eodhdTickers.String(),
		EnvLogLevel + "=" + *logLevel,
		EnvLogFormat + "=" + *logFormat,
	}
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := env(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if s, serr := strconv.Atoi(v); serr == nil {
			return time.Duration(s) * time.Second
		}
		log.Printf("warning, ignoring %s=%q: %v", key, v, err)
		return def
	}
	return d
}

// openStore opens the database of the -db flag.
func openStore() (*store.Store, error) {
	s, err := store.Open(*dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", *dbPath, err)
	}
	return s, nil
}

// newBuilder returns a builder reading from s. With an EODHD key, quotes
// missing from s are fetched from EODHD, at most one every -lookup-interval.
func newBuilder(ctx context.Context, s *store.Store) (*pnl.Builder, error) {
	src := s.Sources()
	if *eodhdKey != "" {
		system, err := s.SystemCurrency(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading system currency: %w", err)
		}
		tickers := make(map[string]string)
		for _, t := range eodhdTickers {
			id, ticker, ok := strings.Cut(t, "=")
			if !ok {
				return nil, fmt.Errorf("%w: EODHD ticker %q must be instrument=TICKER", pnl.ErrBadInput, t)
			}
			tickers[id] = ticker
		}
		var remote store.QuoteSource = &eodhd.Source{Client: eodhd.NewClient(*eodhdKey), System: system.ID, Tickers: tickers}
		if *lookupInterval > 0 {
			remote = store.NewThrottled(remote, remote, *lookupInterval, 1)
		}
		src = (&store.Fallback{Primary: s, Secondary: remote}).Wrap(src)
	}
	return &pnl.Builder{
		Sources: src,
		Tenant:  *tenant,
		Actor:   *actor,
		Timeout: *timeout,
		Logger:  logger.L,
	}, nil
}

// checkCurrency warns about report currencies that are not ISO 4217 codes.
// Such currencies are valid as long as the database defines them.
func checkCurrency(code string) {
	if money.GetCurrency(strings.ToUpper(code)) == nil {
		log.Printf("warning, report currency %q is not an ISO 4217 code", code)
	}
}

// exitStatus reports err on stderr and returns the matching exit status.
func exitStatus(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	switch {
	case errors.Is(err, pnl.ErrBadInput):
		return subcommands.ExitUsageError
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "the build exceeded -timeout=%s\n", *timeout)
	}
	return subcommands.ExitFailure
}

// printMarkdown renders md for the terminal, or prints it as is when it cannot.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(160))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	log.Printf("warning, cannot render markdown: %v", err)
	fmt.Print(md)
}
