package pnl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/etnz/pnl/customfield"
	"github.com/etnz/pnl/date"
	"github.com/etnz/pnl/logger"
	"github.com/google/uuid"
)

// DefaultTimeout is the wall time budget of a build.
const DefaultTimeout = 5 * time.Minute

// Builder builds reports from a set of sources.
type Builder struct {
	Sources Sources
	// Tenant and Actor identify who the build runs for; they are logged and
	// passed to the transaction source.
	Tenant string
	Actor  string
	// Timeout is the wall time budget of a build, DefaultTimeout when zero.
	Timeout time.Duration
	// Logger defaults to the logger of the build context.
	Logger *slog.Logger
}

// Report is the result of a balance or P&L build.
type Report struct {
	ID             string     `json:"id"`
	Type           ReportType `json:"-"`
	ReportDate     date.Date  `json:"report_date"`
	PLFirstDate    date.Date  `json:"pl_first_date,omitzero"`
	ReportCurrency string     `json:"report_currency"`
	CostMethod     CostMethod `json:"-"`

	Items         []*ReportItem   `json:"items"`
	InvestedItems []*InvestedItem `json:"invested_items,omitempty"`
	Summary       *ReportItem     `json:"summary"`
	// Transactions holds the valuated virtual transactions in debug mode.
	Transactions []*VirtualTransaction `json:"transactions,omitempty"`
}

// Item returns the first item matching key, nil if none.
func (r *Report) Item(key ItemKey) *ReportItem {
	for _, it := range r.Items {
		if it.ItemKey == key {
			return it
		}
	}
	return nil
}

// BuildContext holds everything one build needs. It is created by a
// Builder for every build and discarded with it.
type BuildContext struct {
	ID      string
	Tenant  string
	Actor   string
	Options Options
	Prices  *PriceProvider
	FX      *FXProvider
	Log     *slog.Logger

	src         Sources
	system      string
	instruments map[string]*Instrument
	currencies  map[string]*Currency
	accounts    map[string]*Account
	fields      *customfield.Evaluator
}

// newContext validates o and returns the context of a build with a deadline.
func (b *Builder) newContext(ctx context.Context, o Options) (context.Context, context.CancelFunc, *BuildContext, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	o = o.withDefaults()
	if err := o.Validate(ctx, b.Sources); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	system, err := b.Sources.Currencies.SystemCurrency(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("loading system currency: %w", err)
	}

	id := uuid.NewString()
	log := b.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log = log.With("build_id", id, "tenant", b.Tenant, "actor", b.Actor)
	bc := &BuildContext{
		ID:          id,
		Tenant:      b.Tenant,
		Actor:       b.Actor,
		Options:     o,
		Prices:      NewPriceProvider(b.Sources.Prices, o.PricingPolicy, o.ReportDate, log),
		FX:          NewFXProvider(b.Sources.FX, o.PricingPolicy, system.ID, o.ReportDate, log),
		Log:         log,
		src:         b.Sources,
		system:      system.ID,
		instruments: make(map[string]*Instrument),
		currencies:  make(map[string]*Currency),
		accounts:    make(map[string]*Account),
	}
	if len(o.CustomFields) > 0 {
		bc.fields = customfield.New(o.CustomFields, ItemAttributes())
		for i, err := range bc.fields.Errors() {
			if err != nil {
				log.Debug("invalid custom field", "field", o.CustomFields[i].UserCode, "error", err)
			}
		}
	}
	return logger.NewContext(ctx, log), cancel, bc, nil
}

// Build computes a balance or P&L report.
//
// It returns an error wrapping ErrBadInput for invalid options,
// ErrCostBasis when lot matching breaks an invariant and ErrCancelled when
// ctx is done or the timeout expires. No partial report is ever returned.
func (b *Builder) Build(ctx context.Context, o Options) (*Report, error) {
	ctx, cancel, bc, err := b.newContext(ctx, o)
	if err != nil {
		return nil, err
	}
	defer cancel()

	start := time.Now()
	bc.Log.Info("build started", "type", bc.Options.Type, "report_date", bc.Options.ReportDate, "cost_method", bc.Options.CostMethod)
	r, err := bc.report(ctx)
	if err != nil {
		bc.Log.Warn("build failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	bc.Log.Info("build finished", "items", len(r.Items), "elapsed", time.Since(start))
	return r, nil
}

// pipeline loads the transactions up to rd, normalises, matches and valuates them.
func (bc *BuildContext) pipeline(ctx context.Context, rd date.Date) ([]*VirtualTransaction, error) {
	q := bc.Options.query(bc.Tenant, rd)
	ts, err := bc.src.Transactions.Transactions(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled("loading", ctx.Err())
		}
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	vts := normalise(ts, q, rd)
	if err := ctx.Err(); err != nil {
		return nil, cancelled("normalisation", err)
	}
	if err := matchLots(vts, &bc.Options); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled("lot matching", err)
	}
	bc.Log.Debug("transactions ready", "report_date", rd, "transactions", len(ts), "virtual", len(vts))
	return bc.valuate(ctx, vts, rd)
}

// report runs a balance or P&L build.
func (bc *BuildContext) report(ctx context.Context) (*Report, error) {
	o := &bc.Options
	rd, first := o.ReportDate, o.PLFirstDate

	vts, err := bc.pipeline(ctx, rd)
	if err != nil {
		return nil, err
	}
	var firstVTS []*VirtualTransaction
	if !first.IsZero() {
		if firstVTS, err = bc.pipeline(ctx, first); err != nil {
			return nil, err
		}
	}

	// The detailed pass runs first so that the per transaction figures of
	// the main pass are the ones kept.
	var allocated []*ReportItem
	if !o.AllocationDetailing && o.AllocationMode == Independent {
		detailed, err := bc.aggregate(ctx, vts, rd, true)
		if err != nil {
			return nil, err
		}
		if firstVTS != nil {
			base, err := bc.aggregate(ctx, firstVTS, first, true)
			if err != nil {
				return nil, err
			}
			subtract(detailed, base)
		}
		allocated = allocations(detailed)
	}

	byKey, err := bc.aggregate(ctx, vts, rd, o.AllocationDetailing)
	if err != nil {
		return nil, err
	}
	if firstVTS != nil {
		base, err := bc.aggregate(ctx, firstVTS, first, o.AllocationDetailing)
		if err != nil {
			return nil, err
		}
		subtract(byKey, base)
	}

	items := slices.Collect(maps.Values(byKey))
	sortItems(items)
	if o.Type == PL && o.SplitClosedOpened {
		items = splitClosedOpened(items, o.PLIncludeZero)
	}
	items = slices.DeleteFunc(items, func(it *ReportItem) bool {
		if o.PLIncludeZero && o.Type == PL && it.Type == InstrumentItem {
			return false
		}
		return it.isEmpty()
	})
	items = append(items, allocated...)

	r := &Report{
		ID:             bc.ID,
		Type:           o.Type,
		ReportDate:     rd,
		PLFirstDate:    first,
		ReportCurrency: o.ReportCurrency,
		CostMethod:     o.CostMethod,
		Items:          items,
		Summary:        summary(items),
		InvestedItems:  bc.invested(vts),
	}
	for _, it := range append(items, r.Summary) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("custom fields", err)
		}
		it.round()
		if bc.fields != nil {
			it.CustomFields = bc.fields.Evaluate(ctx, it.Fields())
		}
	}
	if o.Debug {
		r.Transactions = vts
	}
	return r, nil
}

// instrument returns the metadata of an instrument, nil when unknown.
func (bc *BuildContext) instrument(ctx context.Context, id string) *Instrument {
	return cached(ctx, bc, bc.instruments, id, "instrument", bc.src.Instruments.Instrument)
}

// currency returns the metadata of a currency, nil when unknown.
func (bc *BuildContext) currency(ctx context.Context, id string) *Currency {
	return cached(ctx, bc, bc.currencies, id, "currency", bc.src.Currencies.Currency)
}

// account returns the metadata of an account, nil when unknown.
func (bc *BuildContext) account(ctx context.Context, id string) *Account {
	if bc.src.Accounts == nil {
		return nil
	}
	return cached(ctx, bc, bc.accounts, id, "account", bc.src.Accounts.Account)
}

func cached[T any](ctx context.Context, bc *BuildContext, cache map[string]*T, id, kind string, get func(context.Context, string) (*T, error)) *T {
	if id == "" {
		return nil
	}
	if v, ok := cache[id]; ok {
		return v
	}
	v, err := get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		bc.Log.Debug("unknown "+kind, "id", id)
	case err != nil:
		bc.Log.Warn("loading "+kind, "id", id, "error", err)
	}
	if err != nil {
		v = nil
	}
	cache[id] = v
	return v
}
