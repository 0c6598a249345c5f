package pnl

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/etnz/pnl/customfield"
	"github.com/etnz/pnl/date"
)

// DefaultApproachMultiplier is the share of a matched pair realised P&L kept by the closing side.
const DefaultApproachMultiplier = 0.5

// Options configures a report build.
type Options struct {
	Type ReportType
	// ReportDate is the valuation date. Transactions dated after it are ignored.
	ReportDate date.Date
	// PLFirstDate, for P&L reports, subtracts the P&L accumulated up to that date.
	PLFirstDate date.Date

	// ReportCurrency is the id of the currency the report is expressed in.
	ReportCurrency string
	PricingPolicy  string
	CostMethod     CostMethod

	PortfolioMode  GroupMode
	AccountMode    GroupMode
	Strategy1Mode  GroupMode
	Strategy2Mode  GroupMode
	Strategy3Mode  GroupMode
	AllocationMode GroupMode

	ShowTransactionDetails bool
	// ApproachBeginMultiplier and ApproachEndMultiplier split the realised
	// P&L of a matched lot pair between the opening and the closing side.
	// They must sum to 1. Both zero means the default split.
	ApproachBeginMultiplier float64
	ApproachEndMultiplier   float64
	AllocationDetailing     bool
	PLIncludeZero           bool
	// SplitClosedOpened emits CLOSED and OPENED instrument items in P&L reports.
	SplitClosedOpened bool

	Instruments        []string
	Portfolios         []string
	Accounts           []string
	AccountsPosition   []string
	AccountsCash       []string
	Strategies1        []string
	Strategies2        []string
	Strategies3        []string
	TransactionClasses []TransactionClass

	DateField    DateField
	CustomFields []customfield.Field
	// Debug keeps the valuated virtual transactions in the report.
	Debug bool
}

// SetApproachMultiplier sets the closing side share of realised P&L to m and
// the opening side share to 1-m.
func (o *Options) SetApproachMultiplier(m float64) {
	o.ApproachEndMultiplier = m
	o.ApproachBeginMultiplier = 1 - m
}

// withDefaults returns a copy of o with unset values resolved.
func (o Options) withDefaults() Options {
	if o.ApproachBeginMultiplier == 0 && o.ApproachEndMultiplier == 0 {
		o.SetApproachMultiplier(DefaultApproachMultiplier)
	}
	o.DateField = o.DateField.resolve(o.Type)
	return o
}

// query returns the transaction query of a build at report date rd.
func (o *Options) query(tenant string, rd date.Date) Query {
	return Query{
		Tenant:           tenant,
		DateField:        o.DateField,
		Until:            rd,
		Instruments:      o.Instruments,
		Portfolios:       o.Portfolios,
		Accounts:         o.Accounts,
		AccountsPosition: o.AccountsPosition,
		AccountsCash:     o.AccountsCash,
		Strategies1:      o.Strategies1,
		Strategies2:      o.Strategies2,
		Strategies3:      o.Strategies3,
		Classes:          o.TransactionClasses,
	}
}

// Validate checks o against the sources. Every failure wraps ErrBadInput.
func (o *Options) Validate(ctx context.Context, src Sources) error {
	if o.ReportDate.IsZero() {
		return badInput("report date is required")
	}
	if !o.PLFirstDate.IsZero() {
		if o.Type != PL {
			return badInput("pl first date is only valid for P&L reports")
		}
		if o.PLFirstDate.After(o.ReportDate) {
			return badInput("pl first date %s is after report date %s", o.PLFirstDate, o.ReportDate)
		}
	}
	b, e := o.ApproachBeginMultiplier, o.ApproachEndMultiplier
	if b < 0 || b > 1 || e < 0 || e > 1 {
		return badInput("approach multipliers %v and %v must be in [0,1]", b, e)
	}
	if math.Abs(b+e-1) > tolerance {
		return badInput("approach multipliers %v and %v must sum to 1", b, e)
	}
	if o.ReportCurrency == "" {
		return badInput("report currency is required")
	}
	if err := lookup(ctx, "currency", []string{o.ReportCurrency}, func(id string) error {
		_, err := src.Currencies.Currency(ctx, id)
		return err
	}); err != nil {
		return err
	}
	if err := lookup(ctx, "instrument", o.Instruments, func(id string) error {
		_, err := src.Instruments.Instrument(ctx, id)
		return err
	}); err != nil {
		return err
	}
	accounts := slices.Concat(o.Accounts, o.AccountsPosition, o.AccountsCash)
	if err := lookup(ctx, "account", accounts, func(id string) error {
		if src.Accounts == nil {
			return ErrNotFound
		}
		_, err := src.Accounts.Account(ctx, id)
		return err
	}); err != nil {
		return err
	}
	for _, c := range o.TransactionClasses {
		if _, ok := transactionClassNames[c]; !ok {
			return badInput("unknown transaction class %d", int(c))
		}
	}
	return nil
}

// lookup calls get for every id and turns ErrNotFound into a bad input error.
func lookup(ctx context.Context, kind string, ids []string, get func(string) error) error {
	for _, id := range ids {
		err := get(id)
		switch {
		case errors.Is(err, ErrNotFound):
			return badInput("unknown %s %q", kind, id)
		case err != nil:
			return err
		}
	}
	return nil
}
