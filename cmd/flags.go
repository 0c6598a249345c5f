package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/customfield"
)

// listFlag is a comma separated list of values. It can be repeated.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

// fieldFlag collects custom fields given as code=expression.
type fieldFlag []customfield.Field

func (f *fieldFlag) String() string {
	codes := make([]string, len(*f))
	for i, c := range *f {
		codes[i] = c.UserCode
	}
	return strings.Join(codes, ",")
}

func (f *fieldFlag) Set(v string) error {
	code, expr, ok := strings.Cut(v, "=")
	code = strings.TrimSpace(code)
	if !ok || code == "" {
		return fmt.Errorf("custom field %q must be code=expression", v)
	}
	*f = append(*f, customfield.Field{UserCode: code, Name: code, Expression: strings.TrimSpace(expr)})
	return nil
}

// readFields reads custom fields from a JSON file holding a list of
// {"user_code", "name", "expression"} objects.
func readFields(path string) ([]customfield.Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading custom fields: %w", err)
	}
	var fields []customfield.Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding custom fields %q: %w", path, err)
	}
	return fields, nil
}

// reportFlags holds the flags shared by the report commands.
type reportFlags struct {
	portfolioMode, accountMode       string
	strategy1Mode, strategy2Mode     string
	strategy3Mode, allocationMode    string
	instruments, portfolios          listFlag
	accounts, strategies1            listFlag
	accountsPosition, accountsCash   listFlag
	strategies2, strategies3         listFlag
	classes                          listFlag
	fields                           fieldFlag
	fieldsFile                       string
	dateField                        string
	approach                         float64
	details, allocationDetail, debug bool
	json                             bool
}

func (r *reportFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.portfolioMode, "portfolio-mode", "independent", "Portfolio grouping: independent or ignore")
	f.StringVar(&r.accountMode, "account-mode", "independent", "Account grouping: independent or ignore")
	f.StringVar(&r.strategy1Mode, "strategy1-mode", "ignore", "Strategy 1 grouping: independent or ignore")
	f.StringVar(&r.strategy2Mode, "strategy2-mode", "ignore", "Strategy 2 grouping: independent or ignore")
	f.StringVar(&r.strategy3Mode, "strategy3-mode", "ignore", "Strategy 3 grouping: independent or ignore")
	f.StringVar(&r.allocationMode, "allocation-mode", "ignore", "Allocation grouping: independent or ignore")
	f.Var(&r.instruments, "instruments", "Comma separated instruments to report on")
	f.Var(&r.portfolios, "portfolios", "Comma separated portfolios to report on")
	f.Var(&r.accounts, "accounts", "Comma separated accounts to report on")
	f.Var(&r.accountsPosition, "accounts-position", "Comma separated accounts whose positions are reported")
	f.Var(&r.accountsCash, "accounts-cash", "Comma separated accounts whose cash is reported")
	f.Var(&r.strategies1, "strategies1", "Comma separated strategies 1 to report on")
	f.Var(&r.strategies2, "strategies2", "Comma separated strategies 2 to report on")
	f.Var(&r.strategies3, "strategies3", "Comma separated strategies 3 to report on")
	f.Var(&r.classes, "classes", "Comma separated transaction classes to report on")
	f.Var(&r.fields, "field", "Custom field as code=expression, can be repeated")
	f.StringVar(&r.fieldsFile, "fields", "", "JSON file of custom fields")
	f.StringVar(&r.dateField, "date-field", "default", "Date selecting transactions: default, transaction_date, accounting_date or cash_date")
	f.Float64Var(&r.approach, "approach", pnl.DefaultApproachMultiplier, "Share of realised P&L kept by the closing transaction, in [0,1]")
	f.BoolVar(&r.details, "details", false, "Show unsettled cash per transaction on accounts that allow it")
	f.BoolVar(&r.allocationDetail, "allocation-detailing", false, "Do not add the allocation summary items")
	f.BoolVar(&r.debug, "debug", false, "Keep the valuated transactions in the report (with -json)")
	f.BoolVar(&r.json, "json", false, "Print the report as JSON instead of markdown")
}

// options returns the build options of a report of type t. Errors are usage errors.
func (r *reportFlags) options(t pnl.ReportType) (o pnl.Options, err error) {
	o = pnl.Options{
		Type:                   t,
		ReportCurrency:         *reportCurrency,
		PricingPolicy:          *pricingPolicy,
		Instruments:            r.instruments,
		Portfolios:             r.portfolios,
		Accounts:               r.accounts,
		AccountsPosition:       r.accountsPosition,
		AccountsCash:           r.accountsCash,
		Strategies1:            r.strategies1,
		Strategies2:            r.strategies2,
		Strategies3:            r.strategies3,
		ShowTransactionDetails: r.details,
		AllocationDetailing:    r.allocationDetail,
		Debug:                  r.debug,
		CustomFields:           r.fields,
	}
	o.SetApproachMultiplier(r.approach)
	if o.CostMethod, err = pnl.ParseCostMethod(*costMethod); err != nil {
		return o, err
	}
	if o.DateField, err = pnl.ParseDateField(r.dateField); err != nil {
		return o, err
	}
	modes := []struct {
		flag string
		dst  *pnl.GroupMode
	}{
		{r.portfolioMode, &o.PortfolioMode},
		{r.accountMode, &o.AccountMode},
		{r.strategy1Mode, &o.Strategy1Mode},
		{r.strategy2Mode, &o.Strategy2Mode},
		{r.strategy3Mode, &o.Strategy3Mode},
		{r.allocationMode, &o.AllocationMode},
	}
	for _, m := range modes {
		if *m.dst, err = pnl.ParseGroupMode(m.flag); err != nil {
			return o, err
		}
	}
	for _, c := range r.classes {
		class, err := pnl.ParseTransactionClass(c)
		if err != nil {
			return o, err
		}
		o.TransactionClasses = append(o.TransactionClasses, class)
	}
	if r.fieldsFile != "" {
		fields, err := readFields(r.fieldsFile)
		if err != nil {
			return o, err
		}
		o.CustomFields = append(fields, o.CustomFields...)
	}
	checkCurrency(o.ReportCurrency)
	return o, nil
}
