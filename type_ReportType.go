package pnl

import (
	"fmt"
	"strings"
)

// ReportType selects the report flavour.
type ReportType int

const (
	// Balance reports positions and market values, dated by transaction date.
	Balance ReportType = iota
	// PL reports profit and loss, dated by accounting date.
	PL
)

func (t ReportType) String() string {
	switch t {
	case Balance:
		return "balance"
	case PL:
		return "pl"
	default:
		return "unknown"
	}
}

// ParseReportType parses a string into a ReportType.
func ParseReportType(s string) (ReportType, error) {
	switch strings.ToLower(s) {
	case "balance":
		return Balance, nil
	case "pl", "p&l":
		return PL, nil
	default:
		return 0, fmt.Errorf("unknown report type: %q", s)
	}
}

// DateField names the transaction date used to sort and cut transactions.
type DateField int

const (
	// DefaultDateField resolves to TransactionDate for balance and AccountingDate for P&L.
	DefaultDateField DateField = iota
	TransactionDate
	AccountingDate
	CashDate
)

func (f DateField) String() string {
	switch f {
	case DefaultDateField:
		return "default"
	case TransactionDate:
		return "transaction_date"
	case AccountingDate:
		return "accounting_date"
	case CashDate:
		return "cash_date"
	default:
		return "unknown"
	}
}

// ParseDateField parses a string into a DateField.
func ParseDateField(s string) (DateField, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return DefaultDateField, nil
	case "transaction_date":
		return TransactionDate, nil
	case "accounting_date":
		return AccountingDate, nil
	case "cash_date":
		return CashDate, nil
	default:
		return 0, fmt.Errorf("unknown date field: %q", s)
	}
}

// resolve returns the date field used for a report type.
func (f DateField) resolve(t ReportType) DateField {
	if f != DefaultDateField {
		return f
	}
	if t == PL {
		return AccountingDate
	}
	return TransactionDate
}
