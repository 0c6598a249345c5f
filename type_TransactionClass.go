package pnl

import (
	"fmt"
	"strings"
)

// TransactionClass classifies a transaction.
type TransactionClass int

const (
	Buy TransactionClass = iota + 1
	Sell
	FXTrade
	InstrumentPL
	TransactionPL
	Transfer
	FXTransfer
	CashInflow
	CashOutflow
)

var transactionClassNames = map[TransactionClass]string{
	Buy:           "BUY",
	Sell:          "SELL",
	FXTrade:       "FX_TRADE",
	InstrumentPL:  "INSTRUMENT_PL",
	TransactionPL: "TRANSACTION_PL",
	Transfer:      "TRANSFER",
	FXTransfer:    "FX_TRANSFER",
	CashInflow:    "CASH_INFLOW",
	CashOutflow:   "CASH_OUTFLOW",
}

func (c TransactionClass) String() string {
	if name, ok := transactionClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("TransactionClass(%d)", int(c))
}

// ParseTransactionClass parses a class name such as "BUY" or "cash_inflow".
func ParseTransactionClass(s string) (TransactionClass, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for c, name := range transactionClassNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction class: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c TransactionClass) MarshalText() ([]byte, error) {
	if _, ok := transactionClassNames[c]; !ok {
		return nil, fmt.Errorf("invalid transaction class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *TransactionClass) UnmarshalText(text []byte) error {
	v, err := ParseTransactionClass(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// isTrade reports whether the class moves an instrument position and takes part in lot matching.
func (c TransactionClass) isTrade() bool { return c == Buy || c == Sell }

// isCashFlow reports whether the class is an external cash movement.
func (c TransactionClass) isCashFlow() bool { return c == CashInflow || c == CashOutflow }
