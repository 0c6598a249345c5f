package pnl

import (
	"errors"
	"fmt"
)

var (
	// ErrBadInput reports options or filters that cannot produce a report.
	// It is returned before any work starts.
	ErrBadInput = errors.New("bad input")
	// ErrCostBasis reports a broken cost-basis invariant. See CostBasisError.
	ErrCostBasis = errors.New("cost basis invariant violation")
	// ErrCancelled is returned when the build context is cancelled or times out.
	ErrCancelled = errors.New("build cancelled")
	// ErrNotFound is returned by sources for unknown ids.
	ErrNotFound = errors.New("not found")
)

// badInput returns an ErrBadInput error with a formatted detail.
func badInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadInput, fmt.Sprintf(format, args...))
}

// CostBasisError is the diagnostic of a cost-basis invariant violation.
type CostBasisError struct {
	Key         LotKey
	Transaction string
	Detail      string
}

func (e *CostBasisError) Error() string {
	return fmt.Sprintf("%v: lot %v, transaction %q: %s", ErrCostBasis, e.Key, e.Transaction, e.Detail)
}

func (e *CostBasisError) Unwrap() error { return ErrCostBasis }

// cancelled wraps a context error into ErrCancelled, keeping the cause.
func cancelled(stage string, cause error) error {
	return fmt.Errorf("%w during %s: %w", ErrCancelled, stage, cause)
}
