package pnl

import (
	"fmt"
	"strings"
)

// CostMethod defines the lot matching discipline used to split realised and unrealised P&L.
type CostMethod int

const (
	// AVCO closes every open lot pro-rata, so each keeps the average cost.
	AVCO CostMethod = iota
	// FIFO (First-In, First-Out) closes the oldest open lots first.
	FIFO
)

func (m CostMethod) String() string {
	switch m {
	case AVCO:
		return "avco"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseCostMethod parses a string into a CostMethod.
func ParseCostMethod(s string) (CostMethod, error) {
	switch strings.ToLower(s) {
	case "avco", "average":
		return AVCO, nil
	case "fifo":
		return FIFO, nil
	default:
		return 0, fmt.Errorf("unknown cost method: %q", s)
	}
}
