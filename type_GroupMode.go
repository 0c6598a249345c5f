package pnl

import (
	"fmt"
	"strings"
)

// GroupMode tells how a report dimension (portfolio, account, strategies, allocation) groups items.
type GroupMode int

const (
	// Independent keeps one item per value of the dimension.
	Independent GroupMode = iota
	// Ignore collapses the dimension.
	Ignore
)

func (m GroupMode) String() string {
	switch m {
	case Independent:
		return "independent"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// ParseGroupMode parses a string into a GroupMode.
func ParseGroupMode(s string) (GroupMode, error) {
	switch strings.ToLower(s) {
	case "independent":
		return Independent, nil
	case "ignore":
		return Ignore, nil
	default:
		return 0, fmt.Errorf("unknown group mode: %q", s)
	}
}

// pick returns v in Independent mode and the empty (collapsed) value otherwise.
func (m GroupMode) pick(v string) string {
	if m == Ignore {
		return ""
	}
	return v
}
