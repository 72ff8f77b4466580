package prices

import (
	"fmt"
	"strings"
	"time"
)

// EqualPolicy decides the flag of a ticker whose price did not move.
type EqualPolicy int

const (
	// EqualIsNone leaves an unchanged ticker unflagged.
	EqualIsNone EqualPolicy = iota
	// EqualIsDown flags an unchanged ticker Down, matching a plain
	// "newer > older ? up : down" comparison.
	EqualIsDown
)

func (p EqualPolicy) String() string {
	if p == EqualIsDown {
		return "down"
	}
	return "none"
}

// ParseEqualPolicy parses "none" or "down". The empty string means "none".
func ParseEqualPolicy(s string) (EqualPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EqualIsNone, nil
	case "down":
		return EqualIsDown, nil
	}
	return EqualIsNone, fmt.Errorf("invalid equal policy %q (must be none or down)", s)
}

// Config configures a Reconciler.
type Config struct {
	FlashWindow time.Duration // How long a change flag stays set
	EqualPolicy EqualPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlashWindow: 500 * time.Millisecond,
		EqualPolicy: EqualIsNone,
	}
}
