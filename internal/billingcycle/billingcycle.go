// Package billingcycle defines the billing period vocabulary shared by the
// commerce pipeline. Period-boundary arithmetic lives here so subscription
// renewal is the only caller computing dates.
package billingcycle

import (
	"errors"
	"strings"
	"time"
)

type Cycle string

const (
	Monthly    Cycle = "MONTHLY"
	Quarterly  Cycle = "QUARTERLY"
	SemiAnnual Cycle = "SEMI_ANNUAL"
	Annual     Cycle = "ANNUAL"
)

var ErrInvalidCycle = errors.New("invalid_billing_cycle")

func Parse(raw string) (Cycle, error) {
	switch Cycle(strings.ToUpper(strings.TrimSpace(raw))) {
	case Monthly:
		return Monthly, nil
	case Quarterly:
		return Quarterly, nil
	case SemiAnnual:
		return SemiAnnual, nil
	case Annual:
		return Annual, nil
	default:
		return "", ErrInvalidCycle
	}
}

func (c Cycle) Valid() bool {
	_, err := Parse(string(c))
	return err == nil
}

// Advance returns the period boundary one cycle after t.
func (c Cycle) Advance(t time.Time) time.Time {
	switch c {
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Quarterly:
		return t.AddDate(0, 3, 0)
	case SemiAnnual:
		return t.AddDate(0, 6, 0)
	case Annual:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}
