package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier is a proxy tier. Higher tiers are more expensive and less likely to
// be blocked.
type Tier int

// The zero Tier is TierDatacenter, so an unset start tier escalates
// through every proxy.
const (
	TierDatacenter Tier = iota
	TierResidential
	TierUnlocker
	// TierNone sends requests directly without a proxy and never escalates.
	TierNone
)

// escalation is the fixed order in which tiers are tried.
var escalation = []Tier{TierDatacenter, TierResidential, TierUnlocker}

// Tiers returns all proxy tiers in escalation order.
func Tiers() []Tier {
	out := make([]Tier, len(escalation))
	copy(out, escalation)
	return out
}

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierDatacenter:
		return "datacenter"
	case TierResidential:
		return "residential"
	case TierUnlocker:
		return "unlocker"
	default:
		return "unknown"
	}
}

// ParseTier parses a tier name. The empty string maps to TierDatacenter.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "datacenter":
		return TierDatacenter, nil
	case "residential":
		return TierResidential, nil
	case "unlocker":
		return TierUnlocker, nil
	case "none":
		return TierNone, nil
	default:
		return 0, eris.Errorf("fetcher: unknown proxy tier %q", s)
	}
}

// Escalation returns the tiers tried for a request starting at t, in order.
// TierNone yields only itself.
func (t Tier) Escalation() []Tier {
	for i, e := range escalation {
		if e == t {
			return Tiers()[i:]
		}
	}
	return []Tier{TierNone}
}
