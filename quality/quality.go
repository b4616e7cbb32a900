// Package quality defines the canonical audio quality tiers and the
// degradation order used when a platform cannot serve the requested tier.
package quality

import (
	"fmt"
	"strings"
)

// Tier represents one quality level in the canonical order.
// Higher values are preferred.
type Tier int

const (
	TierLow Tier = iota
	TierStandard
	TierHigh
	TierLossless
)

// String returns the canonical label of the tier
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierStandard:
		return "standard"
	case TierHigh:
		return "high"
	case TierLossless:
		return "lossless"
	default:
		return "unknown"
	}
}

// Parse maps a user-facing quality label to a Tier.
// Accepts the canonical names plus common bitrate aliases.
func Parse(label string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low":
		return TierLow, nil
	case "standard", "128k":
		return TierStandard, nil
	case "high", "320k":
		return TierHigh, nil
	case "lossless", "flac":
		return TierLossless, nil
	default:
		return TierStandard, fmt.Errorf("unknown quality label: %q (valid: low, standard, high, lossless)", label)
	}
}

// Degrade returns the fallback order for a requested tier: the requested
// tier first, then every lower tier in descending preference. The result
// never contains a tier above the requested one.
func Degrade(requested Tier) []Tier {
	if requested < TierLow {
		requested = TierLow
	}
	if requested > TierLossless {
		requested = TierLossless
	}

	tiers := make([]Tier, 0, int(requested)+1)
	for t := requested; t >= TierLow; t-- {
		tiers = append(tiers, t)
	}
	return tiers
}
