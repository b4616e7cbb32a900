package quality

import (
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		label   string
		want    Tier
		wantErr bool
	}{
		{"lossless", TierLossless, false},
		{"flac", TierLossless, false},
		{"high", TierHigh, false},
		{"320k", TierHigh, false},
		{"standard", TierStandard, false},
		{"128k", TierStandard, false},
		{"low", TierLow, false},
		{"  LOSSLESS ", TierLossless, false},
		{"ultra", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := Parse(tc.label)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %v", tc.label, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.label, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %v, want %v", tc.label, got, tc.want)
		}
	}
}

func TestDegradeStartsAtRequested(t *testing.T) {
	tiers := Degrade(TierHigh)

	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d: %v", len(tiers), tiers)
	}
	if tiers[0] != TierHigh {
		t.Errorf("first tier should be the requested one, got %v", tiers[0])
	}
	for _, tier := range tiers {
		if tier > TierHigh {
			t.Errorf("tier %v escalates above requested %v", tier, TierHigh)
		}
	}
}

func TestDegradeStrictlyDescending(t *testing.T) {
	tiers := Degrade(TierLossless)

	if len(tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i] >= tiers[i-1] {
			t.Errorf("tiers not strictly descending at %d: %v", i, tiers)
		}
	}
	if tiers[len(tiers)-1] != TierLow {
		t.Errorf("degradation should end at TierLow, got %v", tiers[len(tiers)-1])
	}
}

func TestDegradeLowestTier(t *testing.T) {
	tiers := Degrade(TierLow)
	if len(tiers) != 1 || tiers[0] != TierLow {
		t.Errorf("Degrade(TierLow) = %v, want [low]", tiers)
	}
}

func TestTierString(t *testing.T) {
	if TierLossless.String() != "lossless" {
		t.Errorf("unexpected label: %s", TierLossless.String())
	}
	if Tier(42).String() != "unknown" {
		t.Errorf("out-of-range tier should render as unknown")
	}
}
