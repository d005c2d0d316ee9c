package marketdata

import (
	"testing"
	"time"
)

func TestContract_OCCSymbol(t *testing.T) {
	expiry := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		contract Contract
		expected string
	}{
		{"spx weekly call", Option("SPXW", expiry, Call, 5000), "SPXW240304C05000000"},
		{"spy put", Option("spy", expiry, Put, 512), "SPY240304P00512000"},
		{"fractional strike", Option("SPY", expiry, Call, 512.5), "SPY240304C00512500"},
		{"underlying", Underlying("spx"), "SPX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.contract.OCCSymbol(); got != tt.expected {
				t.Errorf("OCCSymbol() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestParseOCC(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		root    string
		right   Right
		strike  float64
		wantErr bool
	}{
		{"plain", "SPXW240304C05000000", "SPXW", Call, 5000, false},
		{"polygon prefix", "O:SPY240304P00512500", "SPY", Put, 512.5, false},
		{"lowercase right", "SPY240304p00512000", "SPY", Put, 512, false},
		{"too short", "SPY24030", "", "", 0, true},
		{"bad right", "SPY240304X00512000", "", "", 0, true},
		{"bad strike", "SPY240304C0051200A", "", "", 0, true},
		{"no root", "240304C00512000", "", "", 0, true},
		{"bad expiry", "SPY241304C00512000", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseOCC(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOCC(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if c.Root != tt.root || c.Right != tt.right || c.Strike != tt.strike {
				t.Errorf("ParseOCC(%q) = %+v", tt.symbol, c)
			}
			if c.Expiry.Format("2006-01-02") != "2024-03-04" {
				t.Errorf("expiry = %s", c.Expiry)
			}
		})
	}
}

func TestParseOCC_RoundTrip(t *testing.T) {
	c := Option("SPXW", time.Date(2025, 12, 19, 0, 0, 0, 0, time.UTC), Put, 6025)
	back, err := ParseOCC("O:" + c.OCCSymbol())
	if err != nil {
		t.Fatalf("ParseOCC: %v", err)
	}
	if back != c {
		t.Errorf("round trip = %+v, expected %+v", back, c)
	}
}
