package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMultipliers(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty keeps defaults", "", nil},
		{"single pair", "weekend:1.5", map[string]string{"weekend": "1.5"}},
		{"two pairs", "weekend:1.5,tournament:2.0", map[string]string{"weekend": "1.5", "tournament": "2.0"}},
		{"missing value drops the table", "weekend:", nil},
		{"missing tag drops the table", ":1.5", nil},
		{"non-numeric value drops the table", "weekend:lots", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseMultipliers(tc.in)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("expected nil table, got %v", got)
				}
				return
			}
			if len(got) != len(tc.want) {
				t.Fatalf("table size = %d, want %d", len(got), len(tc.want))
			}
			for tag, value := range tc.want {
				if !got[tag].Equal(decimal.RequireFromString(value)) {
					t.Fatalf("multiplier[%s] = %s, want %s", tag, got[tag], value)
				}
			}
		})
	}
}
