package settlement

import (
	"strings"
	"testing"
)

func TestParseSettlementCSV(t *testing.T) {
	csv := strings.Join([]string{
		"external_ref,amount,settled_at",
		"pay-1,10.00,2025-06-02T12:00:00Z",
		"pay-2,3.50,2025-06-02T13:30:00Z",
	}, "\n")

	records, err := Parse(strings.NewReader(csv), "wakala")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].ExternalRef != "pay-1" || records[0].Amount.String() != "10.00" {
		t.Fatalf("record = %+v", records[0])
	}
	if records[0].Provider != "wakala" {
		t.Fatalf("provider = %s", records[0].Provider)
	}
	if records[1].SettledAt.Hour() != 13 || records[1].SettledAt.Minute() != 30 {
		t.Fatalf("settled_at = %s", records[1].SettledAt)
	}
}

func TestParseIsIdempotentPerRow(t *testing.T) {
	csv := "external_ref,amount,settled_at\npay-1,10.00,2025-06-02T12:00:00Z\n"

	first, err := Parse(strings.NewReader(csv), "wakala")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	second, err := Parse(strings.NewReader(csv), "wakala")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if first[0].ID != second[0].ID {
		t.Fatal("same row produced different ids")
	}
}

func TestParseKeepsDuplicateRowsDistinct(t *testing.T) {
	csv := strings.Join([]string{
		"external_ref,amount,settled_at",
		"pay-1,10.00,2025-06-02T12:00:00Z",
		"pay-1,10.00,2025-06-02T12:00:00Z",
	}, "\n")

	records, err := Parse(strings.NewReader(csv), "wakala")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].ID == records[1].ID {
		t.Fatal("duplicate feed rows must keep distinct ids")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		csv  string
	}{
		{"missing column", "external_ref,amount\npay-1,10.00\n"},
		{"bad amount", "external_ref,amount,settled_at\npay-1,abc,2025-06-02T12:00:00Z\n"},
		{"bad timestamp", "external_ref,amount,settled_at\npay-1,10.00,yesterday\n"},
		{"empty ref", "external_ref,amount,settled_at\n,10.00,2025-06-02T12:00:00Z\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tc.csv), "wakala"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
