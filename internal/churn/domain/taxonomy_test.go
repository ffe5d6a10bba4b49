package domain

import "testing"

func TestClassify(t *testing.T) {
	tax := DefaultTaxonomy()

	tests := []struct {
		reason string
		want   ReasonClass
	}{
		{"", ReasonNoResponse},
		{"   ", ReasonNoResponse},
		{"I don't know", ReasonNoResponse},
		{"i don't know", ReasonNoResponse},
		{"KAM needs to respond", ReasonNoResponse},
		{"Permanently Closed (Outlet/brand)", ReasonTerminal},
		{"permanently closed", ReasonTerminal},
		{"Switched to Another POS", ReasonTerminal},
		{"Outlet switched to another pos last month", ReasonTerminal},
		{"Ownership Transfer in progress", ReasonTerminal},
		{"Payment Overdue", ReasonTerminal},
		{"Temporarily Closed for renovation", ReasonTerminal},
		{"Demo Account", ReasonTerminal},
		{"Now Active Again", ReasonTerminal},
		{"Unhappy with onboarding", ReasonOther},
		{"Billing dispute pending", ReasonOther},
	}

	for _, tc := range tests {
		if got := tax.Classify(tc.reason); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.reason, got, tc.want)
		}
	}
}

func TestControlled(t *testing.T) {
	tax := DefaultTaxonomy()

	tests := []struct {
		reason string
		want   ControlledStatus
	}{
		{"", ControlledUnknown},
		{"  ", ControlledUnknown},
		{"Payment Overdue", Controlled},
		{"Switched to Another POS", Controlled},
		{"pricing issue raised by owner", Controlled},
		{"Permanently Closed (Outlet/brand)", Uncontrolled},
		{"Ownership Transfer", Uncontrolled},
		{"Shop Shifted to new locality", Uncontrolled},
		{"Something entirely different", ControlledUnknown},
	}

	for _, tc := range tests {
		if got := tax.Controlled(tc.reason); got != tc.want {
			t.Errorf("Controlled(%q) = %v, want %v", tc.reason, got, tc.want)
		}
	}
}

func TestTaxonomyIsInjectable(t *testing.T) {
	// A swapped taxonomy changes classification without code changes.
	custom := NewTaxonomy(
		[]string{"pending"},
		[]string{"gone"},
		nil,
		[]string{"gone"},
	)

	if got := custom.Classify("pending"); got != ReasonNoResponse {
		t.Fatalf("custom non-answer entry not honored: %v", got)
	}
	if got := custom.Classify("outlet is gone"); got != ReasonTerminal {
		t.Fatalf("custom terminal entry not honored: %v", got)
	}
	if got := custom.Classify("I don't know"); got != ReasonOther {
		t.Fatalf("default lists leaked into custom taxonomy: %v", got)
	}
}
