// Package domain provides core business rules for the churn bounded context:
// the reason taxonomy, the follow-up state machine, the auto-heal pass, the
// report categorization engine and the visibility scope rules.
package domain

import "strings"

// ReasonClass is the classification of a churn reason string.
type ReasonClass int

const (
	// ReasonNoResponse marks a blank or placeholder reason; the record is
	// follow-up eligible because no real cause has been determined yet.
	ReasonNoResponse ReasonClass = iota
	// ReasonTerminal marks a finalized outcome that ends the workflow.
	ReasonTerminal
	// ReasonOther marks a real, non-terminal reason.
	ReasonOther
)

func (c ReasonClass) String() string {
	switch c {
	case ReasonNoResponse:
		return "NoResponse"
	case ReasonTerminal:
		return "Terminal"
	default:
		return "Other"
	}
}

// ControlledStatus is the controllability classification of a churn reason.
type ControlledStatus string

const (
	Controlled        ControlledStatus = "Controlled"
	Uncontrolled      ControlledStatus = "Uncontrolled"
	ControlledUnknown ControlledStatus = "Unknown"
)

// Taxonomy maps free-text churn reasons to workflow classifications. It is a
// read-only value object injected into every component that classifies
// reasons; changing the lists here changes classification everywhere.
type Taxonomy struct {
	nonAnswer    map[string]struct{}
	terminal     []string
	controlled   []string
	uncontrolled []string
}

// NewTaxonomy builds a taxonomy from membership lists. Non-answer entries
// match exactly (case-insensitive); the other lists match exactly or as a
// case-insensitive substring of the reason.
func NewTaxonomy(nonAnswer, terminal, controlled, uncontrolled []string) *Taxonomy {
	t := &Taxonomy{
		nonAnswer:    make(map[string]struct{}, len(nonAnswer)),
		terminal:     lowerAll(terminal),
		controlled:   lowerAll(controlled),
		uncontrolled: lowerAll(uncontrolled),
	}
	for _, entry := range nonAnswer {
		t.nonAnswer[strings.ToLower(strings.TrimSpace(entry))] = struct{}{}
	}
	return t
}

// DefaultTaxonomy returns the production reason lists.
func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy(
		[]string{
			"I don't know",
			"I dont know",
			"KAM needs to respond",
			"Not yet contacted",
		},
		[]string{
			"Permanently Closed",
			"Switched to Another POS",
			"Ownership Transfer",
			"Payment Overdue",
			"Temporarily Closed",
			"Demo Account",
			"Event Account",
			"Now Active Again",
		},
		[]string{
			"Payment Overdue",
			"Switched to Another POS",
			"Pricing Issue",
			"Service Issue",
			"Support Issue",
			"Hardware Issue",
			"Training Gap",
		},
		[]string{
			"Permanently Closed",
			"Temporarily Closed",
			"Ownership Transfer",
			"Demo Account",
			"Event Account",
			"Now Active Again",
			"Shop Shifted",
		},
	)
}

// Classify maps a reason string to its workflow class. A blank reason or an
// exact non-answer placeholder is NoResponse; a finalized outcome (exact or
// substring match) is Terminal; everything else is Other.
func (t *Taxonomy) Classify(reason string) ReasonClass {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return ReasonNoResponse
	}

	lowered := strings.ToLower(trimmed)
	if _, ok := t.nonAnswer[lowered]; ok {
		return ReasonNoResponse
	}

	if matchesAny(lowered, t.terminal) {
		return ReasonTerminal
	}

	return ReasonOther
}

// Controlled maps a reason to its controllability. Blank input defaults to
// Unknown, as does any reason outside both lists.
func (t *Taxonomy) Controlled(reason string) ControlledStatus {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return ControlledUnknown
	}

	lowered := strings.ToLower(trimmed)
	if matchesAny(lowered, t.controlled) {
		return Controlled
	}
	if matchesAny(lowered, t.uncontrolled) {
		return Uncontrolled
	}

	return ControlledUnknown
}

// matchesAny reports whether lowered equals or contains any list entry.
func matchesAny(lowered string, entries []string) bool {
	for _, entry := range entries {
		if lowered == entry || strings.Contains(lowered, entry) {
			return true
		}
	}
	return false
}

func lowerAll(entries []string) []string {
	result := make([]string, len(entries))
	for i, entry := range entries {
		result[i] = strings.ToLower(strings.TrimSpace(entry))
	}
	return result
}
