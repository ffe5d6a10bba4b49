package domain

import "time"

// NeedsHeal reports whether the record's stored status has drifted from what
// the taxonomy implies: a terminal reason on file, or the attempt bound
// reached, without the record being COMPLETED.
func NeedsHeal(tax *Taxonomy, rec *Record) bool {
	if rec.IsCompleted() {
		return false
	}
	return tax.Classify(rec.Reason) == ReasonTerminal || len(rec.Attempts) >= maxFollowUpCalls
}

// HealRecord corrects a drifted record in place, forcing it to COMPLETED.
// It never runs in the reverse direction. Returns true when a correction
// was applied; a second call on the same record is always a no-op.
func HealRecord(tax *Taxonomy, rec *Record, now time.Time) bool {
	if !NeedsHeal(tax, rec) {
		return false
	}
	complete(rec, now)
	return true
}

// Heal runs the corrective pass over a record set and returns the number of
// records corrected. Idempotent: a second pass over the same records
// corrects nothing further.
func Heal(tax *Taxonomy, records []*Record, now time.Time) int {
	corrected := 0
	for _, rec := range records {
		if HealRecord(tax, rec, now) {
			corrected++
		}
	}
	return corrected
}
