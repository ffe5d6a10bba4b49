package domain

import (
	"strings"
	"time"
)

// Bucket is one of the four mutually exclusive report categories, plus the
// invalid-date tally.
type Bucket int

const (
	BucketCompleted Bucket = iota
	BucketFollowUps
	BucketNew
	BucketOverdue
	BucketInvalid
)

func (b Bucket) String() string {
	switch b {
	case BucketCompleted:
		return "completed"
	case BucketFollowUps:
		return "follow-ups"
	case BucketNew:
		return "new"
	case BucketOverdue:
		return "overdue"
	default:
		return "invalid"
	}
}

// ParseBucket maps a filter name to a bucket. Returns false for anything
// unrecognized; "invalid" is not selectable as a filter.
func ParseBucket(value string) (Bucket, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "completed":
		return BucketCompleted, true
	case "follow-ups", "followups":
		return BucketFollowUps, true
	case "new":
		return BucketNew, true
	case "overdue":
		return BucketOverdue, true
	default:
		return BucketInvalid, false
	}
}

// recordDateLayouts are the date shapes accepted from imports, most specific
// first.
var recordDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
}

// ParseRecordDate parses an ingested record date. The false return is the
// data-quality signal categorization reports as "invalid".
func ParseRecordDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range recordDateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// BucketOf classifies one record, first match wins:
//
//  1. Completed: terminal reason, stored COMPLETED, or attempt bound reached.
//  2. FollowUps: any action taken or scheduled (attempts exist, workflow is
//     active, a reminder is pending, or a real reason has been supplied).
//  3. Date bucketing for the remaining no-response records: New within the
//     window, Overdue beyond it, Invalid when the date cannot be parsed.
//
// Every list filter must funnel through this same function so that bucket
// sizes always partition the record set.
func BucketOf(tax *Taxonomy, rec *Record, asOf time.Time, newWindow time.Duration) Bucket {
	class := tax.Classify(rec.Reason)

	if class == ReasonTerminal || rec.FollowUpStatus == StatusCompleted || len(rec.Attempts) >= maxFollowUpCalls {
		return BucketCompleted
	}

	hasRealReason := class != ReasonNoResponse && strings.TrimSpace(rec.Reason) != ""
	if len(rec.Attempts) > 0 ||
		rec.FollowUpStatus == StatusActive ||
		rec.IsFollowUpActive ||
		(rec.FollowUpStatus == StatusInactive && rec.NextReminderTime != nil) ||
		hasRealReason {
		return BucketFollowUps
	}

	recordDate, ok := ParseRecordDate(rec.RecordDate)
	if !ok {
		return BucketInvalid
	}

	if recordDate.Before(asOf.Add(-newWindow)) {
		return BucketOverdue
	}
	return BucketNew
}

// Summary is the four-bucket categorization of a record set plus the
// invalid-date tally.
type Summary struct {
	New       int `json:"new"`
	Overdue   int `json:"overdue"`
	FollowUps int `json:"followUps"`
	Completed int `json:"completed"`
	Invalid   int `json:"invalid"`
	Total     int `json:"total"`
}

// Categorize partitions the record set. The partition is complete by
// construction: every record lands in exactly one tally.
func Categorize(tax *Taxonomy, records []*Record, asOf time.Time, newWindow time.Duration) Summary {
	summary := Summary{Total: len(records)}
	for _, rec := range records {
		switch BucketOf(tax, rec, asOf, newWindow) {
		case BucketCompleted:
			summary.Completed++
		case BucketFollowUps:
			summary.FollowUps++
		case BucketNew:
			summary.New++
		case BucketOverdue:
			summary.Overdue++
		default:
			summary.Invalid++
		}
	}
	return summary
}
