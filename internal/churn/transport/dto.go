// Package transport defines the JSON request and response shapes for the
// churn HTTP surface. Timestamps are serialized as RFC 3339 UTC.
package transport

import (
	"time"

	"churnwatch_backend/internal/churn/domain"
)

// SetReasonRequest updates a record's churn reason. Remarks are only
// touched when the field is present in the payload.
type SetReasonRequest struct {
	Reason  string  `json:"reason" validate:"max=500"`
	Remarks *string `json:"remarks" validate:"omitempty,max=2000"`
}

// RecordAttemptRequest records one call-back attempt.
type RecordAttemptRequest struct {
	Response     string `json:"response" validate:"required,max=50"`
	Notes        string `json:"notes" validate:"max=2000"`
	ReasonAtCall string `json:"reasonAtCallTime" validate:"max=500"`
}

// ImportRecord is one pre-validated row of a bulk ingestion.
type ImportRecord struct {
	RID          string `json:"rid" validate:"required,max=64"`
	KAM          string `json:"kam" validate:"required,max=120"`
	AccountName  string `json:"accountName" validate:"required,max=255"`
	Reason       string `json:"reason" validate:"max=500"`
	Remarks      string `json:"remarks" validate:"max=2000"`
	ContactPhone string `json:"contactPhone" validate:"max=32"`
	RecordDate   string `json:"recordDate" validate:"max=64"`
}

// ImportRequest is the bulk ingestion payload.
type ImportRequest struct {
	Records []ImportRecord `json:"records" validate:"required,min=1,max=5000,dive"`
}

// ImportResponse reports how many rows of a bulk ingestion were stored.
type ImportResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// CallAttemptResponse is one stored call attempt.
type CallAttemptResponse struct {
	CallNumber   int       `json:"callNumber"`
	AttemptedAt  time.Time `json:"attemptedAt"`
	Response     string    `json:"response"`
	Notes        string    `json:"notes,omitempty"`
	ReasonAtCall string    `json:"reasonAtCallTime,omitempty"`
}

// RecordResponse is the full record view.
type RecordResponse struct {
	RID                 string                `json:"rid"`
	KAM                 string                `json:"kam"`
	AccountName         string                `json:"accountName"`
	Reason              string                `json:"reason"`
	Remarks             string                `json:"remarks,omitempty"`
	ContactPhone        string                `json:"contactPhone,omitempty"`
	RecordDate          string                `json:"recordDate"`
	ControlledStatus    string                `json:"controlledStatus"`
	FollowUpStatus      string                `json:"followUpStatus"`
	IsActive            bool                  `json:"isActive"`
	CurrentCall         int                   `json:"currentCall"`
	NextReminderTime    *time.Time            `json:"nextReminderTime,omitempty"`
	FollowUpCompletedAt *time.Time            `json:"followUpCompletedAt,omitempty"`
	CallAttempts        []CallAttemptResponse `json:"callAttempts"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

// ListResponse is a paginated, categorized record listing.
type ListResponse struct {
	Items    []RecordResponse `json:"items"`
	Summary  domain.Summary   `json:"summary"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// HealResponse reports a corrective sweep.
type HealResponse struct {
	Scanned   int `json:"scanned"`
	Corrected int `json:"corrected"`
	Skipped   int `json:"skipped"`
}

// FromRecord maps a domain record to its response view. isActive is
// re-derived against asOf so an elapsed reminder reads as active even before
// the background flip has been persisted.
func FromRecord(rec *domain.Record, asOf time.Time) RecordResponse {
	resp := RecordResponse{
		RID:                 rec.RID,
		KAM:                 rec.KAM,
		AccountName:         rec.AccountName,
		Reason:              rec.Reason,
		Remarks:             rec.Remarks,
		ContactPhone:        rec.ContactPhone,
		RecordDate:          rec.RecordDate,
		ControlledStatus:    string(rec.ControlledStatus),
		FollowUpStatus:      string(rec.FollowUpStatus),
		IsActive:            rec.ActiveAt(asOf),
		CurrentCall:         rec.CurrentCall,
		NextReminderTime:    utcPtr(rec.NextReminderTime),
		FollowUpCompletedAt: utcPtr(rec.FollowUpCompletedAt),
		CallAttempts:        make([]CallAttemptResponse, 0, len(rec.Attempts)),
		UpdatedAt:           rec.UpdatedAt.UTC(),
	}
	for _, attempt := range rec.Attempts {
		resp.CallAttempts = append(resp.CallAttempts, CallAttemptResponse{
			CallNumber:   attempt.CallNumber,
			AttemptedAt:  attempt.AttemptedAt.UTC(),
			Response:     string(attempt.Response),
			Notes:        attempt.Notes,
			ReasonAtCall: attempt.ReasonAtCall,
		})
	}
	return resp
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
