package model

import (
	"strings"
	"time"
)

// Reserved leading characters of a draft number. The base number itself always
// starts with DraftBasePrefix so the two can never be confused.
const (
	PendingPrefix     = "P"
	StaffReviewPrefix = "SR"
	DraftBasePrefix   = "D"
)

// Transient payload keys. They only live while a payment is in flight and are
// scrubbed when the draft is resolved.
const (
	PayloadKeyPriorStatus = "priorStatus"
	PayloadKeyPayment     = "payment"
)

type DraftState string

const (
	DraftStateDraft       DraftState = "DRAFT"
	DraftStatePending     DraftState = "PENDING"
	DraftStateStaffReview DraftState = "STAFF_REVIEW"
	DraftStateCompleted   DraftState = "COMPLETED"
	DraftStateCancelled   DraftState = "CANCELLED"
)

type Draft struct {
	ID                 int64                  `json:"-"`
	Number             string                 `json:"draft_number"`
	BaseNumber         string                 `json:"base_number"`
	State              DraftState             `json:"state"`
	Family             Family                 `json:"family"`
	RegistrationType   RegistrationType       `json:"registration_type"`
	Payload            map[string]interface{} `json:"payload"`
	AccountID          string                 `json:"account_id"`
	UserID             string                 `json:"user_id"`
	InvoiceID          string                 `json:"invoice_id,omitempty"`
	TargetRecordNumber *string                `json:"target_record_number,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// NormalizeDraftNumber strips the payment-state prefix from a draft number so
// that "PD0000012", "SRD0000012" and "D0000012" all identify the same draft.
func NormalizeDraftNumber(number string) string {
	number = strings.ToUpper(strings.TrimSpace(number))
	switch {
	case strings.HasPrefix(number, StaffReviewPrefix+DraftBasePrefix):
		return strings.TrimPrefix(number, StaffReviewPrefix)
	case strings.HasPrefix(number, PendingPrefix+DraftBasePrefix):
		return strings.TrimPrefix(number, PendingPrefix)
	}
	return number
}

// DisplayNumber derives the human-facing draft number from its state.
func DisplayNumber(state DraftState, baseNumber string) string {
	switch state {
	case DraftStatePending:
		return PendingPrefix + baseNumber
	case DraftStateStaffReview:
		return StaffReviewPrefix + baseNumber
	}
	return baseNumber
}

// SetState moves the draft to state and keeps Number in step with it.
func (d *Draft) SetState(state DraftState) {
	d.State = state
	d.Number = DisplayNumber(state, d.BaseNumber)
}

// InFlight reports whether a payment or staff review is outstanding.
func (d *Draft) InFlight() bool {
	return d.State == DraftStatePending || d.State == DraftStateStaffReview
}

// PriorStatus returns the target status stashed at lock time.
func (d *Draft) PriorStatus() (string, bool) {
	if d.Payload == nil {
		return "", false
	}
	status, ok := d.Payload[PayloadKeyPriorStatus].(string)
	return status, ok && status != ""
}

func (d *Draft) StashPriorStatus(status string) {
	if d.Payload == nil {
		d.Payload = map[string]interface{}{}
	}
	d.Payload[PayloadKeyPriorStatus] = status
}

// ScrubTransient removes payment-time fields from the payload.
func (d *Draft) ScrubTransient() {
	delete(d.Payload, PayloadKeyPriorStatus)
	delete(d.Payload, PayloadKeyPayment)
}
