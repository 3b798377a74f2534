package model

import (
	"strings"
	"time"
)

// Event tracking types. Entries are keyed by payment invoice id.
const (
	EventPaymentOpened        = "PAYMENT_OPENED"
	EventSearchPaymentOpened  = "SEARCH_PAYMENT_OPENED"
	EventCallbackReceived     = "CALLBACK_RECEIVED"
	EventRegistrationComplete = "REGISTRATION_COMPLETED"
	EventSearchComplete       = "SEARCH_COMPLETED"
	EventStaffReview          = "STAFF_REVIEW_REQUIRED"
	EventPaymentCancelled     = "PAYMENT_CANCELLED"
	EventCallbackError        = "CALLBACK_ERROR"
	EventReportDispatchFailed = "REPORT_DISPATCH_FAILED"
	EventPaymentStale         = "PAYMENT_STALE"
	EventReviewRejected       = "REVIEW_REJECTED"
)

// DefaultErrorCode is recorded when a failure carries no more specific status.
const DefaultErrorCode = 500

type EventTracking struct {
	ID         int64     `json:"id"`
	KeyID      string    `json:"key_id"`
	Type       string    `json:"type"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type SubjectKind string

const (
	SubjectRegistration SubjectKind = "REGISTRATION"
	SubjectSearch       SubjectKind = "SEARCH"
)

// PaymentIntent maps an invoice back to the thing it pays for.
type PaymentIntent struct {
	InvoiceID   string      `json:"invoice_id"`
	SubjectKind SubjectKind `json:"subject_kind"`
	SubjectRef  string      `json:"subject_ref"`
	AccountID   string      `json:"account_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

const (
	SearchStatusPending   = "PENDING"
	SearchStatusPaid      = "PAID"
	SearchStatusCancelled = "CANCELLED"
)

type SearchRequest struct {
	ID        int64                  `json:"-"`
	SearchID  string                 `json:"search_id"`
	AccountID string                 `json:"account_id"`
	Query     map[string]interface{} `json:"query"`
	Status    string                 `json:"status"`
	InvoiceID string                 `json:"invoice_id,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Payment provider status codes.
const (
	PayStatusCancelled = "CANCELLED"
	PayStatusCompleted = "COMPLETED"
	PayStatusDeleted   = "DELETED"
	PayStatusPaid      = "PAID"
	PayStatusReversed  = "REVERSED"
)

// PaymentCallback is the body the payment provider posts for an invoice.
type PaymentCallback struct {
	StatusCode string `json:"statusCode"`
}

func (c PaymentCallback) Code() string {
	return strings.ToUpper(strings.TrimSpace(c.StatusCode))
}

func (c PaymentCallback) IsPaid() bool {
	return c.Code() == PayStatusCompleted || c.Code() == PayStatusPaid
}

func (c PaymentCallback) IsCancelled() bool {
	return c.Code() == PayStatusCancelled || c.Code() == PayStatusDeleted
}

func (c PaymentCallback) IsReversed() bool {
	return c.Code() == PayStatusReversed
}

// CallbackState is the per-invoice progression of a payment notification.
type CallbackState string

const (
	CallbackNew      CallbackState = "NEW"
	CallbackMatched  CallbackState = "MATCHED"
	CallbackResolved CallbackState = "RESOLVED"
	CallbackIgnored  CallbackState = "IGNORED"
)
