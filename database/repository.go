/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"

	"github.com/blnkfinance/regpay/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	sequence      // Identifier allocation
	draft         // Pending submission storage
	target        // Target record status and children
	eventTracking // Append-only payment event ledger
	paymentIntent // Invoice to subject index
	search        // Search payment subjects
	registration  // Final registrations and compensation
}

// Sequence names a gap-tolerant identifier sequence.
type Sequence string

const (
	SeqDraftNumber        Sequence = "regpay.draft_number_seq"
	SeqRegistrationID     Sequence = "regpay.registration_id_seq"
	SeqRegistrationNumber Sequence = "regpay.registration_number_seq"
	SeqDocumentID         Sequence = "regpay.document_id_seq"
	SeqMHRNumber          Sequence = "regpay.mhr_number_seq"
	SeqPPRNumber          Sequence = "regpay.ppr_number_seq"
)

// sequence defines the identifier allocator.
type sequence interface {
	NextID(ctx context.Context, seq Sequence) (int64, error) // Allocates the next value of a sequence
}

// draft defines methods for handling drafts.
type draft interface {
	CreateDraft(ctx context.Context, draft *model.Draft) (*model.Draft, error)            // Inserts a new draft
	GetDraftByNumber(ctx context.Context, number string) (*model.Draft, error)            // Retrieves a draft by number, with or without its state prefix
	GetDraftByInvoice(ctx context.Context, invoiceID string) (*model.Draft, error)        // Retrieves the draft paid for by an invoice
	UpdateDraft(ctx context.Context, draft *model.Draft) error                            // Overwrites payload, state and payment fields
	TransitionDraft(ctx context.Context, draft *model.Draft, from model.DraftState) error // Persists draft only if it is still in state from
	DeleteDraft(ctx context.Context, number string) error                                 // Deletes a draft
}

// target defines methods for the records a change applies to.
type target interface {
	GetTarget(ctx context.Context, recordNumber string) (*model.TargetRecord, error)     // Retrieves a target record
	LockTarget(ctx context.Context, recordNumber string) (*model.TargetRecord, error)    // Locks a target, returning its pre-lock state
	UnlockTarget(ctx context.Context, recordNumber, status string) error                 // Restores the status of a locked target
	GetActiveChildren(ctx context.Context, recordNumber string) (*model.Children, error) // Retrieves the current owner groups, locations and collateral
}

// eventTracking defines the append-only payment event ledger.
type eventTracking interface {
	AppendEvent(ctx context.Context, event *model.EventTracking) error          // Appends an entry
	GetEvents(ctx context.Context, keyID string) ([]model.EventTracking, error) // Lists entries for a key in order
	EventExists(ctx context.Context, keyID, eventType string) (bool, error)     // Checks for a marker entry
}

// paymentIntent defines the invoice to subject index.
type paymentIntent interface {
	RecordPaymentIntent(ctx context.Context, intent *model.PaymentIntent) error           // Registers what an invoice pays for
	GetPaymentIntent(ctx context.Context, invoiceID string) (*model.PaymentIntent, error) // Retrieves the intent for an invoice
}

// search defines methods for search payment subjects.
type search interface {
	CreateSearch(ctx context.Context, search *model.SearchRequest) (*model.SearchRequest, error) // Inserts a search request
	GetSearchByInvoice(ctx context.Context, invoiceID string) (*model.SearchRequest, error)      // Retrieves the search paid for by an invoice
	SetSearchInvoice(ctx context.Context, searchID, invoiceID string) error                      // Attaches an invoice to a search
	TransitionSearch(ctx context.Context, searchID, from, to string) error                       // Moves a search between statuses if still in from
}

// registration defines methods for final registrations and their compensation.
type registration interface {
	CommitRegistration(ctx context.Context, commit *model.RegistrationCommit) error                               // Persists a registration and resolves its draft atomically
	RevertDraft(ctx context.Context, draft *model.Draft, from model.DraftState, target *model.TargetRecord) error // Unlocks the target and reverts the draft atomically
	GetRegistrationByNumber(ctx context.Context, number string) (*model.Registration, error)                      // Retrieves a registration with its children
}
