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

package regpay

import (
	"context"
	"errors"
	"net/http"

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/internal/payment"
	"github.com/blnkfinance/regpay/model"
	"github.com/sirupsen/logrus"
)

// RegistrationRequest submits a registration for payment. DraftNumber names an
// existing draft; without it a draft is created from Payload. When both are
// given the draft payload is replaced first.
type RegistrationRequest struct {
	DraftNumber string                 `json:"draft_number"`
	Payload     map[string]interface{} `json:"payload"`
	AccountID   string                 `json:"account_id"`
	UserID      string                 `json:"user_id"`
}

type SubmitResult struct {
	Draft       *model.Draft `json:"draft"`
	InvoiceID   string       `json:"invoice_id"`
	ReceiptPath string       `json:"receipt_path"`
}

// SearchRequest submits a paid search.
type SearchRequest struct {
	Query           map[string]interface{} `json:"query"`
	AccountID       string                 `json:"account_id"`
	ClientReference string                 `json:"client_reference"`
}

type SearchResult struct {
	Search      *model.SearchRequest `json:"search"`
	InvoiceID   string               `json:"invoice_id"`
	ReceiptPath string               `json:"receipt_path"`
}

const searchFilingType = "SERCH"

// SubmitRegistration locks the target of a change, opens a charge and leaves
// the draft PENDING until the payment provider calls back.
func (r *Regpay) SubmitRegistration(ctx context.Context, req RegistrationRequest) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "Submitting registration")
	defer span.End()

	draft, err := r.loadSubmittableDraft(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	from := draft.State

	sub, err := decodeSubmission(draft.Payload)
	if err != nil {
		return nil, err
	}

	target, err := r.LockTarget(ctx, draft)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	unlock := func() {
		if target != nil {
			r.UnlockTarget(ctx, target.RecordNumber, target.Status)
		}
	}
	if target != nil {
		// the stash must outlive this request in case the process dies before the callback
		if err := r.datasource.UpdateDraft(ctx, draft); err != nil {
			unlock()
			return nil, err
		}
	}

	charge, err := r.payments.OpenCharge(ctx, payment.ChargeRequest{
		FilingType:      string(sub.RegistrationType),
		Quantity:        1,
		Corp:            string(draft.Family),
		TargetID:        chargeTargetID(draft),
		ClientReference: sub.ClientReference,
		AccountID:       draft.AccountID,
	})
	if err != nil {
		span.RecordError(err)
		r.abandonSubmission(ctx, draft, target)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to open payment", err)
	}

	draft.InvoiceID = charge.InvoiceID
	draft.Payload[model.PayloadKeyPayment] = map[string]interface{}{
		"invoiceId":  charge.InvoiceID,
		"receipt":    charge.ReceiptPath,
		"statusCode": charge.StatusCode,
	}
	draft.SetState(model.DraftStatePending)
	if err := r.datasource.TransitionDraft(ctx, draft, from); err != nil {
		span.RecordError(err)
		r.cancelCharge(ctx, charge.InvoiceID)
		unlock()
		if errors.Is(err, database.ErrAlreadyResolved) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft changed while the payment was opened", err)
		}
		return nil, err
	}

	err = r.datasource.RecordPaymentIntent(ctx, &model.PaymentIntent{
		InvoiceID:   charge.InvoiceID,
		SubjectKind: model.SubjectRegistration,
		SubjectRef:  draft.BaseNumber,
		AccountID:   draft.AccountID,
	})
	if err != nil {
		// the callback falls back to the draft invoice lookup
		logrus.WithField("invoice_id", charge.InvoiceID).WithError(err).Warn("failed to record payment intent")
	}
	r.track(ctx, charge.InvoiceID, model.EventPaymentOpened, http.StatusOK, draft.Number)
	r.scheduleStaleCheck(ctx, charge.InvoiceID, draft.Number)
	r.metrics.IncChargeOpened(string(model.SubjectRegistration))

	logrus.WithFields(logrus.Fields{
		"draft_number": draft.Number,
		"invoice_id":   charge.InvoiceID,
	}).Info("registration payment opened")

	return &SubmitResult{Draft: draft, InvoiceID: charge.InvoiceID, ReceiptPath: charge.ReceiptPath}, nil
}

func (r *Regpay) loadSubmittableDraft(ctx context.Context, req RegistrationRequest) (*model.Draft, error) {
	if req.DraftNumber == "" {
		return r.CreateDraft(ctx, req.Payload, req.AccountID, req.UserID)
	}
	if len(req.Payload) > 0 {
		return r.UpdateDraft(ctx, req.DraftNumber, req.Payload)
	}

	draft, err := r.datasource.GetDraftByNumber(ctx, req.DraftNumber)
	if err != nil {
		return nil, err
	}
	switch draft.State {
	case model.DraftStatePending, model.DraftStateStaffReview:
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft has a payment in progress", nil)
	case model.DraftStateCompleted:
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft has already been registered", nil)
	}
	return draft, nil
}

// abandonSubmission undoes the lock after a charge could not be opened. The
// draft keeps its pre-submission state.
func (r *Regpay) abandonSubmission(ctx context.Context, draft *model.Draft, target *model.TargetRecord) {
	if target == nil {
		return
	}
	r.UnlockTarget(ctx, target.RecordNumber, target.Status)
	draft.ScrubTransient()
	if err := r.datasource.UpdateDraft(ctx, draft); err != nil {
		logrus.WithField("draft_number", draft.Number).WithError(err).Error("failed to clear lock stash from draft")
	}
}

func (r *Regpay) cancelCharge(ctx context.Context, invoiceID string) {
	if err := r.payments.CancelCharge(ctx, invoiceID); err != nil {
		logrus.WithField("invoice_id", invoiceID).WithError(err).Error("failed to cancel orphaned charge")
		r.notifier.NotifyError(err)
	}
}

func chargeTargetID(draft *model.Draft) string {
	if draft.TargetRecordNumber != nil {
		return *draft.TargetRecordNumber
	}
	return draft.BaseNumber
}

// SubmitSearch opens a charge for a search. The search result report is
// requested once the payment completes.
func (r *Regpay) SubmitSearch(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "Submitting search")
	defer span.End()

	if len(req.Query) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Search query is required", nil)
	}

	search, err := r.datasource.CreateSearch(ctx, &model.SearchRequest{
		SearchID:  model.GenerateUUIDWithSuffix("search"),
		AccountID: req.AccountID,
		Query:     req.Query,
		Status:    model.SearchStatusPending,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	charge, err := r.payments.OpenCharge(ctx, payment.ChargeRequest{
		FilingType:      searchFilingType,
		Quantity:        1,
		Corp:            "SEARCH",
		TargetID:        search.SearchID,
		ClientReference: req.ClientReference,
		AccountID:       req.AccountID,
	})
	if err != nil {
		span.RecordError(err)
		if terr := r.datasource.TransitionSearch(ctx, search.SearchID, model.SearchStatusPending, model.SearchStatusCancelled); terr != nil {
			logrus.WithField("search_id", search.SearchID).WithError(terr).Error("failed to cancel search")
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to open payment", err)
	}

	if err := r.datasource.SetSearchInvoice(ctx, search.SearchID, charge.InvoiceID); err != nil {
		r.cancelCharge(ctx, charge.InvoiceID)
		return nil, err
	}
	search.InvoiceID = charge.InvoiceID

	err = r.datasource.RecordPaymentIntent(ctx, &model.PaymentIntent{
		InvoiceID:   charge.InvoiceID,
		SubjectKind: model.SubjectSearch,
		SubjectRef:  search.SearchID,
		AccountID:   req.AccountID,
	})
	if err != nil {
		logrus.WithField("invoice_id", charge.InvoiceID).WithError(err).Warn("failed to record payment intent")
	}
	r.track(ctx, charge.InvoiceID, model.EventSearchPaymentOpened, http.StatusOK, search.SearchID)
	r.metrics.IncChargeOpened(string(model.SubjectSearch))

	return &SearchResult{Search: search, InvoiceID: charge.InvoiceID, ReceiptPath: charge.ReceiptPath}, nil
}
