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
	"strings"

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/apierror"
	redlock "github.com/blnkfinance/regpay/internal/lock"
	"github.com/blnkfinance/regpay/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// callbackSubject is what an invoice pays for. At most one of draft and search is set.
type callbackSubject struct {
	kind   model.SubjectKind
	draft  *model.Draft
	search *model.SearchRequest
}

// ProcessPaymentCallback applies a payment provider notification for invoiceID.
// Deliveries are at-least-once: anything that no longer has a pending subject
// is acknowledged without changes. The returned error carries the HTTP class
// the provider should see.
func (r *Regpay) ProcessPaymentCallback(ctx context.Context, invoiceID string, cb model.PaymentCallback) (model.CallbackState, error) {
	ctx, span := tracer.Start(ctx, "Processing payment callback")
	defer span.End()

	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return model.CallbackNew, apierror.NewAPIError(apierror.ErrBadRequest, "invoice id is required", nil)
	}

	switch {
	case cb.IsReversed():
		r.metrics.IncCallback(string(model.CallbackIgnored))
		return model.CallbackIgnored, nil
	case cb.IsPaid(), cb.IsCancelled():
	default:
		r.metrics.IncCallback("INVALID")
		return model.CallbackNew, apierror.NewAPIError(apierror.ErrBadRequest, "invalid payment status code: "+cb.StatusCode, nil)
	}

	logger := logrus.WithFields(logrus.Fields{
		"invoice_id":  invoiceID,
		"status_code": cb.Code(),
	})

	if r.locks != nil {
		release, err := r.locks.Acquire(ctx, invoiceID)
		switch {
		case errors.Is(err, redlock.ErrLockHeld):
			r.metrics.IncCallback("BUSY")
			return model.CallbackNew, apierror.NewAPIError(apierror.ErrConflict, "callback for this invoice is already being processed", err)
		case err != nil:
			// state transitions are conditional, so a missing lock only costs duplicate work
			logger.WithError(err).Warn("callback lock unavailable, continuing without it")
		default:
			defer func() {
				if err := release(context.Background()); err != nil {
					logger.WithError(err).Warn("failed to release callback lock")
				}
			}()
		}
	}

	state, err := r.applyCallback(ctx, invoiceID, cb)
	if err != nil {
		span.RecordError(err)
		logger.WithError(err).Error("payment callback failed")
		r.trackError(ctx, invoiceID, err)
		r.notifier.NotifyError(err)
		r.metrics.IncCallback("ERROR")
		if _, ok := asAPIError(err); !ok {
			err = apierror.NewAPIError(apierror.ErrInternalServer, "failed to process payment callback", err)
		}
		return state, err
	}

	span.AddEvent("Payment callback processed", trace.WithAttributes(
		attribute.String("invoice.id", invoiceID),
		attribute.String("callback.state", string(state)),
	))
	logger.WithField("state", state).Info("payment callback processed")
	r.metrics.IncCallback(string(state))
	return state, nil
}

func (r *Regpay) applyCallback(ctx context.Context, invoiceID string, cb model.PaymentCallback) (model.CallbackState, error) {
	r.track(ctx, invoiceID, model.EventCallbackReceived, http.StatusOK, cb.Code())

	subject, err := r.resolveSubject(ctx, invoiceID)
	if err != nil {
		return model.CallbackNew, err
	}

	switch subject.kind {
	case model.SubjectSearch:
		if subject.search == nil || subject.search.Status != model.SearchStatusPending {
			return model.CallbackNew, nil
		}
		err = r.resolveSearch(ctx, subject.search, cb)
	default:
		draft := subject.draft
		if draft == nil || draft.State != model.DraftStatePending || draft.InvoiceID != invoiceID {
			return model.CallbackNew, nil
		}
		if cb.IsPaid() {
			err = r.completePayment(ctx, draft)
		} else {
			err = r.compensate(ctx, draft, model.DraftStateDraft)
			if err == nil {
				r.track(ctx, invoiceID, model.EventPaymentCancelled, http.StatusOK, draft.Number)
			}
		}
	}

	// a concurrent delivery got there first
	if errors.Is(err, database.ErrAlreadyResolved) {
		return model.CallbackResolved, nil
	}
	if err != nil {
		return model.CallbackMatched, err
	}
	return model.CallbackResolved, nil
}

// resolveSubject finds what invoiceID pays for: the payment intent index
// first, then the legacy search marker, then the draft holding the invoice.
func (r *Regpay) resolveSubject(ctx context.Context, invoiceID string) (*callbackSubject, error) {
	intent, err := r.datasource.GetPaymentIntent(ctx, invoiceID)
	switch {
	case err == nil:
	case apierror.Is(err, apierror.ErrNotFound):
		intent = nil
	default:
		return nil, err
	}

	kind := model.SubjectRegistration
	if intent != nil {
		kind = intent.SubjectKind
	} else {
		isSearch, err := r.datasource.EventExists(ctx, invoiceID, model.EventSearchPaymentOpened)
		if err != nil {
			return nil, err
		}
		if isSearch {
			kind = model.SubjectSearch
		}
	}

	subject := &callbackSubject{kind: kind}
	if kind == model.SubjectSearch {
		search, err := r.datasource.GetSearchByInvoice(ctx, invoiceID)
		if err != nil && !apierror.Is(err, apierror.ErrNotFound) {
			return nil, err
		}
		subject.search = search
		return subject, nil
	}

	var draft *model.Draft
	if intent != nil {
		draft, err = r.datasource.GetDraftByNumber(ctx, intent.SubjectRef)
	} else {
		draft, err = r.datasource.GetDraftByInvoice(ctx, invoiceID)
	}
	if err != nil && !apierror.Is(err, apierror.ErrNotFound) {
		return nil, err
	}
	subject.draft = draft
	return subject, nil
}

// completePayment finalizes a paid draft, or parks it for staff when its
// submission asks for review.
func (r *Regpay) completePayment(ctx context.Context, draft *model.Draft) error {
	sub, err := decodeSubmission(draft.Payload)
	if err != nil {
		return err
	}
	if !sub.ReviewRequired {
		_, err = r.finalize(ctx, draft, model.DraftStatePending)
		return err
	}

	draft.SetState(model.DraftStateStaffReview)
	if err := r.datasource.TransitionDraft(ctx, draft, model.DraftStatePending); err != nil {
		return err
	}
	r.track(ctx, draft.InvoiceID, model.EventStaffReview, http.StatusOK, draft.Number)
	return nil
}

func (r *Regpay) resolveSearch(ctx context.Context, search *model.SearchRequest, cb model.PaymentCallback) error {
	if cb.IsCancelled() {
		if err := r.datasource.TransitionSearch(ctx, search.SearchID, model.SearchStatusPending, model.SearchStatusCancelled); err != nil {
			return err
		}
		r.track(ctx, search.InvoiceID, model.EventPaymentCancelled, http.StatusOK, search.SearchID)
		r.metrics.IncCompensation(string(model.SubjectSearch))
		return nil
	}

	if err := r.datasource.TransitionSearch(ctx, search.SearchID, model.SearchStatusPending, model.SearchStatusPaid); err != nil {
		return err
	}
	r.track(ctx, search.InvoiceID, model.EventSearchComplete, http.StatusOK, search.SearchID)
	r.dispatchReport(ctx, ReportTask{
		Kind:      ReportKindSearchResult,
		InvoiceID: search.InvoiceID,
		AccountID: search.AccountID,
		SearchID:  search.SearchID,
	})
	return nil
}
