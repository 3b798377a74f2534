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
	"github.com/blnkfinance/regpay/model"
	"github.com/sirupsen/logrus"
)

// compensate releases everything a submission holds: the target goes back to
// the status stashed at lock time and the draft moves to state to without its
// transient payment fields. Both are written in one transaction, conditional
// on the draft still being in its current state.
func (r *Regpay) compensate(ctx context.Context, draft *model.Draft, to model.DraftState) error {
	ctx, span := tracer.Start(ctx, "Compensating submission")
	defer span.End()

	from := draft.State
	logger := logrus.WithFields(logrus.Fields{
		"draft_number": draft.Number,
		"invoice_id":   draft.InvoiceID,
	})

	var target *model.TargetRecord
	if draft.TargetRecordNumber != nil && !draft.RegistrationType.NewRecord() {
		if prior, ok := draft.PriorStatus(); ok {
			target = &model.TargetRecord{RecordNumber: *draft.TargetRecordNumber, Status: prior}
		} else {
			logger.Warn("draft has no stashed target status, target left as is")
		}
	}

	draft.ScrubTransient()
	draft.SetState(to)
	if err := r.datasource.RevertDraft(ctx, draft, from, target); err != nil {
		span.RecordError(err)
		return err
	}

	logger.WithField("state", to).Info("submission compensated")
	r.metrics.IncCompensation(string(model.SubjectRegistration))
	return nil
}

// Revert withdraws a submission whose payment is still pending and cancels the
// charge with the provider. A draft in staff review has already been paid, so it
// can only be resolved through ApproveReview or RejectReview.
func (r *Regpay) Revert(ctx context.Context, number string) (*model.Draft, error) {
	draft, err := r.datasource.GetDraftByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	switch draft.State {
	case model.DraftStatePending:
	case model.DraftStateStaffReview:
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft is paid and awaiting staff review", nil)
	default:
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft has no submission in progress", nil)
	}
	pendingInvoice := draft.InvoiceID

	if err := r.compensate(ctx, draft, model.DraftStateDraft); err != nil {
		if errors.Is(err, database.ErrAlreadyResolved) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft was resolved concurrently", err)
		}
		return nil, err
	}
	if pendingInvoice != "" {
		r.cancelCharge(ctx, pendingInvoice)
		r.track(ctx, pendingInvoice, model.EventPaymentCancelled, http.StatusOK, draft.Number)
	}
	return draft, nil
}
