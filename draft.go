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

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
)

// CreateDraft stores a new draft for payload under a freshly allocated number.
func (r *Regpay) CreateDraft(ctx context.Context, payload map[string]interface{}, accountID, userID string) (*model.Draft, error) {
	ctx, span := tracer.Start(ctx, "Creating draft")
	defer span.End()

	sub, err := decodeSubmission(payload)
	if err != nil {
		return nil, err
	}
	if err := r.requireTarget(ctx, sub); err != nil {
		return nil, err
	}
	payload, err = model.ClonePayload(payload)
	if err != nil {
		return nil, err
	}

	n, err := r.datasource.NextID(ctx, database.SeqDraftNumber)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	draft := &model.Draft{
		BaseNumber:       model.FormatDraftNumber(n),
		Family:           sub.RegistrationType.Family(),
		RegistrationType: sub.RegistrationType,
		Payload:          payload,
		AccountID:        accountID,
		UserID:           userID,
	}
	draft.SetState(model.DraftStateDraft)
	draft.ScrubTransient()
	if sub.TargetRecordNumber != "" {
		target := sub.TargetRecordNumber
		draft.TargetRecordNumber = &target
	}
	return r.datasource.CreateDraft(ctx, draft)
}

// GetDraft finds a draft by number, with or without its state prefix.
func (r *Regpay) GetDraft(ctx context.Context, number string) (*model.Draft, error) {
	return r.datasource.GetDraftByNumber(ctx, number)
}

// UpdateDraft replaces the payload of a draft. Drafts with a payment or staff
// review outstanding cannot be edited.
func (r *Regpay) UpdateDraft(ctx context.Context, number string, payload map[string]interface{}) (*model.Draft, error) {
	draft, err := r.datasource.GetDraftByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if draft.InFlight() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft has a payment in progress", nil)
	}
	if draft.State == model.DraftStateCompleted {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft has already been registered", nil)
	}

	sub, err := decodeSubmission(payload)
	if err != nil {
		return nil, err
	}
	if sub.RegistrationType.Family() != draft.Family {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Registration type belongs to a different family", nil)
	}
	if err := r.requireTarget(ctx, sub); err != nil {
		return nil, err
	}
	payload, err = model.ClonePayload(payload)
	if err != nil {
		return nil, err
	}

	draft.Payload = payload
	draft.ScrubTransient()
	draft.RegistrationType = sub.RegistrationType
	draft.TargetRecordNumber = nil
	if sub.TargetRecordNumber != "" {
		target := sub.TargetRecordNumber
		draft.TargetRecordNumber = &target
	}
	// an edited draft goes back to plain draft, including after a staff rejection
	draft.SetState(model.DraftStateDraft)

	if err := r.datasource.UpdateDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// DeleteDraft removes a draft that is not in flight and not registered.
func (r *Regpay) DeleteDraft(ctx context.Context, number string) error {
	draft, err := r.datasource.GetDraftByNumber(ctx, number)
	if err != nil {
		return err
	}
	if draft.State != model.DraftStateDraft && draft.State != model.DraftStateCancelled {
		return apierror.NewAPIError(apierror.ErrConflict, "Only unsubmitted or cancelled drafts can be deleted", nil)
	}
	return r.datasource.DeleteDraft(ctx, draft.BaseNumber)
}

// requireTarget fails with NotFound when a change names a record that does not exist.
func (r *Regpay) requireTarget(ctx context.Context, sub *model.Submission) error {
	if sub.RegistrationType.NewRecord() || sub.TargetRecordNumber == "" {
		return nil
	}
	_, err := r.datasource.GetTarget(ctx, sub.TargetRecordNumber)
	return err
}

func decodeSubmission(payload map[string]interface{}) (*model.Submission, error) {
	sub, err := model.DecodeSubmission(payload)
	if err != nil {
		if errors.Is(err, model.ErrMalformedPayload) {
			return nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), err)
		}
		return nil, err
	}
	return sub, nil
}
