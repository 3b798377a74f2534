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
)

func (r *Regpay) reviewDraft(ctx context.Context, number string) (*model.Draft, error) {
	draft, err := r.datasource.GetDraftByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if draft.State != model.DraftStateStaffReview {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft is not awaiting staff review", nil)
	}
	return draft, nil
}

// ApproveReview finalizes a paid draft that was held for staff review.
func (r *Regpay) ApproveReview(ctx context.Context, number string) (*model.Registration, error) {
	draft, err := r.reviewDraft(ctx, number)
	if err != nil {
		return nil, err
	}
	reg, err := r.finalize(ctx, draft, model.DraftStateStaffReview)
	if errors.Is(err, database.ErrAlreadyResolved) {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft was resolved concurrently", err)
	}
	return reg, err
}

// RejectReview releases the target of a draft held for staff review and
// cancels the draft. Refunding the payment is left to the provider.
func (r *Regpay) RejectReview(ctx context.Context, number, reason string) (*model.Draft, error) {
	draft, err := r.reviewDraft(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := r.compensate(ctx, draft, model.DraftStateCancelled); err != nil {
		if errors.Is(err, database.ErrAlreadyResolved) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft was resolved concurrently", err)
		}
		return nil, err
	}
	r.track(ctx, draft.InvoiceID, model.EventReviewRejected, http.StatusOK, reason)
	return draft, nil
}
