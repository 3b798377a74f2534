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
	"testing"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewPayload(record string) map[string]interface{} {
	payload := transferPayload(record)
	payload["review_required"] = true
	return payload
}

func TestPaidDraftRequiringReviewWaitsForStaff(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100900", model.StatusActive)
	res := submit(t, env, reviewPayload("100900"))

	state, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)

	draft := env.draft(t, res.Draft.BaseNumber)
	assert.Equal(t, model.DraftStateStaffReview, draft.State)
	assert.Equal(t, "SR"+draft.BaseNumber, draft.Number)
	assert.Equal(t, model.StatusLocked, env.store.MustTarget("100900").Status)
	assert.Empty(t, env.store.Registrations())
	assert.Contains(t, env.events(t, res.InvoiceID), model.EventStaffReview)

	// the provider redelivering the same notification changes nothing
	state, err = callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackNew, state)
}

func TestApproveReviewFinalizes(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100910", model.StatusExempt)
	res := submit(t, env, reviewPayload("100910"))
	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	reg, err := env.regpay.ApproveReview(context.Background(), "SR"+res.Draft.BaseNumber)
	require.NoError(t, err)
	assert.Equal(t, "100910", reg.RecordNumber)
	assert.Equal(t, model.StatusExempt, env.store.MustTarget("100910").Status)
	assert.Equal(t, model.DraftStateCompleted, env.draft(t, res.Draft.BaseNumber).State)
	assert.Len(t, env.enqueuer.reportTasks(t), 1)

	_, err = env.regpay.ApproveReview(context.Background(), res.Draft.BaseNumber)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.Len(t, env.store.Registrations(), 1)
}

func TestRejectReviewCancelsDraftAndUnlocks(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100920", model.StatusActive)
	res := submit(t, env, reviewPayload("100920"))
	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	draft, err := env.regpay.RejectReview(context.Background(), res.Draft.BaseNumber, "transferee signature missing")
	require.NoError(t, err)
	assert.Equal(t, model.DraftStateCancelled, draft.State)
	assert.Equal(t, model.StatusActive, env.store.MustTarget("100920").Status)
	assert.Empty(t, env.store.Registrations())

	events, err := env.regpay.GetPaymentEvents(context.Background(), res.InvoiceID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.EventReviewRejected, last.Type)
	assert.Equal(t, "transferee signature missing", last.Message)

	// a cancelled draft can be edited and deleted
	_, err = env.regpay.UpdateDraft(context.Background(), draft.Number, transferPayload("100920"))
	require.NoError(t, err)
	require.NoError(t, env.regpay.DeleteDraft(context.Background(), draft.Number))
}

func TestReviewActionsRequireStaffReviewState(t *testing.T) {
	env := newTestEnv(t)
	res := submit(t, env, newHomePayload())

	_, err := env.regpay.ApproveReview(context.Background(), res.Draft.Number)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	_, err = env.regpay.RejectReview(context.Background(), res.Draft.Number, "")
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	_, err = env.regpay.ApproveReview(context.Background(), "D9999999")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestRevertRefusesPaidStaffReviewDraft(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100930", model.StatusActive)
	res := submit(t, env, reviewPayload("100930"))
	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	_, err = env.regpay.Revert(context.Background(), "SR"+res.Draft.BaseNumber)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	draft := env.draft(t, res.Draft.BaseNumber)
	assert.Equal(t, model.DraftStateStaffReview, draft.State)
	assert.Equal(t, model.StatusLocked, env.store.MustTarget("100930").Status)
	assert.Empty(t, env.gateway.cancelled)
	assert.NotContains(t, env.events(t, res.InvoiceID), model.EventPaymentCancelled)

	// the paid draft cannot be charged a second time
	_, err = env.regpay.SubmitRegistration(context.Background(), RegistrationRequest{DraftNumber: draft.Number})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.Len(t, env.gateway.opened, 1)

	_, err = env.regpay.ApproveReview(context.Background(), draft.Number)
	require.NoError(t, err)
	assert.Len(t, env.store.Registrations(), 1)
}
