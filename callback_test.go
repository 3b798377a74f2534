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
	"testing"

	"github.com/blnkfinance/regpay/database/memory"
	"github.com/blnkfinance/regpay/internal/apierror"
	redlock "github.com/blnkfinance/regpay/internal/lock"
	"github.com/blnkfinance/regpay/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaidCallbackRegistersNewHome(t *testing.T) {
	env := newTestEnv(t)
	res := submit(t, env, newHomePayload())

	assert.Equal(t, model.DraftStatePending, res.Draft.State)
	assert.Equal(t, "P"+res.Draft.BaseNumber, res.Draft.Number)
	assert.Equal(t, "/payment-requests/"+res.InvoiceID+"/receipts", res.ReceiptPath)

	state, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)

	regs := env.store.Registrations()
	require.Len(t, regs, 1)
	reg := regs[0]
	assert.Equal(t, "100000", reg.RecordNumber)
	assert.Equal(t, "0000001M", reg.RegistrationNumber)
	assert.Equal(t, res.Draft.BaseNumber, reg.DraftNumber)
	assert.Equal(t, res.InvoiceID, reg.InvoiceID)
	require.Len(t, reg.OwnerGroups, 1)
	assert.Equal(t, 1, reg.OwnerGroups[0].GroupID)
	assert.Equal(t, model.ChildStatusActive, reg.OwnerGroups[0].Status)

	target := env.store.MustTarget(reg.RecordNumber)
	assert.Equal(t, model.StatusActive, target.Status)

	draft := env.draft(t, res.Draft.BaseNumber)
	assert.Equal(t, model.DraftStateCompleted, draft.State)
	assert.Equal(t, draft.BaseNumber, draft.Number)
	_, stashed := draft.PriorStatus()
	assert.False(t, stashed)
	assert.NotContains(t, draft.Payload, model.PayloadKeyPayment)

	assert.Equal(t, []string{
		model.EventPaymentOpened,
		model.EventCallbackReceived,
		model.EventRegistrationComplete,
	}, env.events(t, res.InvoiceID))

	reports := env.enqueuer.reportTasks(t)
	require.Len(t, reports, 1)
	assert.Equal(t, ReportKindMHRRegistration, reports[0].Kind)
	assert.Equal(t, reg.RegistrationNumber, reports[0].RegistrationNumber)
	require.NotNil(t, reports[0].Projection)
	assert.Len(t, reports[0].Projection.Current.OwnerGroups, 1)
	assert.Empty(t, reports[0].Projection.Previous.OwnerGroups)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Registrations.WithLabelValues(string(model.RegTypeMHRegistration))))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Callbacks.WithLabelValues(string(model.CallbackResolved))))
}

func TestPaidCallbackIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100200", model.StatusActive)
	res := submit(t, env, transferPayload("100200"))

	state, err := callback(env, res.InvoiceID, "COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
	after := env.store.MustTarget("100200")

	for i := 0; i < 3; i++ {
		state, err = callback(env, res.InvoiceID, "PAID")
		require.NoError(t, err)
		assert.Equal(t, model.CallbackNew, state)
	}

	assert.Len(t, env.store.Registrations(), 1)
	assert.Len(t, env.enqueuer.reportTasks(t), 1)
	assert.Equal(t, after, env.store.MustTarget("100200"))
}

func TestCancelledCallbackRestoresPriorStatus(t *testing.T) {
	for _, prior := range []string{model.StatusActive, model.StatusExempt} {
		t.Run(prior, func(t *testing.T) {
			env := newTestEnv(t)
			seedHome(env, "100300", prior)

			res := submit(t, env, transferPayload("100300"))
			assert.Equal(t, model.StatusLocked, env.store.MustTarget("100300").Status)
			stashed, ok := env.draft(t, res.Draft.Number).PriorStatus()
			require.True(t, ok)
			assert.Equal(t, prior, stashed)

			state, err := callback(env, res.InvoiceID, "CANCELLED")
			require.NoError(t, err)
			assert.Equal(t, model.CallbackResolved, state)

			assert.Equal(t, prior, env.store.MustTarget("100300").Status)
			draft := env.draft(t, res.Draft.BaseNumber)
			assert.Equal(t, model.DraftStateDraft, draft.State)
			assert.Equal(t, draft.BaseNumber, draft.Number)
			_, ok = draft.PriorStatus()
			assert.False(t, ok)
			assert.Empty(t, env.store.Registrations())
			assert.Contains(t, env.events(t, res.InvoiceID), model.EventPaymentCancelled)
		})
	}
}

func TestDeletedCallbackOnNewRecordDraft(t *testing.T) {
	env := newTestEnv(t)
	res := submit(t, env, newHomePayload())

	state, err := callback(env, res.InvoiceID, "deleted")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
	assert.Equal(t, model.DraftStateDraft, env.draft(t, res.Draft.BaseNumber).State)
}

func TestUnknownInvoiceIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100400", model.StatusActive)
	res := submit(t, env, transferPayload("100400"))

	state, err := callback(env, "does-not-exist", "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackNew, state)

	assert.Equal(t, model.StatusLocked, env.store.MustTarget("100400").Status)
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
	assert.Empty(t, env.store.Registrations())
	assert.Equal(t, 0, env.notifier.count())
}

func TestInvalidStatusIsRejectedWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	res := submit(t, env, newHomePayload())
	before := env.events(t, res.InvoiceID)

	for _, status := range []string{"", "APPROVED", "PENDING"} {
		state, err := callback(env, res.InvoiceID, status)
		require.Error(t, err)
		assert.Equal(t, model.CallbackNew, state)
		assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))
	}

	assert.Equal(t, before, env.events(t, res.InvoiceID))
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
	assert.Empty(t, env.store.Registrations())
}

func TestReversedCallbackIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	res := submit(t, env, newHomePayload())

	state, err := callback(env, res.InvoiceID, "REVERSED")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackIgnored, state)
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
	assert.Equal(t, []string{model.EventPaymentOpened}, env.events(t, res.InvoiceID))
}

func TestTransferSupersedesOwnerGroups(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100500", model.StatusActive)
	res := submit(t, env, transferPayload("100500", 1))

	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	regs := env.store.Registrations()
	require.Len(t, regs, 1)
	reg := regs[0]
	require.Len(t, reg.OwnerGroups, 1)
	assert.Equal(t, 3, reg.OwnerGroups[0].GroupID)
	for _, p := range reg.Parties {
		assert.Equal(t, 3, p.GroupID)
	}

	groups, _ := env.store.SupersededBy("100500", reg.RegistrationID)
	assert.Equal(t, []int{1}, groups)
	assert.Equal(t, model.StatusActive, env.store.MustTarget("100500").Status)

	children, err := env.store.GetActiveChildren(context.Background(), "100500")
	require.NoError(t, err)
	var active []int
	for _, g := range children.OwnerGroups {
		active = append(active, g.GroupID)
	}
	assert.ElementsMatch(t, []int{2, 3}, active)

	reports := env.enqueuer.reportTasks(t)
	require.Len(t, reports, 1)
	p := reports[0].Projection
	require.Len(t, p.Previous.OwnerGroups, 1)
	assert.Equal(t, 1, p.Previous.OwnerGroups[0].GroupID)
	assert.Equal(t, model.ChildStatusPrevious, p.Previous.OwnerGroups[0].Status)
	assert.Len(t, p.Current.OwnerGroups, 2)
}

func TestTransferWithoutDeleteIDsSupersedesAllGroups(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100510", model.StatusActive)
	res := submit(t, env, transferPayload("100510"))

	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	reg := env.store.Registrations()[0]
	groups, _ := env.store.SupersededBy("100510", reg.RegistrationID)
	assert.ElementsMatch(t, []int{1, 2}, groups)
}

func TestPermitSupersedesLocation(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100520", model.StatusActive)
	payload := changePayload(model.RegTypePermit, "100520")
	payload["location"] = map[string]interface{}{"location_type": "OTHER", "address": "99 Highway 1"}
	res := submit(t, env, payload)

	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	children, err := env.store.GetActiveChildren(context.Background(), "100520")
	require.NoError(t, err)
	require.Len(t, children.Locations, 1)
	assert.Equal(t, "99 Highway 1", children.Locations[0].Address)

	p := env.enqueuer.reportTasks(t)[0].Projection
	require.Len(t, p.Previous.Locations, 1)
	assert.Equal(t, "12 Main St", p.Previous.Locations[0].Address)
}

func TestExemptionSetsExemptStatus(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100530", model.StatusActive)
	res := submit(t, env, changePayload(model.RegTypeExemption, "100530"))

	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExempt, env.store.MustTarget("100530").Status)
}

func TestAmendmentAndDischargeOfStatement(t *testing.T) {
	env := newTestEnv(t)
	seedStatement(env, "100600B")

	amend := changePayload(model.RegTypeAmendment, "100600B")
	amend["delete_collateral_ids"] = []interface{}{1}
	amend["collateral"] = []interface{}{
		map[string]interface{}{"kind": "MV", "description": "2020 Ford F150", "serial_number": "1FTFW1E50LFA00001"},
	}
	res := submit(t, env, amend)
	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)

	regs := env.store.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "0000001R", regs[0].RegistrationNumber)
	require.Len(t, regs[0].Collateral, 1)
	assert.Equal(t, 3, regs[0].Collateral[0].CollateralID)
	_, collateral := env.store.SupersededBy("100600B", regs[0].RegistrationID)
	assert.Equal(t, []int{1}, collateral)
	assert.Equal(t, model.StatusActive, env.store.MustTarget("100600B").Status)
	assert.Equal(t, ReportKindPPRRegistration, env.enqueuer.reportTasks(t)[0].Kind)

	res = submit(t, env, changePayload(model.RegTypeDischarge, "100600B"))
	_, err = callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.StatusHistorical, env.store.MustTarget("100600B").Status)
}

func TestInvalidDeleteIDFailsFinalization(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100540", model.StatusActive)
	res := submit(t, env, transferPayload("100540", 7))

	state, err := callback(env, res.InvoiceID, "PAID")
	require.Error(t, err)
	assert.Equal(t, model.CallbackMatched, state)
	assert.Equal(t, http.StatusBadRequest, apierror.MapErrorToHTTPStatus(err))

	events, err := env.regpay.GetPaymentEvents(context.Background(), res.InvoiceID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.EventCallbackError, last.Type)
	assert.Equal(t, http.StatusBadRequest, last.StatusCode)

	assert.Equal(t, model.StatusLocked, env.store.MustTarget("100540").Status)
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
	assert.Equal(t, 1, env.notifier.count())
}

func TestCommitFailureLeavesSubmissionPendingForRedelivery(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100700", model.StatusActive)
	res := submit(t, env, transferPayload("100700"))

	env.store.FailOn(memory.OpCommitRegistration, errors.New("connection reset"))
	state, err := callback(env, res.InvoiceID, "PAID")
	require.Error(t, err)
	assert.Equal(t, model.CallbackMatched, state)
	assert.Equal(t, http.StatusInternalServerError, apierror.MapErrorToHTTPStatus(err))

	events, err := env.regpay.GetPaymentEvents(context.Background(), res.InvoiceID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.EventCallbackError, last.Type)
	assert.Equal(t, model.DefaultErrorCode, last.StatusCode)
	assert.Equal(t, model.StatusLocked, env.store.MustTarget("100700").Status)
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
	assert.Empty(t, env.store.Registrations())

	state, err = callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
	assert.Len(t, env.store.Registrations(), 1)
	assert.Equal(t, model.StatusActive, env.store.MustTarget("100700").Status)
}

func TestPaidCallbackOnReleasedTargetIsTrackedAndRetried(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env, "100900", model.StatusActive)
	res := submit(t, env, transferPayload("100900"))

	// staff released the lock by hand while the payment was outstanding
	require.NoError(t, env.store.UnlockTarget(context.Background(), "100900", model.StatusActive))

	state, err := callback(env, res.InvoiceID, "PAID")
	require.Error(t, err)
	assert.Equal(t, model.CallbackMatched, state)
	assert.Equal(t, http.StatusInternalServerError, apierror.MapErrorToHTTPStatus(err))

	assert.Empty(t, env.store.Registrations())
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
	assert.Equal(t, model.StatusActive, env.store.MustTarget("100900").Status)

	events := env.events(t, res.InvoiceID)
	assert.Equal(t, model.EventCallbackError, events[len(events)-1])
	assert.Equal(t, 1, env.notifier.count())
}

func TestMissingTargetIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	res := submit(t, env, newHomePayload())

	// turn the new-record draft into a change against a record that does not exist
	draft := env.draft(t, res.Draft.Number)
	draft.RegistrationType = model.RegTypeExemption
	missing := "999999"
	draft.TargetRecordNumber = &missing
	require.NoError(t, env.store.UpdateDraft(context.Background(), draft))

	_, err := callback(env, res.InvoiceID, "PAID")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apierror.MapErrorToHTTPStatus(err))
}

func TestReportDispatchFailureDoesNotFailFinalization(t *testing.T) {
	env := newTestEnv(t)
	env.enqueuer.err = errors.New("redis unavailable")
	res := submit(t, env, newHomePayload())

	state, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
	assert.Len(t, env.store.Registrations(), 1)

	events, err := env.regpay.GetPaymentEvents(context.Background(), res.InvoiceID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.EventReportDispatchFailed, last.Type)
	assert.Equal(t, model.DefaultErrorCode, last.StatusCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ReportDispatch.WithLabelValues("failed")))
}

func TestCallbackFallsBackToDraftLookupWithoutIntent(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn(memory.OpRecordPaymentIntent, errors.New("insert failed"))
	res := submit(t, env, newHomePayload())

	_, err := env.store.GetPaymentIntent(context.Background(), res.InvoiceID)
	require.Error(t, err)

	state, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
	assert.Len(t, env.store.Registrations(), 1)
}

func TestStaleInvoiceForResubmittedDraftIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	first := submit(t, env, newHomePayload())
	_, err := callback(env, first.InvoiceID, "CANCELLED")
	require.NoError(t, err)

	second, err := env.regpay.SubmitRegistration(context.Background(), RegistrationRequest{DraftNumber: first.Draft.BaseNumber})
	require.NoError(t, err)
	require.NotEqual(t, first.InvoiceID, second.InvoiceID)

	state, err := callback(env, first.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackNew, state)
	assert.Empty(t, env.store.Registrations())

	state, err = callback(env, second.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, redlock.ErrLockHeld
}

type countingLocks struct {
	acquired, released int
	err                error
}

func (c *countingLocks) Acquire(context.Context, string) (func(context.Context) error, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.acquired++
	return func(context.Context) error {
		c.released++
		return nil
	}, nil
}

func TestCallbackLockHeldIsConflict(t *testing.T) {
	env := newTestEnv(t, WithCallbackLocks(heldLocks{}))
	res := submit(t, env, newHomePayload())

	_, err := callback(env, res.InvoiceID, "PAID")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apierror.MapErrorToHTTPStatus(err))
	assert.Equal(t, model.DraftStatePending, env.draft(t, res.Draft.Number).State)
}

func TestCallbackLockIsReleased(t *testing.T) {
	locks := &countingLocks{}
	env := newTestEnv(t, WithCallbackLocks(locks))
	res := submit(t, env, newHomePayload())

	_, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestCallbackProceedsWhenLockStoreIsDown(t *testing.T) {
	env := newTestEnv(t, WithCallbackLocks(&countingLocks{err: errors.New("dial tcp: connection refused")}))
	res := submit(t, env, newHomePayload())

	state, err := callback(env, res.InvoiceID, "PAID")
	require.NoError(t, err)
	assert.Equal(t, model.CallbackResolved, state)
}

func TestMissingInvoiceIDIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	_, err := callback(env, "  ", "PAID")
	assert.True(t, apierror.Is(err, apierror.ErrBadRequest))
}
