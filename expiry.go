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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// scheduleStaleCheck arranges for HandleStalePayment to look at the invoice
// once the stale window has passed. It is a no-op when the watch is off.
func (r *Regpay) scheduleStaleCheck(ctx context.Context, invoiceID, draftNumber string) {
	if r.staleAfter <= 0 || r.queue == nil {
		return
	}
	err := r.queue.queueStalePaymentCheck(ctx, StalePaymentTask{InvoiceID: invoiceID, DraftNumber: draftNumber}, r.staleAfter)
	if err != nil {
		logrus.WithField("invoice_id", invoiceID).WithError(err).Warn("failed to schedule stale payment check")
	}
}

// HandleStalePayment alerts staff about a draft whose payment never resolved.
// It only reports; the target stays locked until the provider calls back or
// staff revert the draft.
func (r *Regpay) HandleStalePayment(ctx context.Context, t *asynq.Task) error {
	var task StalePaymentTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logrus.Error(err)
		return fmt.Errorf("decode stale payment task: %v: %w", err, asynq.SkipRetry)
	}

	draft, err := r.datasource.GetDraftByNumber(ctx, task.DraftNumber)
	if apierror.Is(err, apierror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if draft.State != model.DraftStatePending || draft.InvoiceID != task.InvoiceID {
		return nil
	}

	msg := fmt.Sprintf("draft %s still pending payment after %s", draft.Number, time.Since(draft.UpdatedAt).Round(time.Minute))
	r.track(ctx, task.InvoiceID, model.EventPaymentStale, http.StatusOK, msg)
	r.notifier.NotifyError(fmt.Errorf("payment %s is stale: %s", task.InvoiceID, msg))
	return nil
}
