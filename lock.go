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
	"github.com/sirupsen/logrus"
)

// LockTarget locks the record a change draft applies to and stashes the
// pre-lock status in the draft payload. The caller persists the draft. Drafts
// that create a new record have nothing to lock and get a nil target.
func (r *Regpay) LockTarget(ctx context.Context, draft *model.Draft) (*model.TargetRecord, error) {
	if draft.TargetRecordNumber == nil || draft.RegistrationType.NewRecord() {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "Locking target record")
	defer span.End()

	prior, err := r.datasource.LockTarget(ctx, *draft.TargetRecordNumber)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if prior.Family != draft.Family {
		r.UnlockTarget(ctx, prior.RecordNumber, prior.Status)
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Target record belongs to a different registry", nil)
	}

	draft.StashPriorStatus(prior.Status)
	return prior, nil
}

// UnlockTarget restores status on a locked target. A target that is no longer
// locked is left alone.
func (r *Regpay) UnlockTarget(ctx context.Context, recordNumber, status string) {
	err := r.datasource.UnlockTarget(ctx, recordNumber, status)
	if err == nil || errors.Is(err, database.ErrAlreadyResolved) {
		return
	}
	// the target stays locked; staff must release it by hand
	logrus.WithFields(logrus.Fields{
		"record_number": recordNumber,
		"status":        status,
	}).WithError(err).Error("failed to unlock target record")
	r.notifier.NotifyError(err)
}
