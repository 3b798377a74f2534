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
	"database/sql"
	"errors"
	"time"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/lib/pq"
)

// RecordPaymentIntent registers what an invoice pays for. An invoice can only
// ever pay for one subject.
func (d Datasource) RecordPaymentIntent(ctx context.Context, intent *model.PaymentIntent) error {
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO regpay.payment_intents (invoice_id, subject_kind, subject_ref, account_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, intent.InvoiceID, intent.SubjectKind, intent.SubjectRef, nullString(intent.AccountID), intent.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "Invoice is already registered", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payment intent", err)
	}
	return nil
}

func (d Datasource) GetPaymentIntent(ctx context.Context, invoiceID string) (*model.PaymentIntent, error) {
	intent := model.PaymentIntent{}
	var accountID sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT invoice_id, subject_kind, subject_ref, account_id, created_at
		FROM regpay.payment_intents
		WHERE invoice_id = $1
	`, invoiceID).Scan(&intent.InvoiceID, &intent.SubjectKind, &intent.SubjectRef, &accountID, &intent.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment intent not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment intent", err)
	}
	intent.AccountID = accountID.String
	return &intent, nil
}
