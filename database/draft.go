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
	"encoding/json"
	"errors"
	"time"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/lib/pq"
)

const draftColumns = `base_number, draft_number, state, family, registration_type, payload, account_id,
		user_id, invoice_id, target_record_number, created_at, updated_at`

// CreateDraft inserts a new draft. The caller allocates the base number.
func (d Datasource) CreateDraft(ctx context.Context, draft *model.Draft) (*model.Draft, error) {
	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal draft payload", err)
	}

	now := time.Now()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	draft.Number = model.DisplayNumber(draft.State, draft.BaseNumber)

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO regpay.drafts (base_number, draft_number, state, family, registration_type, payload, account_id,
			user_id, invoice_id, target_record_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, draft.BaseNumber, draft.Number, draft.State, draft.Family, draft.RegistrationType, payloadJSON, draft.AccountID,
		draft.UserID, nullString(draft.InvoiceID), draft.TargetRecordNumber, draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft with this number already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create draft", err)
	}
	return draft, nil
}

// GetDraftByNumber retrieves a draft by number. The payment state prefix is not
// part of the identity, so "PD0000001" and "D0000001" find the same draft.
func (d Datasource) GetDraftByNumber(ctx context.Context, number string) (*model.Draft, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM regpay.drafts
		WHERE base_number = $1
	`, model.NormalizeDraftNumber(number))
	return scanDraft(row)
}

// GetDraftByInvoice retrieves the most recent draft paid for by invoiceID.
func (d Datasource) GetDraftByInvoice(ctx context.Context, invoiceID string) (*model.Draft, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM regpay.drafts
		WHERE invoice_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, invoiceID)
	return scanDraft(row)
}

// UpdateDraft overwrites the mutable fields of a draft unconditionally.
func (d Datasource) UpdateDraft(ctx context.Context, draft *model.Draft) error {
	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal draft payload", err)
	}
	draft.UpdatedAt = time.Now()
	draft.Number = model.DisplayNumber(draft.State, draft.BaseNumber)

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE regpay.drafts
		SET draft_number = $1, state = $2, registration_type = $3, payload = $4, invoice_id = $5,
			target_record_number = $6, updated_at = $7
		WHERE base_number = $8
	`, draft.Number, draft.State, draft.RegistrationType, payloadJSON, nullString(draft.InvoiceID),
		draft.TargetRecordNumber, draft.UpdatedAt, draft.BaseNumber)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update draft", err)
	}
	if err := affectedOne(res); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", err)
		}
		return err
	}
	return nil
}

// TransitionDraft persists the draft only if its stored state is still from.
// It returns ErrAlreadyResolved when another delivery got there first.
func (d Datasource) TransitionDraft(ctx context.Context, draft *model.Draft, from model.DraftState) error {
	return transitionDraft(ctx, d.Conn, draft, from)
}

func transitionDraft(ctx context.Context, conn execer, draft *model.Draft, from model.DraftState) error {
	payloadJSON, err := json.Marshal(draft.Payload)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal draft payload", err)
	}
	draft.UpdatedAt = time.Now()
	draft.Number = model.DisplayNumber(draft.State, draft.BaseNumber)

	res, err := conn.ExecContext(ctx, `
		UPDATE regpay.drafts
		SET draft_number = $1, state = $2, payload = $3, invoice_id = $4, updated_at = $5
		WHERE base_number = $6 AND state = $7
	`, draft.Number, draft.State, payloadJSON, nullString(draft.InvoiceID), draft.UpdatedAt, draft.BaseNumber, from)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update draft state", err)
	}
	return affectedOne(res)
}

// DeleteDraft removes a draft by number.
func (d Datasource) DeleteDraft(ctx context.Context, number string) error {
	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM regpay.drafts
		WHERE base_number = $1
	`, model.NormalizeDraftNumber(number))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete draft", err)
	}
	if err := affectedOne(res); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", err)
		}
		return err
	}
	return nil
}

func scanDraft(row *sql.Row) (*model.Draft, error) {
	draft := model.Draft{}
	var payloadJSON []byte
	var userID, invoiceID, target sql.NullString
	err := row.Scan(&draft.BaseNumber, &draft.Number, &draft.State, &draft.Family, &draft.RegistrationType, &payloadJSON,
		&draft.AccountID, &userID, &invoiceID, &target, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve draft", err)
	}
	draft.UserID = userID.String
	draft.InvoiceID = invoiceID.String
	if target.Valid {
		draft.TargetRecordNumber = &target.String
	}
	if err := json.Unmarshal(payloadJSON, &draft.Payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal draft payload", err)
	}
	return &draft, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
