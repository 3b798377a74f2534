package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
)

func (d Datasource) CreateSearch(ctx context.Context, search *model.SearchRequest) (*model.SearchRequest, error) {
	queryJSON, err := json.Marshal(search.Query)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal search query", err)
	}
	now := time.Now()
	search.CreatedAt = now
	search.UpdatedAt = now

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO regpay.search_requests (search_id, account_id, query, status, invoice_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, search.SearchID, search.AccountID, queryJSON, search.Status, nullString(search.InvoiceID),
		search.CreatedAt, search.UpdatedAt).Scan(&search.ID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create search request", err)
	}
	return search, nil
}

func (d Datasource) GetSearchByInvoice(ctx context.Context, invoiceID string) (*model.SearchRequest, error) {
	search := model.SearchRequest{}
	var queryJSON []byte
	var invoice sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, search_id, account_id, query, status, invoice_id, created_at, updated_at
		FROM regpay.search_requests
		WHERE invoice_id = $1
	`, invoiceID).Scan(&search.ID, &search.SearchID, &search.AccountID, &queryJSON, &search.Status, &invoice,
		&search.CreatedAt, &search.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Search request not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve search request", err)
	}
	search.InvoiceID = invoice.String
	if err := json.Unmarshal(queryJSON, &search.Query); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal search query", err)
	}
	return &search, nil
}

func (d Datasource) SetSearchInvoice(ctx context.Context, searchID, invoiceID string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE regpay.search_requests
		SET invoice_id = $1, updated_at = NOW()
		WHERE search_id = $2
	`, invoiceID, searchID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to attach invoice to search", err)
	}
	if err := affectedOne(res); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return apierror.NewAPIError(apierror.ErrNotFound, "Search request not found", err)
		}
		return err
	}
	return nil
}

// TransitionSearch moves a search from one status to another. Like draft
// transitions, it returns ErrAlreadyResolved when the search has already moved on.
func (d Datasource) TransitionSearch(ctx context.Context, searchID, from, to string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE regpay.search_requests
		SET status = $1, updated_at = NOW()
		WHERE search_id = $2 AND status = $3
	`, to, searchID, from)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update search status", err)
	}
	return affectedOne(res)
}
