package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var draftRowColumns = []string{"base_number", "draft_number", "state", "family", "registration_type", "payload",
	"account_id", "user_id", "invoice_id", "target_record_number", "created_at", "updated_at"}

func TestCreateDraft_Success(t *testing.T) {
	ds, mock := newMockDatasource(t)

	draft := &model.Draft{
		BaseNumber:       "D0000007",
		State:            model.DraftStateDraft,
		Family:           model.FamilyMHR,
		RegistrationType: model.RegTypeMHRegistration,
		Payload:          map[string]interface{}{"registration_type": "MHREG"},
		AccountID:        gofakeit.UUID(),
	}

	mock.ExpectExec("INSERT INTO regpay.drafts").
		WithArgs("D0000007", "D0000007", model.DraftStateDraft, model.FamilyMHR, model.RegTypeMHRegistration,
			sqlmock.AnyArg(), draft.AccountID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateDraft(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, "D0000007", created.Number)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDraft_UniqueViolation(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO regpay.drafts").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err := ds.CreateDraft(context.Background(), &model.Draft{BaseNumber: "D0000007", State: model.DraftStateDraft})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDraftByNumber_NormalizesPrefix(t *testing.T) {
	ds, mock := newMockDatasource(t)

	payload, _ := json.Marshal(map[string]interface{}{"registration_type": "TRANS", "priorStatus": "ACTIVE"})
	now := time.Now()
	rows := sqlmock.NewRows(draftRowColumns).
		AddRow("D0000012", "PD0000012", "PENDING", "MHR", "TRANS", payload, "acct-1", nil, "9001", "100200", now, now)

	mock.ExpectQuery("SELECT (.+) FROM regpay.drafts WHERE base_number = \\$1").
		WithArgs("D0000012").
		WillReturnRows(rows)

	draft, err := ds.GetDraftByNumber(context.Background(), "pd0000012")
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatePending, draft.State)
	assert.Equal(t, "9001", draft.InvoiceID)
	assert.Empty(t, draft.UserID)
	require.NotNil(t, draft.TargetRecordNumber)
	assert.Equal(t, "100200", *draft.TargetRecordNumber)
	prior, ok := draft.PriorStatus()
	assert.True(t, ok)
	assert.Equal(t, model.StatusActive, prior)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDraftByNumber_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT (.+) FROM regpay.drafts").
		WithArgs("D0000404").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetDraftByNumber(context.Background(), "D0000404")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDraftByInvoice(t *testing.T) {
	ds, mock := newMockDatasource(t)

	now := time.Now()
	rows := sqlmock.NewRows(draftRowColumns).
		AddRow("D0000003", "SRD0000003", "STAFF_REVIEW", "PPR", "SA", []byte(`{}`), "acct-1", "user-1", "9002", nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM regpay.drafts WHERE invoice_id = \\$1 ORDER BY updated_at DESC LIMIT 1").
		WithArgs("9002").
		WillReturnRows(rows)

	draft, err := ds.GetDraftByInvoice(context.Background(), "9002")
	require.NoError(t, err)
	assert.Equal(t, model.DraftStateStaffReview, draft.State)
	assert.Nil(t, draft.TargetRecordNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDraft_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("UPDATE regpay.drafts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateDraft(context.Background(), &model.Draft{BaseNumber: "D0000404", State: model.DraftStateDraft})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionDraft(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		execErr     error
		expectedErr error
	}{
		{name: "Applies from expected state", affected: 1},
		{name: "Already moved on", affected: 0, expectedErr: ErrAlreadyResolved},
		{name: "Driver failure", execErr: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, mock := newMockDatasource(t)
			draft := &model.Draft{BaseNumber: "D0000005", Payload: map[string]interface{}{}}
			draft.SetState(model.DraftStateCompleted)

			exp := mock.ExpectExec("UPDATE regpay.drafts SET (.+) WHERE base_number = \\$6 AND state = \\$7").
				WithArgs("D0000005", model.DraftStateCompleted, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					"D0000005", model.DraftStatePending)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.affected))
			}

			err := ds.TransitionDraft(context.Background(), draft, model.DraftStatePending)
			switch {
			case tt.execErr != nil:
				assert.True(t, apierror.Is(err, apierror.ErrInternalServer))
			case tt.expectedErr != nil:
				assert.ErrorIs(t, err, tt.expectedErr)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteDraft(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("DELETE FROM regpay.drafts").
		WithArgs("D0000009").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, ds.DeleteDraft(context.Background(), "PD0000009"))

	mock.ExpectExec("DELETE FROM regpay.drafts").
		WithArgs("D0000010").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := ds.DeleteDraft(context.Background(), "D0000010")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}
