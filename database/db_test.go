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
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db}, mock
}

func TestGetDBConnection_Failure(t *testing.T) {
	instance = nil
	once = sync.Once{}

	mockConfig := &config.Configuration{
		DataSource: config.DataSourceConfig{
			Dns: "invalid-dns",
		},
	}

	_, err := GetDBConnection(mockConfig)
	assert.Error(t, err)
}

func TestConnectDB_Failure(t *testing.T) {
	db, err := ConnectDB("invalid-dns")
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE regpay.drafts").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := ds.withTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE regpay.drafts SET state = 'DRAFT'")
		return err
	})
	assert.EqualError(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitFailure(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err := ds.withTx(context.Background(), func(tx *sql.Tx) error { return nil })
	require.Error(t, err)
	var apiErr apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAffectedOne(t *testing.T) {
	assert.NoError(t, affectedOne(sqlmock.NewResult(0, 1)))
	assert.ErrorIs(t, affectedOne(sqlmock.NewResult(0, 0)), ErrAlreadyResolved)
	assert.Error(t, affectedOne(sqlmock.NewErrorResult(errors.New("driver does not support RowsAffected"))))
}

func TestNextID(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT nextval").
		WithArgs(string(SeqDraftNumber)).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))

	id, err := ds.NextID(context.Background(), SeqDraftNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	mock.ExpectQuery("SELECT nextval").
		WithArgs(string(SeqRegistrationID)).
		WillReturnError(errors.New("relation does not exist"))

	_, err = ds.NextID(context.Background(), SeqRegistrationID)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
