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
	"log"
	"sync"

	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/internal/apierror"
	_ "github.com/lib/pq"
)

// ErrAlreadyResolved is returned when a conditional state transition finds the
// subject no longer in the expected state. Callers treat it as a no-op.
var ErrAlreadyResolved = errors.New("subject already resolved")

// ErrTargetNotLocked is returned when a change registration commits against a
// target that was released while its payment was outstanding. Unlike
// ErrAlreadyResolved it is a failure: the draft is still pending and needs staff.
var ErrTargetNotLocked = errors.New("target record is no longer locked")

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

// NewDataSource returns the process-wide Postgres datasource, connecting on first use.
//
// Parameters:
// - configuration *config.Configuration: Supplies the DSN and pool sizes.
//
// Returns:
// - IDataSource: The datasource used by the service.
// - error: An error if the connection could not be established.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		con.SetMaxOpenConns(configuration.DataSource.MaxOpenConns)
		con.SetMaxIdleConns(configuration.DataSource.MaxIdleConns)
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens and pings a Postgres connection pool.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// withTx runs fn inside a transaction, rolling back on any error.
func (d Datasource) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// affectedOne turns a zero-row conditional update into ErrAlreadyResolved.
func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}
