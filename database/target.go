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

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
)

// GetTarget retrieves the record a change registration applies to.
func (d Datasource) GetTarget(ctx context.Context, recordNumber string) (*model.TargetRecord, error) {
	target := model.TargetRecord{}
	var accountID sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT record_number, family, status, account_id, version, updated_at
		FROM regpay.target_records
		WHERE record_number = $1
	`, recordNumber).Scan(&target.RecordNumber, &target.Family, &target.Status, &accountID, &target.Version, &target.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Target record not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve target record", err)
	}
	target.AccountID = accountID.String
	return &target, nil
}

// LockTarget moves a target to the locked status and returns the record as it
// was before the lock. The update only applies when the target is not already
// locked, so a second in-flight change is rejected with a conflict instead of
// overwriting the stashed prior status.
func (d Datasource) LockTarget(ctx context.Context, recordNumber string) (*model.TargetRecord, error) {
	prior := model.TargetRecord{RecordNumber: recordNumber}
	var accountID sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE regpay.target_records t
		SET status = $2, version = t.version + 1, updated_at = NOW()
		FROM (
			SELECT record_number, status, version
			FROM regpay.target_records
			WHERE record_number = $1
			FOR UPDATE
		) prev
		WHERE t.record_number = prev.record_number AND prev.status <> $2
		RETURNING prev.status, t.family, t.account_id, prev.version, t.updated_at
	`, recordNumber, model.StatusLocked).Scan(&prior.Status, &prior.Family, &accountID, &prior.Version, &prior.UpdatedAt)
	if err == nil {
		prior.AccountID = accountID.String
		return &prior, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock target record", err)
	}

	// Nothing updated: either the record does not exist or a change is already in flight.
	if _, getErr := d.GetTarget(ctx, recordNumber); getErr != nil {
		return nil, getErr
	}
	return nil, apierror.NewAPIError(apierror.ErrConflict, "Target record has a change in progress", nil)
}

// UnlockTarget restores status on a locked target. It is a no-op returning
// ErrAlreadyResolved if the target is no longer locked.
func (d Datasource) UnlockTarget(ctx context.Context, recordNumber, status string) error {
	return unlockTarget(ctx, d.Conn, recordNumber, status)
}

func unlockTarget(ctx context.Context, conn execer, recordNumber, status string) error {
	res, err := conn.ExecContext(ctx, `
		UPDATE regpay.target_records
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE record_number = $2 AND status = $3
	`, status, recordNumber, model.StatusLocked)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unlock target record", err)
	}
	return affectedOne(res)
}

// GetActiveChildren loads the current owner groups, locations and collateral of a target.
func (d Datasource) GetActiveChildren(ctx context.Context, recordNumber string) (*model.Children, error) {
	children := &model.Children{}

	groups, err := d.getActiveOwnerGroups(ctx, recordNumber)
	if err != nil {
		return nil, err
	}
	children.OwnerGroups = groups

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT location_type, address, park_name, status
		FROM regpay.locations
		WHERE record_number = $1 AND status = $2
	`, recordNumber, model.ChildStatusActive)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve locations", err)
	}
	defer rows.Close()
	for rows.Next() {
		loc := model.Location{}
		var parkName sql.NullString
		if err := rows.Scan(&loc.LocationType, &loc.Address, &parkName, &loc.Status); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan location", err)
		}
		loc.ParkName = parkName.String
		children.Locations = append(children.Locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over locations", err)
	}

	colRows, err := d.Conn.QueryContext(ctx, `
		SELECT collateral_id, kind, description, serial_number, status
		FROM regpay.collateral
		WHERE record_number = $1 AND status = $2
		ORDER BY collateral_id
	`, recordNumber, model.ChildStatusActive)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve collateral", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		c := model.Collateral{}
		var description, serial sql.NullString
		if err := colRows.Scan(&c.CollateralID, &c.Kind, &description, &serial, &c.Status); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan collateral", err)
		}
		c.Description = description.String
		c.SerialNumber = serial.String
		children.Collateral = append(children.Collateral, c)
	}
	if err := colRows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over collateral", err)
	}

	return children, nil
}

func (d Datasource) getActiveOwnerGroups(ctx context.Context, recordNumber string) ([]model.OwnerGroup, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT g.group_id, g.tenancy_type, g.interest, g.status,
			p.party_type, p.business_name, p.first_name, p.last_name, p.email, p.address
		FROM regpay.owner_groups g
		LEFT JOIN regpay.parties p ON p.registration_id = g.registration_id AND p.group_id = g.group_id
		WHERE g.record_number = $1 AND g.status = $2
		ORDER BY g.group_id
	`, recordNumber, model.ChildStatusActive)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve owner groups", err)
	}
	defer rows.Close()

	var groups []model.OwnerGroup
	index := map[int]int{}
	for rows.Next() {
		g := model.OwnerGroup{}
		var interest, partyType, business, first, last, email, address sql.NullString
		if err := rows.Scan(&g.GroupID, &g.TenancyType, &interest, &g.Status,
			&partyType, &business, &first, &last, &email, &address); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan owner group", err)
		}
		g.Interest = interest.String

		pos, seen := index[g.GroupID]
		if !seen {
			groups = append(groups, g)
			pos = len(groups) - 1
			index[g.GroupID] = pos
		}
		if partyType.Valid {
			groups[pos].Owners = append(groups[pos].Owners, model.Party{
				PartyType:    partyType.String,
				BusinessName: business.String,
				FirstName:    first.String,
				LastName:     last.String,
				Email:        email.String,
				Address:      address.String,
				GroupID:      g.GroupID,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over owner groups", err)
	}
	return groups, nil
}
