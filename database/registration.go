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
	"fmt"
	"time"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/lib/pq"
)

// CommitRegistration persists a finalized registration in a single transaction:
// the draft resolution, the target status, superseded children and the new
// registration with its children. The draft transition is conditional, so a
// duplicate commit for the same draft returns ErrAlreadyResolved and changes nothing.
func (d Datasource) CommitRegistration(ctx context.Context, commit *model.RegistrationCommit) error {
	reg := commit.Registration
	if reg == nil || commit.Draft == nil || commit.Target == nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Incomplete registration commit", nil)
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := transitionDraft(ctx, tx, commit.Draft, commit.DraftFrom); err != nil {
			return err
		}

		if err := writeTarget(ctx, tx, commit); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.registrations (registration_id, registration_number, record_number, family,
				registration_type, document_id, draft_number, account_id, invoice_id, client_reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, reg.RegistrationID, reg.RegistrationNumber, reg.RecordNumber, reg.Family, reg.RegistrationType,
			reg.DocumentID, reg.DraftNumber, reg.AccountID, nullString(reg.InvoiceID), nullString(reg.ClientReference),
			reg.CreatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return ErrAlreadyResolved
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert registration", err)
		}

		if err := supersedeChildren(ctx, tx, commit); err != nil {
			return err
		}
		return insertChildren(ctx, tx, reg)
	})
}

func writeTarget(ctx context.Context, tx *sql.Tx, commit *model.RegistrationCommit) error {
	target := commit.Target
	if commit.NewTarget {
		target.Version = 1
		target.UpdatedAt = time.Now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.target_records (record_number, family, status, account_id, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, target.RecordNumber, target.Family, target.Status, nullString(target.AccountID), target.Version, target.UpdatedAt)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create target record", err)
		}
		return nil
	}
	err := unlockTarget(ctx, tx, target.RecordNumber, target.Status)
	if errors.Is(err, ErrAlreadyResolved) {
		return fmt.Errorf("%w: %s", ErrTargetNotLocked, target.RecordNumber)
	}
	return err
}

func supersedeChildren(ctx context.Context, tx *sql.Tx, commit *model.RegistrationCommit) error {
	reg := commit.Registration
	if len(commit.SupersededGroups) > 0 {
		_, err := tx.ExecContext(ctx, `
			UPDATE regpay.owner_groups
			SET status = $1, change_registration_id = $2
			WHERE record_number = $3 AND status = $4 AND group_id = ANY($5)
		`, model.ChildStatusPrevious, reg.RegistrationID, reg.RecordNumber, model.ChildStatusActive,
			pq.Array(commit.SupersededGroups))
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to supersede owner groups", err)
		}
	}
	if len(commit.SupersededCollateral) > 0 {
		_, err := tx.ExecContext(ctx, `
			UPDATE regpay.collateral
			SET status = $1, change_registration_id = $2
			WHERE record_number = $3 AND status = $4 AND collateral_id = ANY($5)
		`, model.ChildStatusPrevious, reg.RegistrationID, reg.RecordNumber, model.ChildStatusActive,
			pq.Array(commit.SupersededCollateral))
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to supersede collateral", err)
		}
	}
	if commit.SupersedeLocations {
		_, err := tx.ExecContext(ctx, `
			UPDATE regpay.locations
			SET status = $1, change_registration_id = $2
			WHERE record_number = $3 AND status = $4
		`, model.ChildStatusPrevious, reg.RegistrationID, reg.RecordNumber, model.ChildStatusActive)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to supersede locations", err)
		}
	}
	return nil
}

func insertChildren(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	insertParty := func(p model.Party, groupID sql.NullInt64) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.parties (registration_id, record_number, party_type, business_name, first_name,
				last_name, email, address, group_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, reg.RegistrationID, reg.RecordNumber, p.PartyType, nullString(p.BusinessName), nullString(p.FirstName),
			nullString(p.LastName), nullString(p.Email), nullString(p.Address), groupID)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert party", err)
		}
		return nil
	}

	for _, p := range reg.Parties {
		if err := insertParty(p, sql.NullInt64{}); err != nil {
			return err
		}
	}

	for _, doc := range reg.Documents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.documents (registration_id, document_id, document_type, description)
			VALUES ($1, $2, $3, $4)
		`, reg.RegistrationID, doc.DocumentID, doc.DocumentType, nullString(doc.Description))
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert document", err)
		}
	}

	for _, g := range reg.OwnerGroups {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.owner_groups (registration_id, record_number, group_id, tenancy_type, interest, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, reg.RegistrationID, reg.RecordNumber, g.GroupID, g.TenancyType, nullString(g.Interest), g.Status)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert owner group", err)
		}
		for _, owner := range g.Owners {
			if err := insertParty(owner, sql.NullInt64{Int64: int64(g.GroupID), Valid: true}); err != nil {
				return err
			}
		}
	}

	for _, loc := range reg.Locations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.locations (registration_id, record_number, location_type, address, park_name, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, reg.RegistrationID, reg.RecordNumber, loc.LocationType, loc.Address, nullString(loc.ParkName), loc.Status)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert location", err)
		}
	}

	if desc := reg.Description; desc != nil {
		serials, err := json.Marshal(desc.SerialNumbers)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal serial numbers", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO regpay.descriptions (registration_id, record_number, manufacturer, model, year_made, serial_numbers)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, reg.RegistrationID, reg.RecordNumber, desc.Manufacturer, nullString(desc.Model), desc.YearMade, serials)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert description", err)
		}
	}

	for _, c := range reg.Collateral {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO regpay.collateral (registration_id, record_number, collateral_id, kind, description,
				serial_number, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, reg.RegistrationID, reg.RecordNumber, c.CollateralID, c.Kind, nullString(c.Description),
			nullString(c.SerialNumber), c.Status)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert collateral", err)
		}
	}
	return nil
}

// RevertDraft undoes a pending payment: the target goes back to its stashed
// status and the draft is persisted in its reverted form, both in one
// transaction. A target that is no longer locked is left alone. The draft
// transition is conditional on from, so a repeated revert returns ErrAlreadyResolved.
func (d Datasource) RevertDraft(ctx context.Context, draft *model.Draft, from model.DraftState, target *model.TargetRecord) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := transitionDraft(ctx, tx, draft, from); err != nil {
			return err
		}
		if target == nil {
			return nil
		}
		err := unlockTarget(ctx, tx, target.RecordNumber, target.Status)
		if err != nil && !errors.Is(err, ErrAlreadyResolved) {
			return err
		}
		return nil
	})
}

// GetRegistrationByNumber retrieves a registration and the children it created.
func (d Datasource) GetRegistrationByNumber(ctx context.Context, number string) (*model.Registration, error) {
	reg := model.Registration{}
	var invoiceID, clientRef sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT registration_id, registration_number, record_number, family, registration_type, document_id,
			draft_number, account_id, invoice_id, client_reference, created_at
		FROM regpay.registrations
		WHERE registration_number = $1
	`, number).Scan(&reg.RegistrationID, &reg.RegistrationNumber, &reg.RecordNumber, &reg.Family,
		&reg.RegistrationType, &reg.DocumentID, &reg.DraftNumber, &reg.AccountID, &invoiceID, &clientRef, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Registration not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve registration", err)
	}
	reg.InvoiceID = invoiceID.String
	reg.ClientReference = clientRef.String

	if err := d.loadRegistrationChildren(ctx, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d Datasource) loadRegistrationChildren(ctx context.Context, reg *model.Registration) error {
	owners := map[int][]model.Party{}
	partyRows, err := d.Conn.QueryContext(ctx, `
		SELECT party_type, business_name, first_name, last_name, email, address, group_id
		FROM regpay.parties
		WHERE registration_id = $1
		ORDER BY id
	`, reg.RegistrationID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve parties", err)
	}
	defer partyRows.Close()
	for partyRows.Next() {
		var business, first, last, email, address sql.NullString
		var groupID sql.NullInt64
		p := model.Party{}
		if err := partyRows.Scan(&p.PartyType, &business, &first, &last, &email, &address, &groupID); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan party", err)
		}
		p.BusinessName, p.FirstName, p.LastName = business.String, first.String, last.String
		p.Email, p.Address = email.String, address.String
		if groupID.Valid {
			p.GroupID = int(groupID.Int64)
			owners[p.GroupID] = append(owners[p.GroupID], p)
			continue
		}
		reg.Parties = append(reg.Parties, p)
	}
	if err := partyRows.Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over parties", err)
	}

	docRows, err := d.Conn.QueryContext(ctx, `
		SELECT document_id, document_type, description
		FROM regpay.documents
		WHERE registration_id = $1
	`, reg.RegistrationID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve documents", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		doc := model.Document{}
		var description sql.NullString
		if err := docRows.Scan(&doc.DocumentID, &doc.DocumentType, &description); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan document", err)
		}
		doc.Description = description.String
		reg.Documents = append(reg.Documents, doc)
	}
	if err := docRows.Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over documents", err)
	}

	groupRows, err := d.Conn.QueryContext(ctx, `
		SELECT group_id, tenancy_type, interest, status
		FROM regpay.owner_groups
		WHERE registration_id = $1
		ORDER BY group_id
	`, reg.RegistrationID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve owner groups", err)
	}
	defer groupRows.Close()
	for groupRows.Next() {
		g := model.OwnerGroup{}
		var interest sql.NullString
		if err := groupRows.Scan(&g.GroupID, &g.TenancyType, &interest, &g.Status); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan owner group", err)
		}
		g.Interest = interest.String
		g.Owners = owners[g.GroupID]
		reg.OwnerGroups = append(reg.OwnerGroups, g)
	}
	if err := groupRows.Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over owner groups", err)
	}

	locRows, err := d.Conn.QueryContext(ctx, `
		SELECT location_type, address, park_name, status
		FROM regpay.locations
		WHERE registration_id = $1
	`, reg.RegistrationID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve locations", err)
	}
	defer locRows.Close()
	for locRows.Next() {
		loc := model.Location{}
		var parkName sql.NullString
		if err := locRows.Scan(&loc.LocationType, &loc.Address, &parkName, &loc.Status); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan location", err)
		}
		loc.ParkName = parkName.String
		reg.Locations = append(reg.Locations, loc)
	}
	if err := locRows.Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over locations", err)
	}

	desc := model.Description{}
	var descModel sql.NullString
	var yearMade sql.NullInt64
	var serials []byte
	err = d.Conn.QueryRowContext(ctx, `
		SELECT manufacturer, model, year_made, serial_numbers
		FROM regpay.descriptions
		WHERE registration_id = $1
	`, reg.RegistrationID).Scan(&desc.Manufacturer, &descModel, &yearMade, &serials)
	switch {
	case err == nil:
		desc.Model = descModel.String
		desc.YearMade = int(yearMade.Int64)
		if len(serials) > 0 {
			if err := json.Unmarshal(serials, &desc.SerialNumbers); err != nil {
				return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal serial numbers", err)
			}
		}
		reg.Description = &desc
	case !errors.Is(err, sql.ErrNoRows):
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve description", err)
	}

	colRows, err := d.Conn.QueryContext(ctx, `
		SELECT collateral_id, kind, description, serial_number, status
		FROM regpay.collateral
		WHERE registration_id = $1
		ORDER BY collateral_id
	`, reg.RegistrationID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve collateral", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		c := model.Collateral{}
		var description, serial sql.NullString
		if err := colRows.Scan(&c.CollateralID, &c.Kind, &description, &serial, &c.Status); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan collateral", err)
		}
		c.Description = description.String
		c.SerialNumber = serial.String
		reg.Collateral = append(reg.Collateral, c)
	}
	if err := colRows.Err(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over collateral", err)
	}
	return nil
}
