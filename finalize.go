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
	"fmt"
	"net/http"

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// finalize turns a paid draft into a registration. Everything is committed in
// one transaction; on failure the target stays locked and the draft keeps its
// state so a redelivered notification can finish the job.
func (r *Regpay) finalize(ctx context.Context, draft *model.Draft, from model.DraftState) (*model.Registration, error) {
	ctx, span := tracer.Start(ctx, "Finalizing registration")
	defer span.End()

	sub, err := decodeSubmission(draft.Payload)
	if err != nil {
		return nil, err
	}

	snapshot, err := r.targetSnapshot(ctx, draft)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	reg, err := r.allocateRegistration(ctx, draft, snapshot)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	commit, err := buildCommit(reg, sub, snapshot)
	if err != nil {
		return nil, err
	}
	draft.ScrubTransient()
	draft.SetState(model.DraftStateCompleted)
	commit.Draft = draft
	commit.DraftFrom = from

	if err := r.datasource.CommitRegistration(ctx, commit); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.AddEvent("Registration committed", trace.WithAttributes(attribute.String("registration.number", reg.RegistrationNumber)))
	logrus.WithFields(logrus.Fields{
		"registration_number": reg.RegistrationNumber,
		"record_number":       reg.RecordNumber,
		"draft_number":        draft.BaseNumber,
		"invoice_id":          reg.InvoiceID,
	}).Info("registration finalized")
	r.track(ctx, reg.InvoiceID, model.EventRegistrationComplete, http.StatusOK, reg.RegistrationNumber)
	r.metrics.IncRegistration(string(reg.RegistrationType))

	kind := ReportKindMHRRegistration
	if reg.Family == model.FamilyPPR {
		kind = ReportKindPPRRegistration
	}
	r.dispatchReport(ctx, ReportTask{
		Kind:               kind,
		InvoiceID:          reg.InvoiceID,
		AccountID:          reg.AccountID,
		RegistrationNumber: reg.RegistrationNumber,
		RecordNumber:       reg.RecordNumber,
		Projection:         Project(reg, snapshot, commit),
	})
	return reg, nil
}

// targetSnapshot reads the state of the target a change applies to, using the
// status stashed when it was locked. New records have no snapshot.
func (r *Regpay) targetSnapshot(ctx context.Context, draft *model.Draft) (*model.Snapshot, error) {
	if draft.RegistrationType.NewRecord() {
		return nil, nil
	}
	if draft.TargetRecordNumber == nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Draft has no target record", nil)
	}

	target, err := r.datasource.GetTarget(ctx, *draft.TargetRecordNumber)
	if err != nil {
		return nil, err
	}
	children, err := r.datasource.GetActiveChildren(ctx, target.RecordNumber)
	if err != nil {
		return nil, err
	}

	prior, _ := draft.PriorStatus()
	return &model.Snapshot{Target: *target, PriorStatus: prior, Children: *children}, nil
}

func (r *Regpay) allocateRegistration(ctx context.Context, draft *model.Draft, snapshot *model.Snapshot) (*model.Registration, error) {
	regID, err := r.datasource.NextID(ctx, database.SeqRegistrationID)
	if err != nil {
		return nil, err
	}
	regNumber, err := r.datasource.NextID(ctx, database.SeqRegistrationNumber)
	if err != nil {
		return nil, err
	}
	docID, err := r.datasource.NextID(ctx, database.SeqDocumentID)
	if err != nil {
		return nil, err
	}

	var recordNumber string
	if snapshot != nil {
		recordNumber = snapshot.Target.RecordNumber
	} else {
		seq := database.SeqMHRNumber
		if draft.Family == model.FamilyPPR {
			seq = database.SeqPPRNumber
		}
		n, err := r.datasource.NextID(ctx, seq)
		if err != nil {
			return nil, err
		}
		recordNumber = model.FormatRecordNumber(draft.Family, n)
	}

	return &model.Registration{
		RegistrationID:     regID,
		RegistrationNumber: model.FormatRegistrationNumber(draft.Family, regNumber),
		RecordNumber:       recordNumber,
		Family:             draft.Family,
		RegistrationType:   draft.RegistrationType,
		DocumentID:         model.FormatDocumentID(docID),
		DraftNumber:        draft.BaseNumber,
		AccountID:          draft.AccountID,
		InvoiceID:          draft.InvoiceID,
	}, nil
}

// buildCommit materializes the submission children onto reg and works out
// which of the current children the registration supersedes.
func buildCommit(reg *model.Registration, sub *model.Submission, snapshot *model.Snapshot) (*model.RegistrationCommit, error) {
	var current model.Children
	if snapshot != nil {
		current = snapshot.Children
	}

	reg.ClientReference = sub.ClientReference
	reg.Parties = append(reg.Parties, sub.Parties...)
	for _, doc := range sub.Documents {
		if doc.DocumentID == "" {
			doc.DocumentID = reg.DocumentID
		}
		reg.Documents = append(reg.Documents, doc)
	}
	if len(reg.Documents) == 0 {
		reg.Documents = []model.Document{{DocumentID: reg.DocumentID, DocumentType: string(reg.RegistrationType)}}
	}

	nextGroup := maxGroupID(current.OwnerGroups)
	for _, g := range sub.OwnerGroups {
		nextGroup++
		g.GroupID = nextGroup
		g.Status = model.ChildStatusActive
		owners := make([]model.Party, 0, len(g.Owners))
		for _, o := range g.Owners {
			o.GroupID = g.GroupID
			owners = append(owners, o)
		}
		g.Owners = owners
		reg.OwnerGroups = append(reg.OwnerGroups, g)
		reg.Parties = append(reg.Parties, owners...)
	}

	if sub.Location != nil {
		loc := *sub.Location
		loc.Status = model.ChildStatusActive
		reg.Locations = append(reg.Locations, loc)
	}
	if sub.Description != nil {
		desc := *sub.Description
		reg.Description = &desc
	}

	nextCollateral := maxCollateralID(current.Collateral)
	for _, c := range sub.Collateral {
		nextCollateral++
		c.CollateralID = nextCollateral
		c.Status = model.ChildStatusActive
		reg.Collateral = append(reg.Collateral, c)
	}

	commit := &model.RegistrationCommit{Registration: reg}
	if snapshot == nil {
		commit.NewTarget = true
		commit.Target = &model.TargetRecord{
			RecordNumber: reg.RecordNumber,
			Family:       reg.Family,
			Status:       reg.RegistrationType.ResultingStatus(""),
			AccountID:    reg.AccountID,
		}
		return commit, nil
	}

	target := snapshot.Target
	target.Status = reg.RegistrationType.ResultingStatus(snapshot.PriorStatus)
	commit.Target = &target

	switch reg.RegistrationType {
	case model.RegTypeTransfer:
		if len(sub.DeleteOwnerGroupIDs) == 0 {
			for _, g := range current.OwnerGroups {
				commit.SupersededGroups = append(commit.SupersededGroups, g.GroupID)
			}
			break
		}
		for _, id := range sub.DeleteOwnerGroupIDs {
			if !hasGroup(current.OwnerGroups, id) {
				return nil, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Owner group %d is not active on %s", id, target.RecordNumber), nil)
			}
		}
		commit.SupersededGroups = sub.DeleteOwnerGroupIDs
	case model.RegTypeAmendment:
		for _, id := range sub.DeleteCollateralIDs {
			if !hasCollateral(current.Collateral, id) {
				return nil, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Collateral %d is not active on %s", id, target.RecordNumber), nil)
			}
		}
		commit.SupersededCollateral = sub.DeleteCollateralIDs
	}

	if reg.Family == model.FamilyMHR && len(reg.Locations) > 0 {
		commit.SupersedeLocations = true
	}
	return commit, nil
}

func maxGroupID(groups []model.OwnerGroup) int {
	highest := 0
	for _, g := range groups {
		if g.GroupID > highest {
			highest = g.GroupID
		}
	}
	return highest
}

func maxCollateralID(items []model.Collateral) int {
	highest := 0
	for _, c := range items {
		if c.CollateralID > highest {
			highest = c.CollateralID
		}
	}
	return highest
}

func hasGroup(groups []model.OwnerGroup, id int) bool {
	for _, g := range groups {
		if g.GroupID == id {
			return true
		}
	}
	return false
}

func hasCollateral(items []model.Collateral, id int) bool {
	for _, c := range items {
		if c.CollateralID == id {
			return true
		}
	}
	return false
}
