// Package memory is an in-process IDataSource with the same conditional-update
// semantics as the Postgres datasource. It backs scenario tests and local runs
// without a database.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
)

// Operation names accepted by FailOn.
const (
	OpCreateDraft         = "CreateDraft"
	OpUpdateDraft         = "UpdateDraft"
	OpTransitionDraft     = "TransitionDraft"
	OpLockTarget          = "LockTarget"
	OpUnlockTarget        = "UnlockTarget"
	OpAppendEvent         = "AppendEvent"
	OpRecordPaymentIntent = "RecordPaymentIntent"
	OpCommitRegistration  = "CommitRegistration"
	OpRevertDraft         = "RevertDraft"
	OpGetPaymentIntent    = "GetPaymentIntent"
)

type childRow struct {
	registrationID int64
	status         string
	changeRegID    int64
}

type groupRow struct {
	childRow
	group model.OwnerGroup
}

type locationRow struct {
	childRow
	location model.Location
}

type collateralRow struct {
	childRow
	collateral model.Collateral
}

type Store struct {
	mu sync.Mutex

	seqs          map[database.Sequence]int64
	drafts        map[string]*model.Draft
	targets       map[string]*model.TargetRecord
	groups        map[string][]*groupRow
	locations     map[string][]*locationRow
	collateral    map[string][]*collateralRow
	events        []model.EventTracking
	intents       map[string]*model.PaymentIntent
	searches      map[string]*model.SearchRequest
	registrations map[string]*model.Registration
	regDrafts     map[string]string

	failures map[string]error
}

var _ database.IDataSource = (*Store)(nil)

func New() *Store {
	return &Store{
		seqs:          map[database.Sequence]int64{},
		drafts:        map[string]*model.Draft{},
		targets:       map[string]*model.TargetRecord{},
		groups:        map[string][]*groupRow{},
		locations:     map[string][]*locationRow{},
		collateral:    map[string][]*collateralRow{},
		intents:       map[string]*model.PaymentIntent{},
		searches:      map[string]*model.SearchRequest{},
		registrations: map[string]*model.Registration{},
		regDrafts:     map[string]string{},
		failures:      map[string]error{},
	}
}

// FailOn makes the next call to op return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) injected(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// SeedTarget stores an existing record with its active children.
func (s *Store) SeedTarget(target model.TargetRecord, children model.Children) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target.Version == 0 {
		target.Version = 1
	}
	target.UpdatedAt = time.Now()
	s.targets[target.RecordNumber] = &target
	for _, g := range children.OwnerGroups {
		s.groups[target.RecordNumber] = append(s.groups[target.RecordNumber], &groupRow{childRow{status: model.ChildStatusActive}, g})
	}
	for _, l := range children.Locations {
		s.locations[target.RecordNumber] = append(s.locations[target.RecordNumber], &locationRow{childRow{status: model.ChildStatusActive}, l})
	}
	for _, c := range children.Collateral {
		s.collateral[target.RecordNumber] = append(s.collateral[target.RecordNumber], &collateralRow{childRow{status: model.ChildStatusActive}, c})
	}
}

// Registrations returns every committed registration, ordered by id.
func (s *Store) Registrations() []*model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegistrationID < out[j].RegistrationID })
	return out
}

// SupersededBy lists the owner group and collateral ids marked previous by a registration.
func (s *Store) SupersededBy(recordNumber string, registrationID int64) (groups []int, collateral []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups[recordNumber] {
		if g.changeRegID == registrationID && g.status == model.ChildStatusPrevious {
			groups = append(groups, g.group.GroupID)
		}
	}
	for _, c := range s.collateral[recordNumber] {
		if c.changeRegID == registrationID && c.status == model.ChildStatusPrevious {
			collateral = append(collateral, c.collateral.CollateralID)
		}
	}
	return groups, collateral
}

func (s *Store) NextID(_ context.Context, seq database.Sequence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seqs[seq] == 0 && (seq == database.SeqMHRNumber || seq == database.SeqPPRNumber) {
		s.seqs[seq] = 99999
	}
	s.seqs[seq]++
	return s.seqs[seq], nil
}

func (s *Store) CreateDraft(_ context.Context, draft *model.Draft) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCreateDraft); err != nil {
		return nil, err
	}
	if _, exists := s.drafts[draft.BaseNumber]; exists {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Draft with this number already exists", nil)
	}
	now := time.Now()
	draft.CreatedAt, draft.UpdatedAt = now, now
	draft.Number = model.DisplayNumber(draft.State, draft.BaseNumber)
	stored, err := cloneDraft(draft)
	if err != nil {
		return nil, err
	}
	s.drafts[draft.BaseNumber] = stored
	return draft, nil
}

func (s *Store) GetDraftByNumber(_ context.Context, number string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[model.NormalizeDraftNumber(number)]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", nil)
	}
	return cloneDraft(d)
}

func (s *Store) GetDraftByInvoice(_ context.Context, invoiceID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *model.Draft
	for _, d := range s.drafts {
		if d.InvoiceID == invoiceID && (found == nil || d.UpdatedAt.After(found.UpdatedAt)) {
			found = d
		}
	}
	if found == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", nil)
	}
	return cloneDraft(found)
}

func (s *Store) UpdateDraft(_ context.Context, draft *model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUpdateDraft); err != nil {
		return err
	}
	if _, ok := s.drafts[draft.BaseNumber]; !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", nil)
	}
	return s.putDraft(draft)
}

func (s *Store) TransitionDraft(_ context.Context, draft *model.Draft, from model.DraftState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpTransitionDraft); err != nil {
		return err
	}
	if err := s.checkDraftState(draft.BaseNumber, from); err != nil {
		return err
	}
	return s.putDraft(draft)
}

func (s *Store) checkDraftState(baseNumber string, from model.DraftState) error {
	stored, ok := s.drafts[baseNumber]
	if !ok || stored.State != from {
		return database.ErrAlreadyResolved
	}
	return nil
}

func (s *Store) putDraft(draft *model.Draft) error {
	draft.UpdatedAt = time.Now()
	draft.Number = model.DisplayNumber(draft.State, draft.BaseNumber)
	stored, err := cloneDraft(draft)
	if err != nil {
		return err
	}
	s.drafts[draft.BaseNumber] = stored
	return nil
}

func (s *Store) DeleteDraft(_ context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := model.NormalizeDraftNumber(number)
	if _, ok := s.drafts[base]; !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Draft not found", nil)
	}
	delete(s.drafts, base)
	return nil
}

func (s *Store) GetTarget(_ context.Context, recordNumber string) (*model.TargetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[recordNumber]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Target record not found", nil)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) LockTarget(_ context.Context, recordNumber string) (*model.TargetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpLockTarget); err != nil {
		return nil, err
	}
	t, ok := s.targets[recordNumber]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Target record not found", nil)
	}
	if t.Status == model.StatusLocked {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Target record has a change in progress", nil)
	}
	prior := *t
	t.Status = model.StatusLocked
	t.Version++
	t.UpdatedAt = time.Now()
	return &prior, nil
}

func (s *Store) UnlockTarget(_ context.Context, recordNumber, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUnlockTarget); err != nil {
		return err
	}
	return s.unlock(recordNumber, status)
}

func (s *Store) unlock(recordNumber, status string) error {
	t, ok := s.targets[recordNumber]
	if !ok || t.Status != model.StatusLocked {
		return database.ErrAlreadyResolved
	}
	t.Status = status
	t.Version++
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetActiveChildren(_ context.Context, recordNumber string) (*model.Children, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := &model.Children{}
	for _, g := range s.groups[recordNumber] {
		if g.status == model.ChildStatusActive {
			group := g.group
			group.Status = g.status
			children.OwnerGroups = append(children.OwnerGroups, group)
		}
	}
	for _, l := range s.locations[recordNumber] {
		if l.status == model.ChildStatusActive {
			loc := l.location
			loc.Status = l.status
			children.Locations = append(children.Locations, loc)
		}
	}
	for _, c := range s.collateral[recordNumber] {
		if c.status == model.ChildStatusActive {
			col := c.collateral
			col.Status = c.status
			children.Collateral = append(children.Collateral, col)
		}
	}
	return children, nil
}

func (s *Store) AppendEvent(_ context.Context, event *model.EventTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpAppendEvent); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.ID = int64(len(s.events) + 1)
	s.events = append(s.events, *event)
	return nil
}

func (s *Store) GetEvents(_ context.Context, keyID string) ([]model.EventTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := []model.EventTracking{}
	for _, e := range s.events {
		if e.KeyID == keyID {
			events = append(events, e)
		}
	}
	return events, nil
}

func (s *Store) EventExists(_ context.Context, keyID, eventType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.KeyID == keyID && e.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RecordPaymentIntent(_ context.Context, intent *model.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpRecordPaymentIntent); err != nil {
		return err
	}
	if _, exists := s.intents[intent.InvoiceID]; exists {
		return apierror.NewAPIError(apierror.ErrConflict, "Invoice is already registered", nil)
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}
	cp := *intent
	s.intents[intent.InvoiceID] = &cp
	return nil
}

func (s *Store) GetPaymentIntent(_ context.Context, invoiceID string) (*model.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpGetPaymentIntent); err != nil {
		return nil, err
	}
	intent, ok := s.intents[invoiceID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Payment intent not found", nil)
	}
	cp := *intent
	return &cp, nil
}

func (s *Store) CreateSearch(_ context.Context, search *model.SearchRequest) (*model.SearchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	search.CreatedAt, search.UpdatedAt = now, now
	search.ID = int64(len(s.searches) + 1)
	cp := *search
	s.searches[search.SearchID] = &cp
	return search, nil
}

func (s *Store) GetSearchByInvoice(_ context.Context, invoiceID string) (*model.SearchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, search := range s.searches {
		if search.InvoiceID == invoiceID {
			cp := *search
			return &cp, nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "Search request not found", nil)
}

func (s *Store) SetSearchInvoice(_ context.Context, searchID, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	search, ok := s.searches[searchID]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Search request not found", nil)
	}
	search.InvoiceID = invoiceID
	search.UpdatedAt = time.Now()
	return nil
}

func (s *Store) TransitionSearch(_ context.Context, searchID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	search, ok := s.searches[searchID]
	if !ok || search.Status != from {
		return database.ErrAlreadyResolved
	}
	search.Status = to
	search.UpdatedAt = time.Now()
	return nil
}

// CommitRegistration validates every precondition before mutating anything so
// a failed commit leaves the store untouched, like a rolled back transaction.
func (s *Store) CommitRegistration(_ context.Context, commit *model.RegistrationCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCommitRegistration); err != nil {
		return err
	}
	reg := commit.Registration
	if reg == nil || commit.Draft == nil || commit.Target == nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Incomplete registration commit", nil)
	}
	if err := s.checkDraftState(commit.Draft.BaseNumber, commit.DraftFrom); err != nil {
		return err
	}
	if _, dup := s.regDrafts[reg.DraftNumber]; dup {
		return database.ErrAlreadyResolved
	}
	if commit.NewTarget {
		if _, exists := s.targets[commit.Target.RecordNumber]; exists {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create target record", nil)
		}
	} else if t, ok := s.targets[commit.Target.RecordNumber]; !ok || t.Status != model.StatusLocked {
		return fmt.Errorf("%w: %s", database.ErrTargetNotLocked, commit.Target.RecordNumber)
	}

	if err := s.putDraft(commit.Draft); err != nil {
		return err
	}
	if commit.NewTarget {
		target := *commit.Target
		target.Version = 1
		target.UpdatedAt = time.Now()
		s.targets[target.RecordNumber] = &target
	} else {
		_ = s.unlock(commit.Target.RecordNumber, commit.Target.Status)
	}

	record := reg.RecordNumber
	superseded := func(ids []int, id int) bool {
		for _, v := range ids {
			if v == id {
				return true
			}
		}
		return false
	}
	for _, g := range s.groups[record] {
		if g.status == model.ChildStatusActive && superseded(commit.SupersededGroups, g.group.GroupID) {
			g.status, g.changeRegID = model.ChildStatusPrevious, reg.RegistrationID
		}
	}
	for _, c := range s.collateral[record] {
		if c.status == model.ChildStatusActive && superseded(commit.SupersededCollateral, c.collateral.CollateralID) {
			c.status, c.changeRegID = model.ChildStatusPrevious, reg.RegistrationID
		}
	}
	if commit.SupersedeLocations {
		for _, l := range s.locations[record] {
			if l.status == model.ChildStatusActive {
				l.status, l.changeRegID = model.ChildStatusPrevious, reg.RegistrationID
			}
		}
	}

	for _, g := range reg.OwnerGroups {
		s.groups[record] = append(s.groups[record], &groupRow{childRow{registrationID: reg.RegistrationID, status: g.Status}, g})
	}
	for _, l := range reg.Locations {
		s.locations[record] = append(s.locations[record], &locationRow{childRow{registrationID: reg.RegistrationID, status: l.Status}, l})
	}
	for _, c := range reg.Collateral {
		s.collateral[record] = append(s.collateral[record], &collateralRow{childRow{registrationID: reg.RegistrationID, status: c.Status}, c})
	}

	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}
	stored := *reg
	s.registrations[reg.RegistrationNumber] = &stored
	s.regDrafts[reg.DraftNumber] = reg.RegistrationNumber
	return nil
}

func (s *Store) RevertDraft(_ context.Context, draft *model.Draft, from model.DraftState, target *model.TargetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpRevertDraft); err != nil {
		return err
	}
	if err := s.checkDraftState(draft.BaseNumber, from); err != nil {
		return err
	}
	if err := s.putDraft(draft); err != nil {
		return err
	}
	if target != nil {
		_ = s.unlock(target.RecordNumber, target.Status)
	}
	return nil
}

func (s *Store) GetRegistrationByNumber(_ context.Context, number string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[number]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Registration not found", nil)
	}
	cp := *reg
	return &cp, nil
}

func cloneDraft(d *model.Draft) (*model.Draft, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to copy draft", err)
	}
	out := &model.Draft{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to copy draft", err)
	}
	if out.Payload == nil {
		out.Payload = map[string]interface{}{}
	}
	return out, nil
}

var errNotSeeded = errors.New("memory: record not seeded")

// MustTarget returns the stored target or panics; for test assertions.
func (s *Store) MustTarget(recordNumber string) model.TargetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[recordNumber]
	if !ok {
		panic(errNotSeeded)
	}
	return *t
}
