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
package mocks

import (
	"context"

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// Sequence methods

func (m *MockDataSource) NextID(ctx context.Context, seq database.Sequence) (int64, error) {
	args := m.Called(ctx, seq)
	return args.Get(0).(int64), args.Error(1)
}

// Draft methods

func (m *MockDataSource) CreateDraft(ctx context.Context, draft *model.Draft) (*model.Draft, error) {
	args := m.Called(ctx, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDataSource) GetDraftByNumber(ctx context.Context, number string) (*model.Draft, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDataSource) GetDraftByInvoice(ctx context.Context, invoiceID string) (*model.Draft, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Draft), args.Error(1)
}

func (m *MockDataSource) UpdateDraft(ctx context.Context, draft *model.Draft) error {
	args := m.Called(ctx, draft)
	return args.Error(0)
}

func (m *MockDataSource) TransitionDraft(ctx context.Context, draft *model.Draft, from model.DraftState) error {
	args := m.Called(ctx, draft, from)
	return args.Error(0)
}

func (m *MockDataSource) DeleteDraft(ctx context.Context, number string) error {
	args := m.Called(ctx, number)
	return args.Error(0)
}

// Target methods

func (m *MockDataSource) GetTarget(ctx context.Context, recordNumber string) (*model.TargetRecord, error) {
	args := m.Called(ctx, recordNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TargetRecord), args.Error(1)
}

func (m *MockDataSource) LockTarget(ctx context.Context, recordNumber string) (*model.TargetRecord, error) {
	args := m.Called(ctx, recordNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TargetRecord), args.Error(1)
}

func (m *MockDataSource) UnlockTarget(ctx context.Context, recordNumber, status string) error {
	args := m.Called(ctx, recordNumber, status)
	return args.Error(0)
}

func (m *MockDataSource) GetActiveChildren(ctx context.Context, recordNumber string) (*model.Children, error) {
	args := m.Called(ctx, recordNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Children), args.Error(1)
}

// Event tracking methods

func (m *MockDataSource) AppendEvent(ctx context.Context, event *model.EventTracking) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) GetEvents(ctx context.Context, keyID string) ([]model.EventTracking, error) {
	args := m.Called(ctx, keyID)
	return args.Get(0).([]model.EventTracking), args.Error(1)
}

func (m *MockDataSource) EventExists(ctx context.Context, keyID, eventType string) (bool, error) {
	args := m.Called(ctx, keyID, eventType)
	return args.Bool(0), args.Error(1)
}

// Payment intent methods

func (m *MockDataSource) RecordPaymentIntent(ctx context.Context, intent *model.PaymentIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockDataSource) GetPaymentIntent(ctx context.Context, invoiceID string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

// Search methods

func (m *MockDataSource) CreateSearch(ctx context.Context, search *model.SearchRequest) (*model.SearchRequest, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchRequest), args.Error(1)
}

func (m *MockDataSource) GetSearchByInvoice(ctx context.Context, invoiceID string) (*model.SearchRequest, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchRequest), args.Error(1)
}

func (m *MockDataSource) SetSearchInvoice(ctx context.Context, searchID, invoiceID string) error {
	args := m.Called(ctx, searchID, invoiceID)
	return args.Error(0)
}

func (m *MockDataSource) TransitionSearch(ctx context.Context, searchID, from, to string) error {
	args := m.Called(ctx, searchID, from, to)
	return args.Error(0)
}

// Registration methods

func (m *MockDataSource) CommitRegistration(ctx context.Context, commit *model.RegistrationCommit) error {
	args := m.Called(ctx, commit)
	return args.Error(0)
}

func (m *MockDataSource) RevertDraft(ctx context.Context, draft *model.Draft, from model.DraftState, target *model.TargetRecord) error {
	args := m.Called(ctx, draft, from, target)
	return args.Error(0)
}

func (m *MockDataSource) GetRegistrationByNumber(ctx context.Context, number string) (*model.Registration, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}
