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
	"embed"
	"time"

	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/metrics"
	"github.com/blnkfinance/regpay/internal/payment"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// SQLFiles holds the schema migrations applied by the migrate command.
//
//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("regpay.payments")

// PaymentGateway opens and cancels charges with the payment provider.
type PaymentGateway interface {
	OpenCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error)
	CancelCharge(ctx context.Context, invoiceID string) error
}

// CallbackLocker serializes deliveries for the same invoice across processes.
type CallbackLocker interface {
	Acquire(ctx context.Context, invoiceID string) (func(context.Context) error, error)
}

// RecordCache holds immutable records between reads.
type RecordCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, data interface{}) (bool, error)
}

// ErrorNotifier alerts staff about errors that need a human.
type ErrorNotifier interface {
	NotifyError(err error)
}

// logNotifier is the fallback when no Slack webhook is configured.
type logNotifier struct{}

func (logNotifier) NotifyError(err error) {
	logrus.Error(err)
}

// Regpay runs the payment-deferred registration pipeline. Every collaborator
// is injected; nothing here reads process configuration.
type Regpay struct {
	datasource database.IDataSource
	payments   PaymentGateway
	queue      *Queue
	locks      CallbackLocker
	notifier   ErrorNotifier
	metrics    *metrics.Metrics
	staleAfter time.Duration
	cache      RecordCache
	cacheTTL   time.Duration
}

// Option configures optional collaborators of a Regpay instance. Options are
// applied in order by NewRegpay, after the defaults are set, so a later option
// overrides an earlier one.
type Option func(*Regpay)

// WithCallbackLocks serializes concurrent deliveries of the same invoice.
func WithCallbackLocks(locks CallbackLocker) Option {
	return func(r *Regpay) { r.locks = locks }
}

// WithNotifier replaces the default log-only notifier. A nil notifier is ignored.
func WithNotifier(n ErrorNotifier) Option {
	return func(r *Regpay) {
		if n != nil {
			r.notifier = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Regpay) { r.metrics = m }
}

// WithRegistrationCache reads committed registrations through c, keeping
// each entry for ttl.
func WithRegistrationCache(c RecordCache, ttl time.Duration) Option {
	return func(r *Regpay) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

// WithStaleAfter enables the stale payment watch. Zero disables it.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Regpay) { r.staleAfter = d }
}

// NewRegpay wires a Regpay instance from its collaborators. Errors are only
// logged until WithNotifier supplies a notifier, and metrics are skipped until
// WithMetrics supplies a registry-backed set.
//
// Parameters:
// - db database.IDataSource: Persistence for drafts, targets, registrations and the event ledger.
// - payments PaymentGateway: The payment provider client used to open and cancel charges.
// - queue *Queue: The background task publisher. It may be nil, in which case report
// dispatch is recorded as failed and the stale payment watch is off.
// - opts ...Option: Optional collaborators such as callback locks or the registration cache.
//
// Returns:
// - *Regpay: A pointer to the newly created Regpay instance.
func NewRegpay(db database.IDataSource, payments PaymentGateway, queue *Queue, opts ...Option) *Regpay {
	r := &Regpay{
		datasource: db,
		payments:   payments,
		queue:      queue,
		notifier:   logNotifier{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
