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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/internal/request"
	"github.com/blnkfinance/regpay/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var errNoQueue = errors.New("report queue is not configured")

// dispatchReport publishes a report task. Dispatch is best effort: a failure
// is logged and tracked against the invoice but never fails the caller.
func (r *Regpay) dispatchReport(ctx context.Context, task ReportTask) {
	err := errNoQueue
	if r.queue != nil {
		err = r.queue.queueReport(ctx, task)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"invoice_id":          task.InvoiceID,
			"kind":                task.Kind,
			"registration_number": task.RegistrationNumber,
			"search_id":           task.SearchID,
		}).WithError(err).Error("failed to dispatch report task")
		r.track(ctx, task.InvoiceID, model.EventReportDispatchFailed, model.DefaultErrorCode, err.Error())
		r.metrics.IncReportDispatch("failed")
		return
	}
	r.metrics.IncReportDispatch("queued")
}

// ReportWorker hands report tasks to the external report service.
type ReportWorker struct {
	url           string
	authorization string
	client        *http.Client
}

// NewReportWorker builds a worker that posts report tasks to the configured
// report service. With no URL configured, tasks are dropped with a warning.
func NewReportWorker(cnf config.ReportServiceConfig) *ReportWorker {
	return &ReportWorker{
		url:           strings.TrimRight(cnf.Url, "/"),
		authorization: cnf.Headers.Authorization,
		client:        &http.Client{Timeout: time.Duration(cnf.Timeout) * time.Second},
	}
}

// ProcessTask posts the report task to the report service. Errors are
// returned to asynq, which retries the task with backoff. A payload that
// cannot be decoded is never retried.
func (w *ReportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("regpay.reports.worker").Start(ctx, "Process Report Task")
	defer span.End()

	var task ReportTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logrus.Error(err)
		return fmt.Errorf("decode report task: %v: %w", err, asynq.SkipRetry)
	}
	if w.url == "" {
		logrus.WithField("kind", task.Kind).Warn("report service url not set, dropping report task")
		return nil
	}

	payload, err := request.ToJsonReq(task)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+"/reports", payload)
	if err != nil {
		return err
	}
	if w.authorization != "" {
		req.Header.Set("Authorization", w.authorization)
	}

	_, err = request.Call(w.client, req, nil)
	if err != nil {
		span.RecordError(err)
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return fmt.Errorf("report service rejected %s: %v: %w", task.Kind, err, asynq.SkipRetry)
		}
		return err
	}

	logrus.Printf(" [*] Report requested %s %s%s", task.Kind, task.RegistrationNumber, task.SearchID)
	return nil
}
