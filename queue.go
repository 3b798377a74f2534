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
	"time"

	"github.com/blnkfinance/regpay/config"
	redis_db "github.com/blnkfinance/regpay/internal/redis-db"
	"github.com/blnkfinance/regpay/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Task types handled by the workers command.
const (
	TaskGenerateReport = "report:generate"
	TaskStalePayment   = "payment:stale"
)

// Report kinds requested from the report service.
const (
	ReportKindMHRRegistration = "MHR_REGISTRATION"
	ReportKindPPRRegistration = "PPR_REGISTRATION"
	ReportKindSearchResult    = "SEARCH_RESULT"
)

// TaskEnqueuer is the part of asynq.Client the queue needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue publishes background tasks to Redis.
type Queue struct {
	client      TaskEnqueuer
	reportQueue string
	expiryQueue string
}

// ReportTask is the payload of a report generation task.
type ReportTask struct {
	Kind               string            `json:"kind"`
	InvoiceID          string            `json:"invoice_id"`
	AccountID          string            `json:"account_id"`
	RegistrationNumber string            `json:"registration_number,omitempty"`
	RecordNumber       string            `json:"record_number,omitempty"`
	SearchID           string            `json:"search_id,omitempty"`
	Projection         *model.Projection `json:"projection,omitempty"`
}

// StalePaymentTask is the payload of a delayed stale payment check.
type StalePaymentTask struct {
	InvoiceID   string `json:"invoice_id"`
	DraftNumber string `json:"draft_number"`
}

// NewQueue connects an asynq client to the configured Redis.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return NewQueueWithClient(asynq.NewClient(opt), conf.Queue.ReportQueue, conf.Queue.ExpiryQueue), nil
}

// NewQueueWithClient builds a Queue on an existing enqueuer. Empty queue names
// fall back to the configured defaults.
//
// Parameters:
// - client TaskEnqueuer: Usually an *asynq.Client; tests pass an in-memory recorder.
// - reportQueue string: The queue report generation tasks are published to.
// - expiryQueue string: The queue delayed stale payment checks are published to.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueueWithClient(client TaskEnqueuer, reportQueue, expiryQueue string) *Queue {
	if reportQueue == "" {
		reportQueue = config.DEFAULT_REPORT_QUEUE
	}
	if expiryQueue == "" {
		expiryQueue = config.DEFAULT_EXPIRY_QUEUE
	}
	return &Queue{client: client, reportQueue: reportQueue, expiryQueue: expiryQueue}
}

// queueReport publishes a report task. The task id is derived from the
// subject so a repeated dispatch for the same registration is deduplicated.
func (q *Queue) queueReport(ctx context.Context, task ReportTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	taskID := task.Kind + ":" + task.RegistrationNumber + task.SearchID
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskGenerateReport, payload),
		asynq.Queue(q.reportQueue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(10),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Info(" [*] report task enqueued")
	return nil
}

// queueStalePaymentCheck schedules a check that fires after delay.
func (q *Queue) queueStalePaymentCheck(ctx context.Context, task StalePaymentTask, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TaskStalePayment, payload),
		asynq.Queue(q.expiryQueue),
		asynq.TaskID("stale:"+task.InvoiceID),
		asynq.ProcessIn(delay),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
