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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/regpay/config"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisQueue(t *testing.T) (*Queue, *asynq.Inspector) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)

	q, err := NewQueue(&config.Configuration{Redis: config.RedisConfig{Dns: mr.Addr()}})
	require.NoError(t, err)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })
	return q, inspector
}

func TestQueueReportDeduplicatesBySubject(t *testing.T) {
	q, inspector := newMiniredisQueue(t)
	task := ReportTask{Kind: ReportKindMHRRegistration, InvoiceID: "9001", RegistrationNumber: "0000001M"}

	require.NoError(t, q.queueReport(context.Background(), task))
	require.NoError(t, q.queueReport(context.Background(), task))

	info, err := inspector.GetTaskInfo(config.DEFAULT_REPORT_QUEUE, "MHR_REGISTRATION:0000001M")
	require.NoError(t, err)
	assert.Equal(t, TaskGenerateReport, info.Type)
	assert.Equal(t, 10, info.MaxRetry)

	var payload ReportTask
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, task, payload)

	pending, err := inspector.ListPendingTasks(config.DEFAULT_REPORT_QUEUE)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestQueueStalePaymentCheckIsScheduled(t *testing.T) {
	q, inspector := newMiniredisQueue(t)

	err := q.queueStalePaymentCheck(context.Background(), StalePaymentTask{InvoiceID: "9002", DraftNumber: "PD0000001"}, time.Hour)
	require.NoError(t, err)

	info, err := inspector.GetTaskInfo(config.DEFAULT_EXPIRY_QUEUE, "stale:9002")
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStateScheduled, info.State)
	assert.WithinDuration(t, time.Now().Add(time.Hour), info.NextProcessAt, time.Minute)
}

func TestNewQueueRequiresRedis(t *testing.T) {
	_, err := NewQueue(&config.Configuration{})
	assert.Error(t, err)
}
