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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/model"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportTask(t *testing.T) *asynq.Task {
	payload, err := json.Marshal(ReportTask{
		Kind:               ReportKindMHRRegistration,
		InvoiceID:          "9001",
		AccountID:          "acct-1",
		RegistrationNumber: "0000001M",
		RecordNumber:       "100000",
		Projection:         &model.Projection{Registration: &model.Registration{RegistrationNumber: "0000001M"}},
	})
	require.NoError(t, err)
	return asynq.NewTask(TaskGenerateReport, payload)
}

func reportServer(t *testing.T, status int, received *ReportTask) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reports", r.URL.Path)
		assert.Equal(t, "Bearer report-token", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if received != nil {
			require.NoError(t, json.Unmarshal(body, received))
		}
		w.WriteHeader(status)
	}))
}

func newTestReportWorker(url string) *ReportWorker {
	cnf := config.ReportServiceConfig{Url: url + "/", Timeout: 5}
	cnf.Headers.Authorization = "Bearer report-token"
	return NewReportWorker(cnf)
}

func TestReportWorkerPostsTask(t *testing.T) {
	var received ReportTask
	server := reportServer(t, http.StatusAccepted, &received)
	defer server.Close()

	err := newTestReportWorker(server.URL).ProcessTask(context.Background(), reportTask(t))
	require.NoError(t, err)
	assert.Equal(t, "0000001M", received.RegistrationNumber)
	require.NotNil(t, received.Projection)
}

func TestReportWorkerRetriesServerErrors(t *testing.T) {
	server := reportServer(t, http.StatusServiceUnavailable, nil)
	defer server.Close()

	err := newTestReportWorker(server.URL).ProcessTask(context.Background(), reportTask(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestReportWorkerSkipsRetryOnRejection(t *testing.T) {
	server := reportServer(t, http.StatusUnprocessableEntity, nil)
	defer server.Close()

	err := newTestReportWorker(server.URL).ProcessTask(context.Background(), reportTask(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestReportWorkerWithoutServiceDropsTask(t *testing.T) {
	w := NewReportWorker(config.ReportServiceConfig{})
	assert.NoError(t, w.ProcessTask(context.Background(), reportTask(t)))

	err := w.ProcessTask(context.Background(), asynq.NewTask(TaskGenerateReport, []byte("not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
