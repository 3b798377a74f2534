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

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/internal/request"
	"github.com/sirupsen/logrus"
)

// Notifier reports errors that need a human. Errors are always logged; they
// are also posted to Slack when a webhook is configured.
type Notifier struct {
	projectName string
	webhookURL  string
	client      *http.Client
}

func New(cnf *config.Configuration) *Notifier {
	return &Notifier{
		projectName: cnf.ProjectName,
		webhookURL:  cnf.Notification.Slack.WebhookUrl,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyError logs systemError and posts it to Slack in the background.
func (n *Notifier) NotifyError(systemError error) {
	logrus.Error(systemError)
	if n == nil || n.webhookURL == "" {
		return
	}
	go func(systemError error) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.SlackNotification(ctx, systemError); err != nil {
			logrus.WithError(err).Warn("failed to send slack notification")
		}
	}(systemError)
}

// SlackNotification sends an error message to the Slack webhook.
func (n *Notifier) SlackNotification(ctx context.Context, systemError error) error {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "Error From %s 🐞",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%s"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, jsonEscape(n.projectName), jsonEscape(systemError.Error()), time.Now().Format(time.RFC822)))

	payload, err := request.ToJsonReq(&data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, payload)
	if err != nil {
		return err
	}

	_, err = request.Call(n.client, req, nil)
	return err
}

// jsonEscape returns s escaped for embedding inside a JSON string literal.
func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
