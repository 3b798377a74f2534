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

// Package payment is the HTTP client for the external payment provider.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/internal/request"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChargeRequest describes a fee to open with the provider.
type ChargeRequest struct {
	FilingType      string
	Quantity        int
	Corp            string
	TargetID        string
	ClientReference string
	AccountID       string
}

// Charge is an opened invoice.
type Charge struct {
	InvoiceID   string `json:"invoice_id"`
	ReceiptPath string `json:"receipt_path"`
	StatusCode  string `json:"status_code"`
}

type filingType struct {
	FilingTypeCode string `json:"filingTypeCode"`
	Quantity       int    `json:"quantity"`
}

type chargePayload struct {
	BusinessInfo struct {
		CorpType           string `json:"corpType"`
		BusinessIdentifier string `json:"businessIdentifier,omitempty"`
	} `json:"businessInfo"`
	FilingInfo struct {
		FilingTypes []filingType `json:"filingTypes"`
		FolioNumber string       `json:"folioNumber,omitempty"`
	} `json:"filingInfo"`
}

type chargeResponse struct {
	ID         json.Number `json:"id"`
	StatusCode string      `json:"statusCode"`
}

// Client talks to the payment provider. Transport failures and 5xx answers are
// retried with exponential backoff; anything else is returned immediately.
type Client struct {
	baseURL    string
	token      string
	maxRetries uint64
	httpClient *http.Client
}

func NewClient(cnf config.PaymentConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cnf.Url, "/"),
		token:      cnf.Token,
		maxRetries: uint64(cnf.MaxRetries),
		httpClient: &http.Client{Timeout: time.Duration(cnf.Timeout) * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// OpenCharge opens an invoice for req and returns its id.
func (c *Client) OpenCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.FilingType == "" {
		return nil, errors.New("payment: filing type is required")
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	body := chargePayload{}
	body.BusinessInfo.CorpType = req.Corp
	body.BusinessInfo.BusinessIdentifier = req.TargetID
	body.FilingInfo.FilingTypes = []filingType{{FilingTypeCode: req.FilingType, Quantity: req.Quantity}}
	body.FilingInfo.FolioNumber = req.ClientReference

	var resp chargeResponse
	err := c.do(ctx, http.MethodPost, "/payment-requests", body, req.AccountID, &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "payment: open charge for %s", req.FilingType)
	}
	if resp.ID.String() == "" {
		return nil, errors.New("payment: provider returned no invoice id")
	}

	invoiceID := resp.ID.String()
	return &Charge{
		InvoiceID:   invoiceID,
		ReceiptPath: fmt.Sprintf("/payment-requests/%s/receipts", invoiceID),
		StatusCode:  resp.StatusCode,
	}, nil
}

// CancelCharge cancels an open invoice.
func (c *Client) CancelCharge(ctx context.Context, invoiceID string) error {
	if invoiceID == "" {
		return errors.New("payment: invoice id is required")
	}
	err := c.do(ctx, http.MethodDelete, "/payment-requests/"+invoiceID, nil, "", nil)
	if err != nil {
		return errors.Wrapf(err, "payment: cancel invoice %s", invoiceID)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, accountID string, out interface{}) error {
	attempt := 0
	operation := func() error {
		attempt++
		req, err := c.newRequest(ctx, method, path, payload, accountID)
		if err != nil {
			return backoff.Permanent(err)
		}

		_, err = request.Call(c.httpClient, req, out)
		if err == nil {
			return nil
		}

		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		logrus.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt,
		}).WithError(err).Warn("payment request failed, retrying")
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload interface{}, accountID string) (*http.Request, error) {
	var req *http.Request
	var err error
	if payload != nil {
		body, jsonErr := request.ToJsonReq(payload)
		if jsonErr != nil {
			return nil, jsonErr
		}
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if accountID != "" {
		req.Header.Set("Account-Id", accountID)
	}
	return req, nil
}
