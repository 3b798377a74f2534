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
package api

import (
	"net/http"

	"github.com/blnkfinance/regpay/model"
	"github.com/gin-gonic/gin"
)

// PaymentCallback receives a payment status notification for an invoice.
//
// Responses:
// - 200 OK: The notification was applied or needed no action.
// - 400 Bad Request: The status code is missing or unknown.
// - 409 Conflict: Another delivery for the invoice is in progress.
// - 500 Internal Server Error: Processing failed; the provider should retry.
func (a Api) PaymentCallback(c *gin.Context) {
	invoiceID := c.Param("invoice_id")

	var body model.PaymentCallback
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := a.regpay.ProcessPaymentCallback(c.Request.Context(), invoiceID, body); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// GetPaymentEvents lists the tracked events of an invoice.
func (a Api) GetPaymentEvents(c *gin.Context) {
	events, err := a.regpay.GetPaymentEvents(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
