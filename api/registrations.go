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

	"github.com/blnkfinance/regpay/api/model"
	"github.com/gin-gonic/gin"
)

// SubmitRegistration opens a payment for a draft.
//
// Responses:
// - 400 Bad Request: The request or the draft payload is invalid.
// - 404 Not Found: The draft or its target record does not exist.
// - 409 Conflict: The draft or its target already has a change in flight.
// - 201 Created: The payment was opened; the draft is pending.
func (a Api) SubmitRegistration(c *gin.Context) {
	var submission model.SubmitRegistration
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := submission.ValidateSubmitRegistration(); err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.regpay.SubmitRegistration(c.Request.Context(), submission.ToRegistrationRequest())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetRegistration returns a committed registration by its registration number.
//
// Responses:
// - 404 Not Found: No registration has that number.
// - 200 OK: The registration with its children.
func (a Api) GetRegistration(c *gin.Context) {
	resp, err := a.regpay.GetRegistration(c.Request.Context(), c.Param("number"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitSearch opens a payment for a search.
func (a Api) SubmitSearch(c *gin.Context) {
	var search model.SubmitSearch
	if err := c.ShouldBindJSON(&search); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := search.ValidateSubmitSearch(); err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.regpay.SubmitSearch(c.Request.Context(), search.ToSearchRequest())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ApproveReview finalizes a paid draft held for staff review.
func (a Api) ApproveReview(c *gin.Context) {
	resp, err := a.regpay.ApproveReview(c.Request.Context(), c.Param("number"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) RejectReview(c *gin.Context) {
	var reject model.RejectReview
	if err := c.ShouldBindJSON(&reject); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := reject.ValidateRejectReview(); err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.regpay.RejectReview(c.Request.Context(), c.Param("number"), reject.Reason)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
