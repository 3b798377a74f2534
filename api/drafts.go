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

// CreateDraft stores a new registration draft.
//
// Responses:
// - 400 Bad Request: The request or the draft payload is invalid.
// - 201 Created: The draft was stored.
func (a Api) CreateDraft(c *gin.Context) {
	var newDraft model.CreateDraft
	if err := c.ShouldBindJSON(&newDraft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := newDraft.ValidateCreateDraft(); err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.regpay.CreateDraft(c.Request.Context(), newDraft.Payload, newDraft.AccountID, newDraft.UserID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetDraft returns a draft. The number may carry its state prefix.
func (a Api) GetDraft(c *gin.Context) {
	resp, err := a.regpay.GetDraft(c.Request.Context(), c.Param("number"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateDraft replaces the payload of a draft that is not in flight.
func (a Api) UpdateDraft(c *gin.Context) {
	var update model.UpdateDraft
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := update.ValidateUpdateDraft(); err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.regpay.UpdateDraft(c.Request.Context(), c.Param("number"), update.Payload)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) DeleteDraft(c *gin.Context) {
	if err := a.regpay.DeleteDraft(c.Request.Context(), c.Param("number")); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevertDraft withdraws a pending or staff review submission and releases its target.
func (a Api) RevertDraft(c *gin.Context) {
	resp, err := a.regpay.Revert(c.Request.Context(), c.Param("number"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
