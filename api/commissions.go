/*
Copyright 2025 PayGrid Authors.

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

	model2 "github.com/paygrid/disburse/api/model"

	"github.com/gin-gonic/gin"
)

// RecordCommission ingests one commission from the upstream calculator.
// The engine never computes amounts; it validates and records.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the commission.
// - 404 Not Found: If no payee is registered for the affiliate.
// - 201 Created: If the commission is successfully recorded.
func (a Api) RecordCommission(c *gin.Context) {
	var newCommission model2.RecordCommission
	if err := c.ShouldBindJSON(&newCommission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	err := newCommission.ValidateRecordCommission()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.disburse.RecordCommission(c.Request.Context(), newCommission.ToCommission())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetCommission(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.disburse.GetCommission(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllCommissions(c *gin.Context) {
	limit, offset := pagination(c)
	resp, err := a.disburse.GetAllCommissions(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
