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

// CreatePayee registers an affiliate's payout destination.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the payee.
// - 409 Conflict: If a payee already exists for the affiliate.
// - 201 Created: If the payee is successfully created.
func (a Api) CreatePayee(c *gin.Context) {
	var newPayee model2.CreatePayee
	if err := c.ShouldBindJSON(&newPayee); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	err := newPayee.ValidateCreatePayee()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.disburse.CreatePayee(c.Request.Context(), newPayee.ToPayee())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetPayee(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.disburse.GetPayee(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetPayeeByAffiliate(c *gin.Context) {
	affiliateID, passed := c.Params.Get("affiliate_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "affiliate_id is required. pass it in the route /affiliate/:affiliate_id"})
		return
	}

	resp, err := a.disburse.GetPayeeByAffiliate(c.Request.Context(), affiliateID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllPayees(c *gin.Context) {
	limit, offset := pagination(c)
	resp, err := a.disburse.GetAllPayees(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RefreshPayeeKYC pulls the provider's current KYC verdict and mirrors it
// locally.
func (a Api) RefreshPayeeKYC(c *gin.Context) {
	affiliateID, passed := c.Params.Get("affiliate_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "affiliate_id is required. pass it in the route /affiliate/:affiliate_id/refresh-kyc"})
		return
	}

	resp, err := a.disburse.RefreshPayeeKYC(c.Request.Context(), affiliateID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
