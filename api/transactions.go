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

	"github.com/gin-gonic/gin"
)

// GetTransaction retrieves a disbursement transaction by its ID.
//
// Responses:
// - 404 Not Found: If no transaction carries the ID.
// - 200 OK: If the transaction is successfully retrieved.
func (a Api) GetTransaction(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.disburse.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAllTransactions lists transactions, optionally filtered by status via
// the ?status= query parameter.
func (a Api) GetAllTransactions(c *gin.Context) {
	limit, offset := pagination(c)
	status := c.DefaultQuery("status", "")

	if status != "" {
		resp, err := a.disburse.GetTransactionsByStatus(c.Request.Context(), status, limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	resp, err := a.disburse.GetAllTransactions(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelTransaction is the operator cancel. Terminal rows refuse with a
// conflict; the money already moved or failed.
//
// Responses:
// - 409 Conflict: If the transaction is already terminal.
// - 200 OK: If the transaction is successfully cancelled.
func (a Api) CancelTransaction(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.disburse.CancelTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAuditLogs lists audit entries filtered by ?transaction_id= or
// ?batch_id= for compliance reporting.
func (a Api) GetAuditLogs(c *gin.Context) {
	limit, offset := pagination(c)
	transactionID := c.DefaultQuery("transaction_id", "")
	batchID := c.DefaultQuery("batch_id", "")

	resp, err := a.disburse.GetAuditLogs(c.Request.Context(), transactionID, batchID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
