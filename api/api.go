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

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/paygrid/disburse/config"

	"github.com/paygrid/disburse/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/paygrid/disburse"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	disburse *disburse.Disburse
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/commissions", a.RecordCommission)
	router.GET("/commissions", a.GetAllCommissions)
	router.GET("/commissions/:id", a.GetCommission)

	router.POST("/payees", a.CreatePayee)
	router.GET("/payees", a.GetAllPayees)
	router.GET("/payees/:id", a.GetPayee)
	router.GET("/payees/affiliate/:affiliate_id", a.GetPayeeByAffiliate)
	router.POST("/payees/affiliate/:affiliate_id/refresh-kyc", a.RefreshPayeeKYC)

	router.POST("/disbursements/run", a.RunDisbursementCycle)

	router.GET("/batches", a.GetAllBatches)
	router.GET("/batches/:id", a.GetBatch)
	router.GET("/batches/:id/transactions", a.GetBatchTransactions)
	router.GET("/batches/:id/commissions", a.GetBatchCommissions)

	router.GET("/transactions", a.GetAllTransactions)
	router.GET("/transactions/:id", a.GetTransaction)
	router.PUT("/transactions/:id/cancel", a.CancelTransaction)

	router.GET("/audit-logs", a.GetAuditLogs)

	router.POST("/search/:collection", a.Search)
	router.POST("/reindex", a.Reindex)
	return a.router
}

func NewAPI(d *disburse.Disburse) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("disburse"))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	a := &Api{disburse: d, router: r}

	// provider deliveries carry their own signature auth, not the api key
	r.POST("/webhooks/provider", a.IngestProviderEvent)

	return a
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	err := c.BindJSON(&query)
	if err != nil {
		return
	}

	resp, err := a.disburse.Search(collection, &query)

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
