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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/provider"
)

const signatureHeader = "X-Provider-Signature"

// IngestProviderEvent receives a payment status webhook from the provider.
// The signature is verified over the raw body before anything is parsed. A
// 2xx acknowledges only durable recording; the state transition itself may
// happen later through the unresolved-event sweep.
//
// Responses:
// - 503 Service Unavailable: If no webhook secret is configured.
// - 401 Unauthorized: If the signature is missing or does not verify.
// - 400 Bad Request: If the payload is malformed.
// - 200 OK: If the event is durably recorded (including duplicates).
func (a Api) IngestProviderEvent(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if conf.Provider.WebhookSecret == "" {
		// an unset secret must not silently open the endpoint
		logrus.Error("Provider webhook secret is not configured, refusing event")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook verification is not configured"})
		return
	}
	signature := c.GetHeader(signatureHeader)
	if !provider.VerifySignature(body, signature, conf.Provider.WebhookSecret) {
		logrus.Warn("Rejected provider webhook with bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	event, err := a.disburse.ProcessProviderEvent(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event_id": event.EventID})
}
