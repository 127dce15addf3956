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
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Reindex triggers a full rebuild of the search collections from the
// database. The rebuild runs asynchronously to avoid HTTP timeouts.
//
// Responses:
// - 202 Accepted: Reindex started.
func (a Api) Reindex(c *gin.Context) {
	go func() {
		_, _ = a.disburse.ReindexSearch(context.Background())
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Reindex operation started"})
}
