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

package disburse

import (
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/database"
	"github.com/paygrid/disburse/internal/notification"
	redis_db "github.com/paygrid/disburse/internal/redis-db"
	"github.com/paygrid/disburse/internal/search"
	"github.com/paygrid/disburse/provider"
)

var tracer = otel.Tracer("disburse.service")

// Disburse is the disbursement engine: eligibility and aggregation, the batch
// orchestrator, the retry scheduler and the webhook reconciler, all sharing
// one datasource, one provider client and one task queue.
type Disburse struct {
	queue      *Queue
	search     *search.TypesenseClient
	redis      redis.UniversalClient
	datasource database.IDataSource
	provider   provider.Client
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewDisburse initializes the engine with the provided datasource. It fetches
// the configuration and wires the Redis client, the task queue, the search
// client and the payout provider client.
func NewDisburse(db database.IDataSource) (*Disburse, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newSearch := search.NewTypesenseClient(configuration.TypeSenseKey, []string{configuration.TypeSense.Dns})

	d := &Disburse{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		search:     newSearch,
		provider:   newProviderClient(configuration),
	}
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return SendWebhook(NewWebhook{Event: event, Payload: payload})
	})
	return d, nil
}

// newProviderClient picks the payout provider implementation. Without a
// configured base URL the in-memory mock serves local development.
func newProviderClient(conf *config.Configuration) provider.Client {
	if conf.Provider.BaseUrl == "" {
		return provider.NewMockClient()
	}
	return provider.NewHTTPClient(conf)
}
