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
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/model"
)

func TestGetEventFromStatus(t *testing.T) {
	assert.Equal(t, "transaction.pending", getEventFromStatus(model.StatusPending))
	assert.Equal(t, "transaction.processing", getEventFromStatus(model.StatusProcessing))
	assert.Equal(t, "transaction.completed", getEventFromStatus(model.StatusCompleted))
	assert.Equal(t, "transaction.failed", getEventFromStatus(model.StatusFailed))
	assert.Equal(t, "transaction.cancelled", getEventFromStatus(model.StatusCancelled))
	assert.Equal(t, "transaction.unknown", getEventFromStatus("SOMETHING_ELSE"))
}

func TestSendWebhook(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cnf := &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{WebhookQueue: "webhook_queue"},
	}
	cnf.Notification.Webhook.Url = "http://localhost:8080"
	config.MockConfig(cnf)

	err = SendWebhook(NewWebhook{
		Event:   "transaction.completed",
		Payload: map[string]interface{}{"transaction_id": "dtx_1"},
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())
}

func TestSendWebhook_NoUrlConfigured(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{WebhookQueue: "webhook_queue"},
	})

	err = SendWebhook(NewWebhook{Event: "transaction.completed"})
	assert.NoError(t, err)
	// nothing reaches the queue without a destination
	assert.Empty(t, mr.Keys())
}

func TestProcessWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://localhost:8080/hooks",
		httpmock.NewStringResponder(200, `{"ok":true}`))

	cnf := &config.Configuration{
		Queue: config.QueueConfig{WebhookQueue: "webhook_queue"},
	}
	cnf.Notification.Webhook.Url = "http://localhost:8080/hooks"
	cnf.Notification.Webhook.Headers = map[string]string{"X-Source": "disburse"}
	config.MockConfig(cnf)

	payload, err := json.Marshal(NewWebhook{
		Event:   "transaction.completed",
		Payload: map[string]interface{}{"transaction_id": "dtx_1"},
	})
	require.NoError(t, err)

	task := asynq.NewTask("webhook_queue", payload)
	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
