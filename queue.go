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
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/paygrid/disburse/config"
	redis_db "github.com/paygrid/disburse/internal/redis-db"
	"github.com/paygrid/disburse/model"
)

// Queue represents a queue for handling payout, webhook and index tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// PayoutTypePayload represents the payload for a payout task.
type PayoutTypePayload struct {
	Data model.DisbursementTransaction
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueuePayout enqueues a disbursement transaction for dispatch to the
// provider. A positive delay schedules the task for later, which is how
// backoff between retry attempts is realized.
func (q *Queue) EnqueuePayout(ctx context.Context, transaction *model.DisbursementTransaction, delay time.Duration) error {
	ctx, span := tracer.Start(ctx, "Adding payout to queue")
	defer span.End()

	payload, err := json.Marshal(transaction)
	if err != nil {
		return err
	}
	task, err := q.payoutTask(transaction, payload, delay)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			// same attempt already queued by a concurrent sweep
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued payout: %+v", transaction.TransactionID)
	return nil
}

// queueIndexData enqueues a task to index data in a specified collection.
func (q *Queue) queueIndexData(id string, collection string, data interface{}) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.TypeSense.Dns == "" {
		return nil
	}

	payload := map[string]interface{}{
		"collection": collection,
		"payload":    data,
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.IndexQueue)}
	task := asynq.NewTask(cfg.Queue.IndexQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued index data: %+v", id)
	return nil
}

// payoutTask generates a task for a transaction and assigns it to a specific
// queue based on the payee reference. Hashing the payee reference means all
// transfers to the same payee land in the same queue and are processed
// serially, so one struggling payee never stalls the others. The task id
// carries the retry count, which dedups the same attempt while still
// admitting the next one.
func (q *Queue) payoutTask(transaction *model.DisbursementTransaction, payload []byte, delay time.Duration) (*asynq.Task, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	queueIndex := hashPayeeRef(transaction.PayeeRef) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.PayoutQueue, queueIndex+1)

	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s_%d", transaction.TransactionID, transaction.RetryCount)),
		asynq.Queue(queueName),
	}
	if delay > 0 {
		taskOptions = append(taskOptions, asynq.ProcessIn(delay))
	}

	return asynq.NewTask(queueName, payload, taskOptions...), nil
}

// hashPayeeRef returns a consistent hash value for a payee reference.
func hashPayeeRef(payeeRef string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(payeeRef))
	return int(hasher.Sum32())
}
