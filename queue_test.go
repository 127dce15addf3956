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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueuePayout(t *testing.T) {
	d, _, _, mr := newTestEngine(t)
	txn := pendingTxn()

	err := d.queue.EnqueuePayout(context.Background(), txn, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())
}

func TestEnqueuePayout_SameAttemptIsDeduped(t *testing.T) {
	d, _, _, _ := newTestEngine(t)
	txn := pendingTxn()

	err := d.queue.EnqueuePayout(context.Background(), txn, 0)
	require.NoError(t, err)
	// a concurrent sweep enqueueing the same attempt is a silent no-op
	err = d.queue.EnqueuePayout(context.Background(), txn, 0)
	assert.NoError(t, err)
}

func TestEnqueuePayout_NextAttemptIsAdmitted(t *testing.T) {
	d, _, _, _ := newTestEngine(t)
	txn := pendingTxn()

	err := d.queue.EnqueuePayout(context.Background(), txn, 0)
	require.NoError(t, err)

	// the rearm bumps retry_count, which changes the task id
	txn.RetryCount = 1
	err = d.queue.EnqueuePayout(context.Background(), txn, 2*time.Minute)
	assert.NoError(t, err)
}

func TestPayoutTask_QueueAssignmentIsStable(t *testing.T) {
	d, _, _, _ := newTestEngine(t)
	txn := pendingTxn()
	payload, err := json.Marshal(txn)
	require.NoError(t, err)

	first, err := d.queue.payoutTask(txn, payload, 0)
	require.NoError(t, err)

	// all transfers to the same payee land in the same queue
	for i := 0; i < 5; i++ {
		txn.TransactionID = fmt.Sprintf("dtx_%d", i)
		task, err := d.queue.payoutTask(txn, payload, 0)
		require.NoError(t, err)
		assert.Equal(t, first.Type(), task.Type())
	}

	// a different payee may hash elsewhere but always inside the band
	txn.PayeeRef = "acct_other"
	task, err := d.queue.payoutTask(txn, payload, 0)
	require.NoError(t, err)
	assert.Contains(t, task.Type(), "new:payout_")
}

func TestHashPayeeRef(t *testing.T) {
	assert.Equal(t, hashPayeeRef("acct_1"), hashPayeeRef("acct_1"))
	assert.NotEqual(t, hashPayeeRef("acct_1"), hashPayeeRef("acct_2"))
}
