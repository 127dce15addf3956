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

package search

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/paygrid/disburse/database"
)

// ReindexProgress tracks the progress of a reindex operation.
type ReindexProgress struct {
	Status           string     `json:"status"` // "in_progress", "completed", "failed"
	Phase            string     `json:"phase"`
	TotalRecords     int64      `json:"total_records"`
	ProcessedRecords int64      `json:"processed_records"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ReindexConfig holds configuration for reindexing.
type ReindexConfig struct {
	BatchSize int
}

// ReindexService rebuilds the search collections from the database.
type ReindexService struct {
	client     *TypesenseClient
	datasource database.IDataSource
	config     ReindexConfig
	progress   *ReindexProgress
	mu         sync.RWMutex
}

// NewReindexService creates a new ReindexService instance.
func NewReindexService(client *TypesenseClient, datasource database.IDataSource, config ReindexConfig) *ReindexService {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &ReindexService{
		client:     client,
		datasource: datasource,
		config:     config,
		progress: &ReindexProgress{
			Status: "pending",
		},
	}
}

// GetProgress returns the current progress of the reindex operation.
func (r *ReindexService) GetProgress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.progress
}

func (r *ReindexService) updateProgress(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
}

func (r *ReindexService) addIndexed(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.ProcessedRecords += n
	r.progress.TotalRecords = r.progress.ProcessedRecords
}

func (r *ReindexService) addError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Errors = append(r.progress.Errors, err)
}

// StartReindex drops all collections, recreates them, and reindexes in
// dependency order: payees -> commissions -> batches -> transactions.
func (r *ReindexService) StartReindex(ctx context.Context) (*ReindexProgress, error) {
	r.mu.Lock()
	r.progress = &ReindexProgress{
		Status:    "in_progress",
		Phase:     "starting",
		StartedAt: time.Now(),
	}
	r.mu.Unlock()

	logrus.Info("Starting reindex operation")

	r.updateProgress("drop_collections")
	if err := r.client.DropAllCollections(ctx); err != nil {
		return r.failWithError(err, "drop_collections")
	}

	r.updateProgress("create_collections")
	if err := r.client.EnsureCollectionsExist(ctx); err != nil {
		return r.failWithError(err, "create_collections")
	}

	if err := r.indexPayees(ctx); err != nil {
		return r.failWithError(err, "indexing_payees")
	}

	if err := r.indexCommissions(ctx); err != nil {
		return r.failWithError(err, "indexing_commissions")
	}

	if err := r.indexBatches(ctx); err != nil {
		return r.failWithError(err, "indexing_batches")
	}

	if err := r.indexTransactions(ctx); err != nil {
		return r.failWithError(err, "indexing_transactions")
	}

	r.mu.Lock()
	r.progress.Status = "completed"
	r.progress.Phase = "done"
	r.progress.CompletedAt = ptr.Time(time.Now())
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"total_records":     r.progress.TotalRecords,
		"processed_records": r.progress.ProcessedRecords,
		"duration":          time.Since(r.progress.StartedAt).String(),
	}).Info("Reindex operation completed")

	return r.GetProgressPtr(), nil
}

// GetProgressPtr returns a pointer to a copy of the current progress.
func (r *ReindexService) GetProgressPtr() *ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	progress := *r.progress
	return &progress
}

func (r *ReindexService) failWithError(err error, phase string) (*ReindexProgress, error) {
	r.mu.Lock()
	r.progress.Status = "failed"
	r.progress.Phase = phase
	r.progress.CompletedAt = ptr.Time(time.Now())
	r.progress.Errors = append(r.progress.Errors, err.Error())
	r.mu.Unlock()

	logrus.WithError(err).WithField("phase", phase).Error("Reindex operation failed")
	return r.GetProgressPtr(), err
}

func (r *ReindexService) indexPayees(ctx context.Context) error {
	r.updateProgress("indexing_payees")

	var offset int
	for {
		payees, err := r.datasource.GetAllPayees(ctx, r.config.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(payees) == 0 {
			break
		}

		var indexed int64
		for _, payee := range payees {
			data, err := toMap(payee)
			if err != nil {
				r.addError("payee " + payee.PayeeAccountID + ": " + err.Error())
				continue
			}
			if err := r.client.HandleNotification(ctx, CollectionPayees, data); err != nil {
				r.addError("payee " + payee.PayeeAccountID + ": " + err.Error())
				continue
			}
			indexed++
		}
		r.addIndexed(indexed)
		offset += len(payees)
	}
	return nil
}

func (r *ReindexService) indexCommissions(ctx context.Context) error {
	r.updateProgress("indexing_commissions")

	var offset int
	for {
		commissions, err := r.datasource.GetAllCommissions(ctx, r.config.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(commissions) == 0 {
			break
		}

		var indexed int64
		for _, commission := range commissions {
			data, err := toMap(commission)
			if err != nil {
				r.addError("commission " + commission.CommissionID + ": " + err.Error())
				continue
			}
			if err := r.client.HandleNotification(ctx, CollectionCommissions, data); err != nil {
				r.addError("commission " + commission.CommissionID + ": " + err.Error())
				continue
			}
			indexed++
		}
		r.addIndexed(indexed)
		offset += len(commissions)
	}
	return nil
}

func (r *ReindexService) indexBatches(ctx context.Context) error {
	r.updateProgress("indexing_batches")

	var offset int
	for {
		batches, err := r.datasource.GetAllBatches(ctx, r.config.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			break
		}

		var indexed int64
		for _, batch := range batches {
			data, err := toMap(batch)
			if err != nil {
				r.addError("batch " + batch.BatchID + ": " + err.Error())
				continue
			}
			if err := r.client.HandleNotification(ctx, CollectionBatches, data); err != nil {
				r.addError("batch " + batch.BatchID + ": " + err.Error())
				continue
			}
			indexed++
		}
		r.addIndexed(indexed)
		offset += len(batches)
	}
	return nil
}

func (r *ReindexService) indexTransactions(ctx context.Context) error {
	r.updateProgress("indexing_transactions")

	var offset int
	for {
		transactions, err := r.datasource.GetAllTransactions(ctx, r.config.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(transactions) == 0 {
			break
		}

		var indexed int64
		for _, transaction := range transactions {
			data, err := toMap(transaction)
			if err != nil {
				r.addError("transaction " + transaction.TransactionID + ": " + err.Error())
				continue
			}
			if err := r.client.HandleNotification(ctx, CollectionTransactions, data); err != nil {
				r.addError("transaction " + transaction.TransactionID + ": " + err.Error())
				continue
			}
			indexed++
		}
		r.addIndexed(indexed)
		offset += len(transactions)
	}
	return nil
}

func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// DropCollection deletes a collection from Typesense.
func (t *TypesenseClient) DropCollection(ctx context.Context, collectionName string) error {
	_, err := t.Client.Collection(collectionName).Delete(ctx)
	if err != nil && !strings.Contains(err.Error(), "not found") && !strings.Contains(err.Error(), "Not Found") {
		return err
	}
	return nil
}

// DropAllCollections drops all known collections from Typesense.
func (t *TypesenseClient) DropAllCollections(ctx context.Context) error {
	collections := []string{
		CollectionPayees,
		CollectionCommissions,
		CollectionBatches,
		CollectionTransactions,
	}

	for _, c := range collections {
		logrus.WithField("collection", c).Debug("Dropping collection")
		if err := t.DropCollection(ctx, c); err != nil {
			return err
		}
	}

	return nil
}
