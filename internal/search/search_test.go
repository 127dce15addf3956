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
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTransactionSchemaHasRetryCount verifies that the transaction schema
// exposes retry_count so retry exhaustion is queryable
func TestTransactionSchemaHasRetryCount(t *testing.T) {
	schema := getTransactionSchema()

	var foundRetryCount bool
	var retryCountType string

	for _, field := range schema.Fields {
		if field.Name == "retry_count" {
			foundRetryCount = true
			retryCountType = field.Type
			break
		}
	}

	assert.True(t, foundRetryCount, "Transaction schema should include retry_count field")
	assert.Equal(t, "int32", retryCountType)
}

// TestTransactionSchemaDefaultSortField verifies that created_at is the
// default sort field
func TestTransactionSchemaDefaultSortField(t *testing.T) {
	schema := getTransactionSchema()

	assert.NotNil(t, schema.DefaultSortingField, "Default sorting field should be set")
	assert.Equal(t, "created_at", *schema.DefaultSortingField)
}

// TestTransactionCollectionTimeFieldsComplete verifies all time-related
// fields are normalized to Unix timestamps before indexing
func TestTransactionCollectionTimeFieldsComplete(t *testing.T) {
	config, ok := collectionConfigs[CollectionTransactions]
	assert.True(t, ok, "Transaction collection config should exist")

	expectedTimeFields := []string{
		"created_at",
		"last_retry_at",
		"completed_at",
		"failed_at",
	}

	for _, expected := range expectedTimeFields {
		var found bool
		for _, actual := range config.TimeFields {
			if actual == expected {
				found = true
				break
			}
		}
		assert.True(t, found, "TimeFields should include %s", expected)
	}
}

// TestCollectionConfigsCoverAllCollections verifies every searchable
// collection carries a schema
func TestCollectionConfigsCoverAllCollections(t *testing.T) {
	for _, name := range []string{CollectionPayees, CollectionCommissions, CollectionBatches, CollectionTransactions} {
		config, ok := collectionConfigs[name]
		assert.True(t, ok, "collection config missing for %s", name)
		assert.NotNil(t, config.Schema, "schema missing for %s", name)
		assert.Equal(t, name, config.Schema.Name)
	}
}
