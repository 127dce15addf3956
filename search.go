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

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/paygrid/disburse/internal/search"
)

// Search performs a search on the specified collection using the provided
// query parameters.
func (d *Disburse) Search(collection string, query *api.SearchCollectionParams) (interface{}, error) {
	return d.search.Search(context.Background(), collection, query)
}

// MultiSearch performs a multi-search operation across collections.
func (d *Disburse) MultiSearch(searchParams *api.MultiSearchSearchesParameter) (*api.MultiSearchResult, error) {
	return d.search.MultiSearch(context.Background(), *searchParams)
}

// IndexData upserts one document into a search collection. The workers
// command invokes this for every queued index task.
func (d *Disburse) IndexData(ctx context.Context, collection string, data map[string]interface{}) error {
	return d.search.HandleNotification(ctx, collection, data)
}

// EnsureSearchCollections creates any missing search collections.
func (d *Disburse) EnsureSearchCollections(ctx context.Context) error {
	return d.search.EnsureCollectionsExist(ctx)
}

// ReindexSearch drops and rebuilds every search collection from the
// database. Used after schema changes or index corruption.
func (d *Disburse) ReindexSearch(ctx context.Context) (*search.ReindexProgress, error) {
	svc := search.NewReindexService(d.search, d.datasource, search.ReindexConfig{})
	return svc.StartReindex(ctx)
}
