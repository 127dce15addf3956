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
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRecordCommission(t *testing.T) {
	valid := &RecordCommission{AffiliateID: "aff_1", Amount: 2500, Currency: "USD"}
	assert.NoError(t, valid.ValidateRecordCommission())

	approved := &RecordCommission{AffiliateID: "aff_1", Amount: 2500, Currency: "USD", Status: "APPROVED"}
	assert.NoError(t, approved.ValidateRecordCommission())

	assert.Error(t, (&RecordCommission{Amount: 2500, Currency: "USD"}).ValidateRecordCommission())
	assert.Error(t, (&RecordCommission{AffiliateID: "aff_1", Currency: "USD"}).ValidateRecordCommission())
	assert.Error(t, (&RecordCommission{AffiliateID: "aff_1", Amount: 2500}).ValidateRecordCommission())
	assert.Error(t, (&RecordCommission{AffiliateID: "aff_1", Amount: 2500, Currency: "USD", Status: "PAID"}).ValidateRecordCommission())
}

func TestToCommission(t *testing.T) {
	req := &RecordCommission{AffiliateID: "aff_1", Amount: 2500, Currency: "USD", Status: "APPROVED"}
	cms := req.ToCommission()
	assert.Equal(t, "aff_1", cms.AffiliateID)
	assert.Equal(t, int64(2500), cms.Amount)
	assert.Equal(t, "APPROVED", cms.Status)
}

func TestValidateCreatePayee(t *testing.T) {
	valid := &CreatePayee{AffiliateID: "aff_1", Name: "Ada Eze", Currency: "USD"}
	assert.NoError(t, valid.ValidateCreatePayee())

	assert.Error(t, (&CreatePayee{Name: "Ada Eze", Currency: "USD"}).ValidateCreatePayee())
	assert.Error(t, (&CreatePayee{AffiliateID: "aff_1", Currency: "USD"}).ValidateCreatePayee())
	assert.Error(t, (&CreatePayee{AffiliateID: "aff_1", Name: "Ada Eze"}).ValidateCreatePayee())
}
