package model

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("dtx")
	assert.True(t, strings.HasPrefix(id, "dtx_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("dtx"))
}

func TestProviderAmount(t *testing.T) {
	// $45.00 in cents -> 7-decimal native units
	native := ProviderAmount(4500, 2, 7)
	assert.True(t, native.Equal(decimal.NewFromInt(450000000)), "got %s", native)

	back := MinorFromProvider(native, 2, 7)
	assert.Equal(t, int64(4500), back)
}

func TestMinorFromProvider_TruncatesDust(t *testing.T) {
	// 450000009 native units is $45.00 plus sub-cent dust
	native := decimal.NewFromInt(450000009)
	assert.Equal(t, int64(4500), MinorFromProvider(native, 2, 7))
}

func TestCommissionPayable(t *testing.T) {
	c := &Commission{Status: CommissionStatusPending}
	assert.True(t, c.Payable())

	c.Status = CommissionStatusApproved
	assert.True(t, c.Payable())

	c.BatchID = "bat_1"
	assert.False(t, c.Payable(), "claimed commission must not be payable")

	c = &Commission{Status: CommissionStatusPaid}
	assert.False(t, c.Payable())
	c = &Commission{Status: CommissionStatusCancelled}
	assert.False(t, c.Payable())
}

func TestPayeeEligible(t *testing.T) {
	p := &Payee{KYCStatus: KYCStatusApproved, ProviderRef: "GA7X"}
	assert.True(t, p.Eligible())

	for _, status := range []string{KYCStatusPending, KYCStatusSubmitted, KYCStatusRejected, KYCStatusExpired} {
		p.KYCStatus = status
		assert.False(t, p.Eligible())
	}

	p = &Payee{KYCStatus: KYCStatusApproved}
	assert.False(t, p.Eligible(), "payee without provider ref must not be eligible")
}

func TestNormalizeEventType(t *testing.T) {
	assert.Equal(t, EventTypePaymentCompleted, NormalizeEventType("payment.completed"))
	assert.Equal(t, EventTypeUnknown, NormalizeEventType("payment.exploded"))
}

func TestTargetStatus(t *testing.T) {
	status, ok := TargetStatus(EventTypePaymentCompleted)
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, status)

	status, ok = TargetStatus(EventTypePaymentFailed)
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, status)

	_, ok = TargetStatus(EventTypeAccountUpdated)
	assert.False(t, ok)
	_, ok = TargetStatus(EventTypeUnknown)
	assert.False(t, ok)
}
