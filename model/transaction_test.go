package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_LegalMoves(t *testing.T) {
	legal := [][2]string{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusPending},
		{StatusPending, StatusFailed},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusPending},
		{StatusProcessing, StatusCancelled},
	}
	for _, pair := range legal {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s should be legal", pair[0], pair[1])
	}
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	all := []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}
	for _, terminal := range []string{StatusCompleted, StatusFailed, StatusCancelled} {
		for _, next := range all {
			assert.False(t, CanTransition(terminal, next), "%s -> %s must be illegal", terminal, next)
		}
	}
}

func TestCanTransitionTo_UsesCurrentStatus(t *testing.T) {
	txn := &DisbursementTransaction{Status: StatusProcessing}
	assert.True(t, txn.CanTransitionTo(StatusCompleted))

	txn.Status = StatusCompleted
	assert.False(t, txn.CanTransitionTo(StatusCompleted))
	assert.False(t, txn.CanTransitionTo(StatusFailed))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusPending))
	assert.False(t, IsTerminal(StatusProcessing))
}

func TestRetryDelay_DoublesAndCaps(t *testing.T) {
	base := 10 * time.Second
	max := 5 * time.Minute

	for i := 0; i < 20; i++ {
		d0 := RetryDelay(0, base, max)
		assert.InDelta(t, float64(base), float64(d0), float64(base)*0.2+1)

		d3 := RetryDelay(3, base, max)
		assert.InDelta(t, float64(80*time.Second), float64(d3), float64(80*time.Second)*0.2+1)

		d10 := RetryDelay(10, base, max)
		assert.LessOrEqual(t, d10, max+max/5)
	}
}

func TestDeriveBatchStatus(t *testing.T) {
	assert.Equal(t, BatchStatusEmpty, DeriveBatchStatus(0, 0))
	assert.Equal(t, BatchStatusOpen, DeriveBatchStatus(3, 2))
	assert.Equal(t, BatchStatusCompleted, DeriveBatchStatus(3, 3))
}
