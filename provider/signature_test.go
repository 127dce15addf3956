package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1","type":"payment.completed"}`)
	secret := "whsec_test"

	sig := SignPayload(payload, secret)
	assert.True(t, VerifySignature(payload, sig, secret))
	assert.True(t, VerifySignature(payload, "sha256="+sig, secret))
}

func TestVerifySignature_Rejects(t *testing.T) {
	payload := []byte(`{"event_id":"evt_1"}`)
	secret := "whsec_test"
	sig := SignPayload(payload, secret)

	assert.False(t, VerifySignature([]byte(`{"event_id":"evt_2"}`), sig, secret), "tampered payload")
	assert.False(t, VerifySignature(payload, sig, "other-secret"), "wrong secret")
	assert.False(t, VerifySignature(payload, "", secret), "empty signature")
	assert.False(t, VerifySignature(payload, sig, ""), "empty secret")
}
