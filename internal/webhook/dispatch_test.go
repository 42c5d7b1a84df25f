package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_IsDeterministic(t *testing.T) {
	payload := []byte(`{"proposalId":"p1"}`)
	a := sign("secret", payload)
	b := sign("secret", payload)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestSign_DiffersByPayloadAndSecret(t *testing.T) {
	payload := []byte(`{"proposalId":"p1"}`)
	base := sign("secret", payload)

	assert.NotEqual(t, base, sign("other-secret", payload))
	assert.NotEqual(t, base, sign("secret", []byte(`{"proposalId":"p2"}`)))
}
