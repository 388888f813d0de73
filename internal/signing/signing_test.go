package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	payload := []byte(`{"username":"ada"}`)
	sig := s.Sign(payload, 1700000000)
	require.Len(t, sig, 64)

	assert.True(t, s.Validate(payload, 1700000000, sig))
	// every input participates in the signature
	assert.False(t, s.Validate([]byte(`{"username":"eve"}`), 1700000000, sig))
	assert.False(t, s.Validate(payload, 42, sig))
	assert.False(t, NewSigner([]byte("other")).Validate(payload, 1700000000, sig))
}

func TestVerifyExpiry(t *testing.T) {
	s := NewSigner([]byte("k"))
	now := time.Unix(1700000000, 0)
	exp := now.Add(time.Hour).Unix()
	sig := s.Sign([]byte("x"), exp)

	assert.True(t, s.Verify([]byte("x"), exp, sig, now))
	assert.False(t, s.Verify([]byte("x"), exp, sig, now.Add(time.Hour)))
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, a, KeySize)
	assert.NotEqual(t, a, b)
}
