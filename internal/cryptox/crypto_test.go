package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T, secret string) *Sealer {
	t.Helper()
	key, err := DeriveKey([]byte(secret), "test")
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("secret"), "totp")
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("secret"), "totp")
	require.NoError(t, err)
	k3, err := DeriveKey([]byte("secret"), "other")
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestNewSealer_BadKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	require.Error(t, err)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s := newSealer(t, "secret")

	sealed, err := s.Seal([]byte("JBSWY3DPEHPK3PXP"), []byte("acc-1"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	plain, err := s.Open(sealed, []byte("acc-1"))
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", string(plain))
}

func TestSeal_FreshNonce(t *testing.T) {
	s := newSealer(t, "secret")

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_Rejects(t *testing.T) {
	s := newSealer(t, "secret")
	sealed, err := s.Seal([]byte("value"), []byte("acc-1"))
	require.NoError(t, err)

	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.RawStdEncoding.EncodeToString(raw)

	tests := []struct {
		name   string
		sealer *Sealer
		value  string
		owner  string
	}{
		{"other owner", s, sealed, "acc-2"},
		{"other key", newSealer(t, "another"), sealed, "acc-1"},
		{"tampered", s, tampered, "acc-1"},
		{"not base64", s, "***", "acc-1"},
		{"too short", s, base64.RawStdEncoding.EncodeToString([]byte("abc")), "acc-1"},
		{"empty", s, "", "acc-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sealer.Open(tt.value, []byte(tt.owner))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
