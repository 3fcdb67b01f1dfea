package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("device-secret"), []byte("device-salt-0001"))
	require.NoError(t, err)

	plain := []byte(`{"token":"T1","refreshToken":"R1"}`)

	sealed, err := s.Seal(plain, []byte("auth-tokens"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "T1")

	opened, err := s.Open(sealed, []byte("auth-tokens"))
	require.NoError(t, err)
	require.Equal(t, plain, opened)
}

func TestSealRandomNonce(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("device-secret"), []byte("salt"))
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)

	// Random nonce per seal, so ciphertexts differ
	require.NotEqual(t, a, b)
}

func TestOpenFailures(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("device-secret"), []byte("salt"))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"), []byte("auth-tokens"))
	require.NoError(t, err)

	t.Run("wrong additional data", func(t *testing.T) {
		_, err := s.Open(sealed, []byte("auth-storage"))
		require.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := cryptox.NewSealer([]byte("other-secret"), []byte("salt"))
		require.NoError(t, err)

		_, err = other.Open(sealed, []byte("auth-tokens"))
		require.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := s.Open(sealed[:4], []byte("auth-tokens"))
		require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
	})

	t.Run("tampered", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 0xff

		_, err := s.Open(bad, []byte("auth-tokens"))
		require.Error(t, err)
	})
}

func TestNewSealerRejectsEmptySecret(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewSealer(nil, []byte("salt"))
	require.Error(t, err)
}
