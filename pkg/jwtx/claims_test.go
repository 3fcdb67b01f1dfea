package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	signer := jwtx.HS256{Secret: []byte("test-secret")}

	t.Run("round trip", func(t *testing.T) {
		raw, err := signer.Sign("staff-7", time.Hour)
		require.NoError(t, err)

		c, err := jwtx.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, "staff-7", c.Subject)
		require.NotZero(t, c.ExpiresAtUnix())
		require.NotZero(t, c.IssuedAtUnix())
		require.Greater(t, c.ExpiresAtUnix(), c.IssuedAtUnix())
	})

	t.Run("signature is not checked", func(t *testing.T) {
		other := jwtx.HS256{Secret: []byte("someone-else")}
		raw, err := other.Sign("staff-7", time.Hour)
		require.NoError(t, err)

		_, err = jwtx.Decode(raw)
		require.NoError(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jwtx.Decode("definitely.not.ajwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)

		_, err = jwtx.Decode("")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("missing exp", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).
			SignedString([]byte("k"))
		require.NoError(t, err)

		_, err = jwtx.Decode(raw)
		require.ErrorIs(t, err, jwtx.ErrMissingExpiry)
	})
}

func TestLiveAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now),
	}}

	// exp must be strictly greater than now
	require.False(t, c.LiveAt(now))
	require.True(t, c.LiveAt(now.Add(-time.Second)))
	require.False(t, c.LiveAt(now.Add(time.Second)))

	require.False(t, jwtx.Claims{}.LiveAt(now))
}

func TestIsLive(t *testing.T) {
	signer := jwtx.HS256{Secret: []byte("test-secret")}

	live, err := signer.Sign("a", time.Minute)
	require.NoError(t, err)
	expired, err := signer.Sign("a", -time.Minute)
	require.NoError(t, err)

	require.True(t, jwtx.IsLive(live, time.Now()))
	require.False(t, jwtx.IsLive(expired, time.Now()))
	require.False(t, jwtx.IsLive("nope", time.Now()))
}

func TestVerify(t *testing.T) {
	signer := jwtx.HS256{Secret: []byte("test-secret")}

	t.Run("valid", func(t *testing.T) {
		raw, err := signer.Sign("staff-1", time.Minute)
		require.NoError(t, err)

		c, err := signer.Verify(raw)
		require.NoError(t, err)
		require.Equal(t, "staff-1", c.Subject)
	})

	t.Run("expired", func(t *testing.T) {
		raw, err := signer.Sign("staff-1", -time.Minute)
		require.NoError(t, err)

		_, err = signer.Verify(raw)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		raw, err := jwtx.HS256{Secret: []byte("other")}.Sign("staff-1", time.Minute)
		require.NoError(t, err)

		_, err = signer.Verify(raw)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("tokens minted in the same second differ", func(t *testing.T) {
		a, err := signer.Sign("staff-1", time.Minute)
		require.NoError(t, err)
		b, err := signer.Sign("staff-1", time.Minute)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}
