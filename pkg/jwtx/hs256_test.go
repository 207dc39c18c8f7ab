package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authclient/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestHS256_SignAndVerify(t *testing.T) {
	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)
	require.Equal(t, "HS256", signer.Alg())

	claims := jwtx.NewAccessClaims("1", "alice@example.com", "user", []string{"pwd"}, time.Minute, "authstub", time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := signer.Verifier("authstub").Verify(token)
	require.NoError(t, err)
	require.Equal(t, "1", got.Subject)
	require.Equal(t, "alice@example.com", got.Email)
}

func TestHS256_ShortSecret(t *testing.T) {
	_, err := jwtx.NewSignerHS256([]byte("short"))
	require.Error(t, err)
}

func TestHS256_VerifyFailures(t *testing.T) {
	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)

	valid, err := signer.Sign(jwtx.NewAccessClaims("1", "", "", nil, time.Minute, "authstub", time.Now()))
	require.NoError(t, err)

	expired, err := signer.Sign(jwtx.NewAccessClaims("1", "", "", nil, time.Minute, "authstub", time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	other, err := jwtx.NewSignerHS256([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	forged, err := other.Sign(jwtx.NewAccessClaims("1", "", "", nil, time.Minute, "authstub", time.Now()))
	require.NoError(t, err)

	v := signer.Verifier("authstub")

	t.Run("malformed", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(expired)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := v.Verify(forged)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := signer.Verifier("elsewhere").Verify(valid)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})
}

func TestInspect(t *testing.T) {
	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	token, err := signer.Sign(jwtx.NewAccessClaims("7", "bob@example.com", "", nil, time.Hour, "authstub", now))
	require.NoError(t, err)

	t.Run("valid jwt", func(t *testing.T) {
		c, err := jwtx.Inspect(token)
		require.NoError(t, err)
		require.Equal(t, "7", c.Subject)
		require.Equal(t, now.Add(time.Hour), c.Expiry())
	})

	t.Run("signature is not checked", func(t *testing.T) {
		parts := strings.Split(token, ".")
		c, err := jwtx.Inspect(parts[0] + "." + parts[1] + ".bogus")
		require.NoError(t, err)
		require.Equal(t, "7", c.Subject)
	})

	for _, bad := range []string{"", "a1", "a.b", "a.b.c.d", "!!.??.##"} {
		t.Run("malformed "+bad, func(t *testing.T) {
			_, err := jwtx.Inspect(bad)
			require.ErrorIs(t, err, jwtx.ErrMalformed)
		})
	}
}
