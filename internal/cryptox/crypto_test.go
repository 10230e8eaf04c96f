package cryptox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("install-secret")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(secret, salt)
	key2 := DeriveKey(secret, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	secret := []byte("install-secret")

	key1 := DeriveKey(secret, []byte("salt-1"))
	key2 := DeriveKey(secret, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))

	ct, nonce, err := Seal([]byte("token-value"), key, []byte("session_token"))
	require.NoError(t, err)
	require.NotEqual(t, []byte("token-value"), ct)

	pt, err := Open(ct, nonce, key, []byte("session_token"))
	require.NoError(t, err)
	require.Equal(t, []byte("token-value"), pt)
}

func TestOpen_DetectsTampering(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))
	ct, nonce, err := Seal([]byte("value"), key, []byte("user_id"))
	require.NoError(t, err)

	ct[0] ^= 0xFF
	_, err = Open(ct, nonce, key, []byte("user_id"))
	require.True(t, errors.Is(err, ErrOpen))
}

func TestOpen_RejectsSwappedEntry(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))
	ct, nonce, err := Seal([]byte("value"), key, []byte("user_id"))
	require.NoError(t, err)

	_, err = Open(ct, nonce, key, []byte("session_token"))
	require.ErrorIs(t, err, ErrOpen)
}

func TestOpen_WrongKey(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))
	other := DeriveKey([]byte("other"), []byte("salt"))
	ct, nonce, err := Seal([]byte("value"), key, nil)
	require.NoError(t, err)

	_, err = Open(ct, nonce, other, nil)
	require.ErrorIs(t, err, ErrOpen)
}

func TestOpen_BadNonceLength(t *testing.T) {
	key := DeriveKey([]byte("s"), []byte("salt"))
	_, err := Open([]byte("x"), []byte{1, 2}, key, nil)
	require.ErrorIs(t, err, ErrOpen)
}

func TestFingerprint_Stable(t *testing.T) {
	require.Equal(t, Fingerprint([]byte("abc")), Fingerprint([]byte("abc")))
	require.Len(t, Fingerprint([]byte("abc")), 32)
}
