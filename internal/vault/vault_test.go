package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := New(key)
	require.NoError(t, err)
	return v
}

func ptr[T any](v T) *T { return &v }

func TestSealRoundTrip(t *testing.T) {
	v := newTestVault(t)
	submitted := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	cases := []Fields{
		{Amount: 450000, SubmittedAt: submitted},
		{Amount: 470000.5, TechnicalSummary: ptr("Two-storey block, 6 classrooms"), DeliveryTimelineDays: ptr(90), WarrantyMonths: ptr(12), SubmittedAt: submitted},
		{Amount: 1, TechnicalSummary: ptr(""), WarrantyMonths: ptr(0), SubmittedAt: submitted},
	}
	for _, f := range cases {
		blob, err := v.Seal(f)
		require.NoError(t, err)
		got, err := v.Unseal(blob)
		require.NoError(t, err)
		require.Equal(t, f, got)
	}
}

func TestSealDoesNotLeakPlaintext(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Seal(Fields{Amount: 987654321, TechnicalSummary: ptr("confidential-method")})
	require.NoError(t, err)
	require.False(t, bytes.Contains(blob, []byte("987654321")))
	require.False(t, bytes.Contains(blob, []byte("confidential-method")))
}

func TestSealUsesFreshNonce(t *testing.T) {
	v := newTestVault(t)
	f := Fields{Amount: 100}
	a, err := v.Seal(f)
	require.NoError(t, err)
	b, err := v.Seal(f)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestUnsealRejectsTampering(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Seal(Fields{Amount: 100})
	require.NoError(t, err)

	flipped := append([]byte(nil), blob...)
	flipped[len(flipped)-1] ^= 0xff

	for name, b := range map[string][]byte{
		"flipped":   flipped,
		"truncated": blob[:8],
		"empty":     nil,
	} {
		_, err := v.Unseal(b)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrSealIntegrity), name)
	}
}

func TestUnsealRejectsForeignKey(t *testing.T) {
	blob, err := newTestVault(t).Seal(Fields{Amount: 100})
	require.NoError(t, err)
	_, err = newTestVault(t).Unseal(blob)
	require.ErrorIs(t, err, ErrSealIntegrity)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrMissingKey)
	_, err = New(make([]byte, 16))
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, KeySize)

	k, err := ParseKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, k)

	k, err = ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, k)

	_, err = ParseKey("")
	require.ErrorIs(t, err, ErrMissingKey)
	_, err = ParseKey("c2hvcnQ=")
	require.Error(t, err)
}
