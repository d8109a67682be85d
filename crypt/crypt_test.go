package crypt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey = "0123456789abcdef0123456789abcdef"
	testIV  = "fedcba9876543210"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(testKey, testIV)
	require.NoError(t, err)
	return c
}

func TestKeyMaterialValidation(t *testing.T) {
	_, err := New("short", testIV)
	assert.ErrorIs(t, err, ErrBadKeyLength)

	_, err = New(testKey+"x", testIV)
	assert.ErrorIs(t, err, ErrBadKeyLength)

	_, err = New(testKey, "short")
	assert.ErrorIs(t, err, ErrBadIVLength)

	_, err = New(testKey, testIV+"x")
	assert.ErrorIs(t, err, ErrBadIVLength)

	_, err = New(testKey, testIV)
	assert.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	c := testCipher(t)

	for _, text := range []string{
		"a",
		"hello world",
		"exactly sixteen!",                   // one full block
		strings.Repeat("block boundary. ", 4), // several full blocks
		"unicode: ñandú 日本語 🤫",
		strings.Repeat("x", 10_000),
	} {
		enc, err := c.Encrypt(text)
		require.NoError(t, err)
		assert.NotEqual(t, text, enc)

		dec, err := c.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, text, dec)
	}
}

func TestDeterministic(t *testing.T) {
	// Equal plaintexts must produce equal ciphertexts. The fixed IV is a
	// documented weakness of the stored format, not a bug; this guards
	// regressions in either direction.
	c := testCipher(t)

	a, err := c.Encrypt("same secret")
	require.NoError(t, err)
	b, err := c.Encrypt("same secret")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := c.Encrypt("different secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestEmptyContent(t *testing.T) {
	c := testCipher(t)

	enc, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, enc)

	dec, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, dec)
}

func TestDecryptMalformed(t *testing.T) {
	c := testCipher(t)

	for _, enc := range []string{
		"not hex at all!",
		"abcd",           // valid hex, not a whole block
		"00112233445566", // seven bytes, still short of a block
	} {
		_, err := c.Decrypt(enc)
		assert.ErrorIs(t, err, ErrDecrypt, "input %q", enc)
	}

	// A ciphertext sealed under a different key never decrypts back to the
	// original plaintext; almost always the padding check rejects it.
	other, err := New(strings.Repeat("k", KeySize), testIV)
	require.NoError(t, err)
	enc, err := other.Encrypt("sealed elsewhere")
	require.NoError(t, err)

	dec, err := c.Decrypt(enc)
	if err == nil {
		assert.NotEqual(t, "sealed elsewhere", dec)
	} else {
		assert.ErrorIs(t, err, ErrDecrypt)
	}
}
