// Package crypt protects record content at rest with AES-256-CBC.
//
// A single key and a fixed IV are loaded once at process start. Because the
// IV is shared across all records, encryption is deterministic: equal
// plaintexts always produce equal ciphertexts. That property is part of the
// stored format and must not change without a data migration.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
)

const KeySize = 32

var (
	ErrBadKeyLength = fmt.Errorf("encryption key must be exactly %d bytes", KeySize)
	ErrBadIVLength  = fmt.Errorf("encryption iv must be exactly %d bytes", aes.BlockSize)

	// ErrDecrypt indicates a stored ciphertext that cannot be decoded. It is
	// always surfaced to the caller; returning empty or garbage content in
	// its place would leak corruption to end users.
	ErrDecrypt = fmt.Errorf("ciphertext cannot be decrypted")
)

type Cipher struct {
	key []byte
	iv  []byte
}

// New validates key material and returns a ready Cipher. Length errors are
// configuration errors: the process should refuse to start on them.
func New(key, iv string) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrBadKeyLength
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrBadIVLength
	}
	return &Cipher{key: []byte(key), iv: []byte(iv)}, nil
}

// Encrypt returns the hex encoding of the AES-256-CBC encryption of text.
// Empty input yields an empty result: callers treat empty content as "no
// content" rather than storing a ciphertext for it.
func (c *Cipher) Encrypt(text string) (string, error) {
	if text == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}

	padded := pad([]byte(text))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, padded)

	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed input (bad hex, wrong length, bad
// padding) fails with an error wrapping ErrDecrypt.
func (c *Cipher) Decrypt(enc string) (string, error) {
	if enc == "" {
		return "", nil
	}

	raw, err := hex.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex", ErrDecrypt)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d is not a multiple of the block size", ErrDecrypt, len(raw))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(out, raw)

	text, err := unpad(out)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecrypt)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
