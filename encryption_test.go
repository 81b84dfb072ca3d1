// encryption_test.go: Test cases for the one-call AES-256-GCM helpers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/cryptex"
)

func TestEncryptDecryptString(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	for _, msg := range []string{"", "hello", "unicode ✓ ü", string(bytes.Repeat([]byte("x"), 10000))} {
		ct, err := crypto.Encrypt(msg, key)
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(ct)
		require.NoError(t, err)
		assert.Len(t, raw, crypto.GCMNonceSize+len(msg)+crypto.AEADTagSize)

		pt, err := crypto.Decrypt(ct, key)
		require.NoError(t, err)
		assert.Equal(t, msg, pt)
	}
}

func TestEncryptHelpersInteroperateWithEnvelope(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	secret := crypto.NewSecretMaterial(key, "AES")
	defer secret.Destroy()
	env := directEnvelope(t, crypto.DefaultTransformation, secret)

	ct, err := crypto.EncryptBytes([]byte{0, 1, 2, 255}, key)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	pt, err := env.Decrypt(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, pt)

	sealed, err := env.Encrypt([]byte("the other way"))
	require.NoError(t, err)
	back, err := crypto.Decrypt(base64.StdEncoding.EncodeToString(sealed), key)
	require.NoError(t, err)
	assert.Equal(t, "the other way", back)
}

func TestEncryptHelpersAAD(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ct, err := crypto.EncryptWithAAD("record", key, "tenant=42")
	require.NoError(t, err)
	pt, err := crypto.DecryptWithAAD(ct, key, "tenant=42")
	require.NoError(t, err)
	assert.Equal(t, "record", pt)

	_, err = crypto.DecryptWithAAD(ct, key, "tenant=43")
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	_, err = crypto.Decrypt(ct, key)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)

	b, err := crypto.EncryptBytesWithAAD([]byte{9}, key, []byte{1, 2})
	require.NoError(t, err)
	out, err := crypto.DecryptBytesWithAAD(b, key, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, out)
}

func TestEncryptHelpersErrors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	for _, bad := range [][]byte{nil, make([]byte, 16), make([]byte, 33)} {
		_, err := crypto.Encrypt("x", bad)
		assert.ErrorIs(t, err, crypto.ErrInvalidKeySize)
		assert.ErrorIs(t, crypto.ValidateKey(bad), crypto.ErrInvalidKeySize)
	}
	assert.NoError(t, crypto.ValidateKey(key))

	_, err = crypto.Decrypt("not base64!", key)
	assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	_, err = crypto.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")), key)
	assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	ct, err := crypto.Encrypt("secret", key)
	require.NoError(t, err)
	_, err = crypto.Decrypt(ct, other)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestEncryptHelpersLeaveKeyIntact(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	_, err := crypto.Encrypt("x", key)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 32), key, "the caller's key is copied, not wiped")
}

func TestEncryptWithPassword(t *testing.T) {
	ct, err := crypto.EncryptWithPassword("payload", "correct horse battery staple")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	assert.Len(t, raw, crypto.GCMNonceSize+crypto.DefaultSaltSize+len("payload")+crypto.AEADTagSize)

	pt, err := crypto.DecryptWithPassword(ct, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "payload", pt)

	_, err = crypto.DecryptWithPassword(ct, "wrong")
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)

	_, err = crypto.EncryptWithPassword("payload", "")
	assert.ErrorIs(t, err, crypto.ErrMissingConfiguration)
}

func FuzzDecrypt(f *testing.F) {
	key := bytes.Repeat([]byte{7}, 32)
	valid, err := crypto.Encrypt("seed", key)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add("")
	f.Add("AAAA")

	f.Fuzz(func(t *testing.T, input string) {
		_, err := crypto.Decrypt(input, key)
		if err != nil && !errors.Is(err, crypto.ErrInvalidCiphertext) && !errors.Is(err, crypto.ErrAuthenticationFailed) {
			t.Fatalf("unexpected error class: %v", err)
		}
	})
}
