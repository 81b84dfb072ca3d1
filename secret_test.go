// secret_test.go: Test cases for SecretMaterial lifecycle and equality.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/cryptex"
)

func TestSecretMaterialCopiesInput(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	s := crypto.NewSecretMaterial(key, "AES")
	key[0] = 0

	got, err := s.Bytes()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got[0], "caller buffer must not alias the secret")

	got[1] = 0
	again, err := s.Bytes()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), again[1], "Bytes must return a copy")

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, "AES", s.Algorithm())
	assert.False(t, s.CreatedAt().IsZero())
}

func TestSecretMaterialDestroy(t *testing.T) {
	s := crypto.NewSecretMaterial([]byte("0123456789abcdef"), "AES")
	assert.False(t, s.IsDestroyed())

	s.Destroy()
	assert.True(t, s.IsDestroyed())
	assert.NotPanics(t, s.Destroy, "Destroy is idempotent")

	_, err := s.Bytes()
	assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)
	_, err = s.Len()
	assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)
	_, err = s.Fingerprint()
	assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)
	_, err = s.Clone()
	assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)
	_, err = crypto.SecretToBase64(s)
	assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)

	assert.Equal(t, "AES", s.Algorithm(), "the tag stays readable")
	assert.Contains(t, s.String(), "destroyed")

	var nilSecret *crypto.SecretMaterial
	assert.NotPanics(t, nilSecret.Destroy)
}

func TestSecretMaterialStringHidesKey(t *testing.T) {
	s := crypto.NewSecretMaterial([]byte("super-secret-key-material-xxxxx!"), "AES")
	assert.False(t, strings.Contains(s.String(), "super-secret"))
	assert.Equal(t, "SecretMaterial(AES)", s.String())
}

func TestSecretMaterialClone(t *testing.T) {
	s := crypto.NewSecretMaterial([]byte("0123456789abcdef"), "AES")
	c, err := s.Clone()
	require.NoError(t, err)
	assert.True(t, s.Equal(c))

	s.Destroy()
	assert.False(t, c.IsDestroyed(), "clones are independent")
	b, err := c.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), b)
}

func TestSecretMaterialEqual(t *testing.T) {
	a := crypto.NewSecretMaterial([]byte("0123456789abcdef"), "AES")
	b := crypto.NewSecretMaterial([]byte("0123456789abcdef"), "aes")
	diff := crypto.NewSecretMaterial([]byte("0123456789abcdeX"), "AES")
	short := crypto.NewSecretMaterial([]byte("0123456789abcde"), "AES")
	otherAlg := crypto.NewSecretMaterial([]byte("0123456789abcdef"), "HmacSHA256")

	assert.True(t, a.Equal(a))
	assert.True(t, a.Equal(b), "algorithm tags compare case-insensitively")
	assert.False(t, a.Equal(diff), "equal length, different content")
	assert.False(t, a.Equal(short), "different length")
	assert.False(t, a.Equal(otherAlg), "different algorithm")
	assert.False(t, a.Equal(nil))

	key := bytes.Repeat([]byte{7}, 24)
	tdes := crypto.NewSecretMaterial(key, "TripleDES")
	desede := crypto.NewSecretMaterial(key, "DESede")
	assert.True(t, tdes.Equal(desede), "TripleDES is an alias of DESede")

	d := crypto.NewSecretMaterial([]byte("0123456789abcdef"), "AES")
	d.Destroy()
	assert.False(t, d.Equal(d), "destroyed material is not equal to itself")
	assert.False(t, a.Equal(d))
	assert.False(t, d.Equal(a))
}

func TestSecretMaterialFingerprint(t *testing.T) {
	key := []byte("0123456789abcdef")
	s := crypto.NewSecretMaterial(key, "AES")
	fp, err := s.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, crypto.GetKeyFingerprint(key), fp)
	assert.Len(t, fp, 16)
}

func TestSecretMaterialConcurrentDestroy(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := crypto.NewSecretMaterial(bytes.Repeat([]byte{1}, 32), "AES")
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b, err := s.Bytes()
				if err != nil {
					assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)
					return
				}
				assert.Equal(t, bytes.Repeat([]byte{1}, 32), b, "a reader never sees partially wiped bytes")
			}()
		}
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Destroy()
			}()
		}
		wg.Wait()
		assert.True(t, s.IsDestroyed())
	}
}
