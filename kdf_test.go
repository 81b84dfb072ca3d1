// kdf_test.go: Test cases for password and key derivation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	crypto "github.com/agilira/cryptex"
)

// fastParams keeps PBKDF2 cheap in tests while exercising the same code path.
func fastParams() crypto.PasswordDerivationParams {
	p := crypto.DefaultPasswordDerivationParams()
	p.IterationCount = 1000
	return p
}

func TestDefaultPasswordDerivationParams(t *testing.T) {
	p := crypto.DefaultPasswordDerivationParams()
	assert.Equal(t, 16, p.SaltSize)
	assert.Equal(t, 100_000, p.IterationCount)
	assert.Equal(t, 256, p.DerivedKeyBits)
	assert.Equal(t, "PBKDF2-HMAC-SHA256", p.KDFAlgorithm)
	assert.Equal(t, 32, p.KeyLen())
	assert.NoError(t, p.Validate())

	legacy := crypto.LegacyPasswordDerivationParams()
	assert.NoError(t, legacy.Validate())
	assert.Equal(t, 16, legacy.KeyLen())

	argon := crypto.Argon2PasswordDerivationParams(crypto.FastKDFParams())
	assert.NoError(t, argon.Validate())
}

func TestPasswordDerivationParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *crypto.PasswordDerivationParams)
	}{
		{"zero salt", func(p *crypto.PasswordDerivationParams) { p.SaltSize = 0 }},
		{"zero iterations", func(p *crypto.PasswordDerivationParams) { p.IterationCount = 0 }},
		{"zero bits", func(p *crypto.PasswordDerivationParams) { p.DerivedKeyBits = 0 }},
		{"bits not multiple of 8", func(p *crypto.PasswordDerivationParams) { p.DerivedKeyBits = 250 }},
		{"unknown kdf", func(p *crypto.PasswordDerivationParams) { p.KDFAlgorithm = "scrypt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := crypto.DefaultPasswordDerivationParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, crypto.IsConfigError(err))
		})
	}
}

func TestDeriveSecretFromPasswordMatchesPBKDF2(t *testing.T) {
	params := fastParams()
	salt := bytes.Repeat([]byte{0x5a}, params.SaltSize)
	password := []byte("Secr3t!")

	s, err := crypto.DeriveSecretFromPassword(password, salt, params, "AES")
	require.NoError(t, err)
	defer s.Destroy()

	want := pbkdf2.Key(password, salt, params.IterationCount, 32, sha256.New)
	got, err := s.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "AES", s.Algorithm())
	assert.Equal(t, []byte("Secr3t!"), password, "the caller's password is left untouched")
}

func TestDeriveSecretFromPasswordIsSaltDependent(t *testing.T) {
	params := fastParams()
	salt1, err := params.NewSalt(crypto.SystemRandom)
	require.NoError(t, err)
	salt2, err := params.NewSalt(crypto.SystemRandom)
	require.NoError(t, err)
	require.Len(t, salt1, 16)
	require.NotEqual(t, salt1, salt2, "salts are fresh per call")

	a, err := crypto.DeriveSecretFromPassword([]byte("pw"), salt1, params, "AES")
	require.NoError(t, err)
	b, err := crypto.DeriveSecretFromPassword([]byte("pw"), salt2, params, "AES")
	require.NoError(t, err)
	c, err := crypto.DeriveSecretFromPassword([]byte("pw"), salt1, params, "AES")
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(c), "the same salt re-derives the same key")
}

func TestDeriveSecretFromPasswordAlgorithms(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, 16)
	for _, kdf := range []string{crypto.KDFPBKDF2SHA1, crypto.KDFPBKDF2SHA256, crypto.KDFPBKDF2SHA512} {
		t.Run(kdf, func(t *testing.T) {
			p := fastParams()
			p.KDFAlgorithm = kdf
			s, err := crypto.DeriveSecretFromPassword([]byte("pw"), salt, p, "AES")
			require.NoError(t, err)
			n, _ := s.Len()
			assert.Equal(t, 32, n)
		})
	}

	t.Run(crypto.KDFArgon2id, func(t *testing.T) {
		p := crypto.Argon2PasswordDerivationParams(crypto.FastKDFParams())
		s, err := crypto.DeriveSecretFromPassword([]byte("pw"), salt, p, "AES")
		require.NoError(t, err)
		want, err := crypto.DeriveKey([]byte("pw"), salt, 32, crypto.FastKDFParams())
		require.NoError(t, err)
		got, _ := s.Bytes()
		assert.Equal(t, want, got)
	})
}

func TestDeriveSecretFromPasswordErrors(t *testing.T) {
	p := fastParams()
	salt := bytes.Repeat([]byte{1}, 16)

	_, err := crypto.DeriveSecretFromPassword(nil, salt, p, "AES")
	assert.ErrorIs(t, err, crypto.ErrMissingConfiguration)

	_, err = crypto.DeriveSecretFromPassword([]byte("pw"), nil, p, "AES")
	assert.ErrorIs(t, err, crypto.ErrMissingConfiguration)

	p.DerivedKeyBits = 40
	_, err = crypto.DeriveSecretFromPassword([]byte("pw"), salt, p, "AES")
	assert.ErrorIs(t, err, crypto.ErrInvalidKeySize, "AES has no 5-byte key")
}

func TestDeriveKeyHelpers(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1, err := crypto.DeriveKeyPBKDF2([]byte("pw"), salt, 1000, 32)
	require.NoError(t, err)
	assert.Len(t, k1, 32)
	_, err = crypto.DeriveKeyPBKDF2([]byte("pw"), salt, 0, 32)
	assert.Error(t, err)
	_, err = crypto.DeriveKeyPBKDF2(nil, salt, 1000, 32)
	assert.Error(t, err)

	k2, err := crypto.DeriveKey([]byte("pw"), salt, 32, crypto.FastKDFParams())
	require.NoError(t, err)
	assert.Len(t, k2, 32)
	_, err = crypto.DeriveKey([]byte("pw"), nil, 32, nil)
	assert.Error(t, err)
	_, err = crypto.DeriveKey([]byte("pw"), salt, 0, nil)
	assert.Error(t, err)

	master := bytes.Repeat([]byte{3}, 32)
	h1, err := crypto.DeriveKeyHKDF(master, nil, []byte("ctx-a"), 32)
	require.NoError(t, err)
	h2, err := crypto.DeriveKeyHKDF(master, nil, []byte("ctx-b"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "info separates derived keys")
	_, err = crypto.DeriveKeyHKDF(nil, nil, nil, 32)
	assert.Error(t, err)
	_, err = crypto.DeriveKeyHKDF(master, nil, nil, 255*32+1)
	assert.Error(t, err)
}

func TestKDFParamPresets(t *testing.T) {
	hi := crypto.HighSecurityKDFParams()
	assert.Equal(t, uint32(5), hi.Time)
	assert.Equal(t, uint32(128), hi.Memory)
	fast := crypto.FastKDFParams()
	assert.Equal(t, uint32(1), fast.Time)
	assert.Equal(t, uint8(2), fast.Threads)
}
