// helpers_test.go: Shared fixtures for the black-box test suite.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"crypto/rsa"
	"errors"
	"sync"
	"testing"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/cryptex"
)

// symmetricSpecs lists every symmetric transformation the default primitive supports.
var symmetricSpecs = []string{
	"AES/ECB/PKCS5Padding",
	"AES/ECB/NoPadding",
	"AES/CBC/PKCS5Padding",
	"AES/CBC/PKCS7Padding",
	"AES/CFB/NoPadding",
	"AES/CFB128/NoPadding",
	"AES/OFB/NoPadding",
	"AES/CTR/NoPadding",
	"AES/GCM/NoPadding",
	"DESede/ECB/PKCS5Padding",
	"DESede/CBC/PKCS5Padding",
	"TripleDES/CBC/PKCS5Padding",
	"DESede/CFB64/NoPadding",
	"DESede/OFB/NoPadding",
	"DESede/CTR/NoPadding",
	"ChaCha20-Poly1305",
}

// blockAligned reports whether spec only accepts whole blocks.
func blockAligned(spec string) bool {
	return spec == "AES/ECB/NoPadding"
}

func newSecretFor(t testing.TB, spec string) *crypto.SecretMaterial {
	t.Helper()
	suite, err := crypto.ResolveSuite(crypto.MustParseTransformation(spec))
	require.NoError(t, err)
	s, err := crypto.GenerateSecret(suite.KeyAlgorithm(), 0)
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

func directEnvelope(t testing.TB, spec string, secret *crypto.SecretMaterial) *crypto.CipherEnvelope {
	t.Helper()
	env, err := crypto.NewCipherEnvelopeBuilder().
		Transformation(spec).
		KeySource(crypto.DirectKey(secret)).
		Build()
	require.NoError(t, err)
	return env
}

func passwordEnvelope(t testing.TB, spec, password string, params crypto.PasswordDerivationParams) *crypto.CipherEnvelope {
	t.Helper()
	env, err := crypto.NewCipherEnvelopeBuilder().
		Transformation(spec).
		KeySource(crypto.PasswordKey([]byte(password), params)).
		Build()
	require.NoError(t, err)
	t.Cleanup(env.Destroy)
	return env
}

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
	rsaErr  error

	kemOnce sync.Once
	kemPub  *mlkem768.PublicKey
	kemPriv *mlkem768.PrivateKey
	kemErr  error
)

// testRSAKey returns a 2048-bit key shared by the whole suite.
func testRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() { rsaKey, rsaErr = crypto.GenerateRSAKeyPair(2048) })
	require.NoError(t, rsaErr)
	return rsaKey
}

func testKEMKeys(t testing.TB) (*mlkem768.PublicKey, *mlkem768.PrivateKey) {
	t.Helper()
	kemOnce.Do(func() { kemPub, kemPriv, kemErr = crypto.GenerateMLKEMKeyPair(nil) })
	require.NoError(t, kemErr)
	return kemPub, kemPriv
}

// failingRandom is a RandomSource whose reads always fail.
type failingRandom struct{}

func (failingRandom) Read([]byte) (int, error) { return 0, errors.New("entropy pool exhausted") }

// sequenceRandom returns 0, 1, 2, ... so envelopes are reproducible.
type sequenceRandom struct {
	mu   sync.Mutex
	next byte
}

func (s *sequenceRandom) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range b {
		b[i] = s.next
		s.next++
	}
	return len(b), nil
}

func flipBit(b []byte, bit int) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	out[bit/8] ^= 1 << (bit % 8)
	return out
}
