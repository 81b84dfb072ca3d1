// keyutils.go: Key generation, random sources, zeroization and fingerprinting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
	"github.com/awnumar/memguard"
)

// KeySize is the default symmetric key size in bytes (AES-256).
const KeySize = 32

// RandomSource supplies cryptographically secure random bytes.
// Implementations must be safe for concurrent use.
type RandomSource interface {
	// Read fills b entirely or returns an error.
	Read(b []byte) (int, error)
}

// SystemRandom is the operating system CSPRNG (crypto/rand).
var SystemRandom RandomSource = rand.Reader

// readRandom fills n bytes from r, mapping failures to ErrRandomSource.
func readRandom(r RandomSource, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, wrapError(ErrRandomSource, err, ErrCodeRandomSource, fmt.Sprintf("failed to read %d random bytes", n))
	}
	return b, nil
}

// Zeroize securely wipes a byte slice from memory.
//
// Note: This function modifies the original slice in place.
//
// Example:
//
//	key, _ := crypto.GenerateKey()
//	defer crypto.Zeroize(key)
func Zeroize(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}

// GetKeyFingerprint generates a fingerprint for a key (non-cryptographic).
//
// The fingerprint is the first 8 bytes of SHA-256 in hex. It is useful for
// logging and identifying keys without exposing the key material.
// An empty key yields an empty string.
func GetKeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateKey generates a cryptographically secure random key of KeySize bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, goerrors.Wrap(err, "KEY_GEN_ERROR", "failed to generate key")
	}
	return key, nil
}

// GenerateNonce generates a cryptographically secure random nonce of the given size.
func GenerateNonce(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New("INVALID_NONCE_SIZE", "nonce size must be positive")
	}
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, "NONCE_GEN_ERROR", "failed to generate nonce")
	}
	return nonce, nil
}

// GenerateSecret creates random SecretMaterial for a symmetric algorithm.
//
// Supported algorithms are AES (128, 192, 256 bits), DESede/TripleDES
// (192 bits), ChaCha20-Poly1305 (256 bits) and the Hmac family (any
// positive multiple of 8 bits). A bits value of 0 selects the default size.
//
// Example:
//
//	secret, err := crypto.GenerateSecret("AES", 256)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer secret.Destroy()
func GenerateSecret(algorithm string, bits int) (*SecretMaterial, error) {
	return GenerateSecretFrom(SystemRandom, algorithm, bits)
}

// GenerateSecretFrom is GenerateSecret with an explicit random source.
func GenerateSecretFrom(r RandomSource, algorithm string, bits int) (*SecretMaterial, error) {
	if bits == 0 {
		bits = defaultKeyBits(algorithm)
	}
	if bits <= 0 || bits%8 != 0 {
		return nil, newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("key size must be a positive multiple of 8 bits, got %d", bits))
	}
	if err := checkKeyLength(algorithm, bits/8); err != nil {
		return nil, err
	}
	buf, err := readRandom(r, bits/8)
	if err != nil {
		return nil, err
	}
	return adoptSecret(buf, algorithm), nil
}

// defaultKeyBits returns the default key size for algorithm, or 0 if unknown.
func defaultKeyBits(algorithm string) int {
	switch normalizeAlgorithm(algorithm) {
	case "AES", "CHACHA20-POLY1305", "CHACHA20":
		return 256
	case "DESEDE":
		return 192
	case "HMACSHA1":
		return 160
	case "HMACSHA384":
		return 384
	case "HMACSHA512":
		return 512
	default:
		return 256
	}
}

// checkKeyLength validates n key bytes against algorithm.
// Unknown algorithms (for instance MAC names) accept any positive length.
func checkKeyLength(algorithm string, n int) error {
	var valid []int
	switch normalizeAlgorithm(algorithm) {
	case "AES":
		valid = []int{16, 24, 32}
	case "DESEDE":
		valid = []int{24}
	case "DES":
		valid = []int{8}
	case "CHACHA20-POLY1305", "CHACHA20":
		valid = []int{32}
	default:
		if n <= 0 {
			return newError(ErrInvalidKeySize, ErrCodeInvalidKey, "key cannot be empty")
		}
		return nil
	}
	for _, v := range valid {
		if n == v {
			return nil
		}
	}
	return newError(ErrInvalidKeySize, ErrCodeInvalidKey,
		fmt.Sprintf("invalid key size for %s: got %d bytes, expected one of %v", algorithm, n, valid))
}

// KeyToBase64 encodes a key as a base64 string.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// KeyFromBase64 decodes a base64 string to a key.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "BASE64_DECODE_ERROR", "failed to decode base64 key")
	}
	return key, nil
}

// KeyToHex encodes a key as a lowercase hexadecimal string.
func KeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// KeyFromHex decodes a hexadecimal string to a key.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, "HEX_DECODE_ERROR", "failed to decode hex key")
	}
	return key, nil
}

// SecretFromBase64 decodes a base64 key straight into SecretMaterial and
// wipes the intermediate buffer.
func SecretFromBase64(s, algorithm string) (*SecretMaterial, error) {
	key, err := KeyFromBase64(s)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)
	if err := checkKeyLength(algorithm, len(key)); err != nil {
		return nil, err
	}
	return NewSecretMaterial(key, algorithm), nil
}

// SecretToBase64 exports SecretMaterial as base64.
func SecretToBase64(s *SecretMaterial) (string, error) {
	var out string
	err := s.use(func(key []byte) error {
		out = KeyToBase64(key)
		return nil
	})
	return out, err
}
