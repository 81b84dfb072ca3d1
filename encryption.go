// encryption.go: One-call AES-256-GCM helpers built on CipherEnvelope.
//
// The helpers produce the same nonce ‖ ciphertext ‖ tag envelope as an
// "AES/GCM/NoPadding" CipherEnvelope, base64 encoded.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"fmt"
)

// DefaultTransformation is the transformation used by the one-call helpers.
const DefaultTransformation = "AES/GCM/NoPadding"

// ValidateKey checks that key is a 32-byte AES-256 key.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return newError(ErrInvalidKeySize, ErrCodeInvalidKey,
			fmt.Sprintf("invalid key size: must be %d bytes for AES-256 (got %d)", KeySize, len(key)))
	}
	return nil
}

// withDirectEnvelope runs fn with a transient AES-256-GCM envelope over a
// copy of key. The copy is destroyed when fn returns.
func withDirectEnvelope(key []byte, fn func(env *CipherEnvelope) error) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	secret := NewSecretMaterial(key, "AES")
	defer secret.Destroy()
	env, err := NewCipherEnvelopeBuilder().
		Transformation(DefaultTransformation).
		KeySource(DirectKey(secret)).
		Build()
	if err != nil {
		return err
	}
	return fn(env)
}

// EncryptBytes encrypts plaintext with AES-256-GCM and returns the base64 envelope.
//
// Example:
//
//	key, _ := crypto.GenerateKey()
//	ciphertext, err := crypto.EncryptBytes([]byte("sensitive binary data"), key)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Empty plaintext is supported and yields nonce ‖ tag.
func EncryptBytes(plaintext []byte, key []byte) (string, error) {
	return EncryptBytesWithAAD(plaintext, key, nil)
}

// EncryptBytesWithAAD is EncryptBytes with additional authenticated data.
func EncryptBytesWithAAD(plaintext, key, aad []byte) (string, error) {
	var out string
	err := withDirectEnvelope(key, func(env *CipherEnvelope) error {
		b, err := env.EncryptWithAAD(plaintext, aad)
		if err != nil {
			return err
		}
		out = DefaultTextCodec().Wrap(b)
		return nil
	})
	return out, err
}

// DecryptBytes reverses EncryptBytes.
func DecryptBytes(encryptedText string, key []byte) ([]byte, error) {
	return DecryptBytesWithAAD(encryptedText, key, nil)
}

// DecryptBytesWithAAD reverses EncryptBytesWithAAD. aad must match.
func DecryptBytesWithAAD(encryptedText string, key, aad []byte) ([]byte, error) {
	raw, err := DefaultTextCodec().Unwrap(encryptedText)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = withDirectEnvelope(key, func(env *CipherEnvelope) error {
		var derr error
		out, derr = env.DecryptWithAAD(raw, aad)
		return derr
	})
	return out, err
}

// Encrypt encrypts a string with AES-256-GCM and returns the base64 envelope.
func Encrypt(plaintext string, key []byte) (string, error) {
	return EncryptBytes([]byte(plaintext), key)
}

// Decrypt reverses Encrypt.
func Decrypt(encryptedText string, key []byte) (string, error) {
	b, err := DecryptBytes(encryptedText, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncryptWithAAD is Encrypt with additional authenticated data.
func EncryptWithAAD(plaintext string, key []byte, aad string) (string, error) {
	return EncryptBytesWithAAD([]byte(plaintext), key, []byte(aad))
}

// DecryptWithAAD reverses EncryptWithAAD.
func DecryptWithAAD(encryptedText string, key []byte, aad string) (string, error) {
	b, err := DecryptBytesWithAAD(encryptedText, key, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncryptWithPassword encrypts plaintext under a key derived from password
// with DefaultPasswordDerivationParams. The envelope is nonce ‖ salt ‖ payload.
func EncryptWithPassword(plaintext, password string) (string, error) {
	env, err := passwordEnvelope(password)
	if err != nil {
		return "", err
	}
	defer env.Destroy()
	text, err := env.WithCodec(DefaultTextCodec())
	if err != nil {
		return "", err
	}
	return text.EncryptString(plaintext)
}

// DecryptWithPassword reverses EncryptWithPassword.
func DecryptWithPassword(encryptedText, password string) (string, error) {
	env, err := passwordEnvelope(password)
	if err != nil {
		return "", err
	}
	defer env.Destroy()
	text, err := env.WithCodec(DefaultTextCodec())
	if err != nil {
		return "", err
	}
	return text.DecryptString(encryptedText)
}

func passwordEnvelope(password string) (*CipherEnvelope, error) {
	pw := []byte(password)
	defer Zeroize(pw)
	return NewCipherEnvelopeBuilder().
		Transformation(DefaultTransformation).
		KeySource(PasswordKey(pw, DefaultPasswordDerivationParams())).
		Build()
}
