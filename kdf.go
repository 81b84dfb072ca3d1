// kdf.go: Password and key derivation.
//
// Password-based envelopes derive a fresh key for every operation from the
// password and a random salt. PBKDF2 (HMAC-SHA1/256/512) and Argon2id are
// supported; HKDF is available for high-entropy inputs.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/sha1" // #nosec G505 -- PBKDF2-HMAC-SHA1 is kept for interoperability with legacy envelopes
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"strings"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	pbkdf2 "golang.org/x/crypto/pbkdf2"
)

// KDF algorithm names accepted by PasswordDerivationParams.KDFAlgorithm.
const (
	KDFPBKDF2SHA1   = "PBKDF2-HMAC-SHA1"
	KDFPBKDF2SHA256 = "PBKDF2-HMAC-SHA256"
	KDFPBKDF2SHA512 = "PBKDF2-HMAC-SHA512"
	KDFArgon2id     = "Argon2id"
)

// Defaults for password-based envelopes.
const (
	DefaultSaltSize       = 16
	DefaultIterationCount = 100_000
	DefaultDerivedKeyBits = 256
	DefaultKDFAlgorithm   = KDFPBKDF2SHA256
)

// Default Argon2 parameters for key derivation.
const (
	// DefaultTime is the default number of iterations for Argon2id.
	DefaultTime = 3

	// DefaultMemory is the default memory usage in MB for Argon2id.
	DefaultMemory = 64

	// DefaultThreads is the default number of threads for Argon2id.
	DefaultThreads = 4
)

// PasswordDerivationParams configures password-based key derivation.
//
// The zero value is not usable; start from DefaultPasswordDerivationParams
// and override fields as needed.
type PasswordDerivationParams struct {
	// SaltSize is the number of random salt bytes stored in each envelope.
	SaltSize int `json:"salt_size" yaml:"salt_size"`

	// IterationCount is the PBKDF2 iteration count. Argon2id uses Argon2.Time instead.
	IterationCount int `json:"iteration_count" yaml:"iteration_count"`

	// DerivedKeyBits is the length of the derived key in bits.
	DerivedKeyBits int `json:"derived_key_bits" yaml:"derived_key_bits"`

	// KDFAlgorithm selects the derivation function (see KDF* constants).
	KDFAlgorithm string `json:"kdf_algorithm" yaml:"kdf_algorithm"`

	// Argon2 tunes Argon2id. Nil uses DefaultTime/DefaultMemory/DefaultThreads.
	Argon2 *KDFParams `json:"argon2,omitempty" yaml:"argon2,omitempty"`
}

// DefaultPasswordDerivationParams returns 16-byte salts, 100000 iterations of
// PBKDF2-HMAC-SHA256 and a 256-bit key.
func DefaultPasswordDerivationParams() PasswordDerivationParams {
	return PasswordDerivationParams{
		SaltSize:       DefaultSaltSize,
		IterationCount: DefaultIterationCount,
		DerivedKeyBits: DefaultDerivedKeyBits,
		KDFAlgorithm:   DefaultKDFAlgorithm,
	}
}

// LegacyPasswordDerivationParams returns the parameters of older PBE
// envelopes: 8-byte salt, 1000 iterations of PBKDF2-HMAC-SHA1, 128-bit key.
// Only use it to read existing data.
func LegacyPasswordDerivationParams() PasswordDerivationParams {
	return PasswordDerivationParams{
		SaltSize:       8,
		IterationCount: 1000,
		DerivedKeyBits: 128,
		KDFAlgorithm:   KDFPBKDF2SHA1,
	}
}

// Argon2PasswordDerivationParams returns Argon2id parameters with the given tuning.
// A nil params uses the library defaults.
func Argon2PasswordDerivationParams(params *KDFParams) PasswordDerivationParams {
	return PasswordDerivationParams{
		SaltSize:       DefaultSaltSize,
		IterationCount: 1,
		DerivedKeyBits: DefaultDerivedKeyBits,
		KDFAlgorithm:   KDFArgon2id,
		Argon2:         params,
	}
}

// KeyLen returns the derived key length in bytes.
func (p PasswordDerivationParams) KeyLen() int { return p.DerivedKeyBits / 8 }

// Validate checks the parameters and returns a configuration error when
// they cannot be used.
func (p PasswordDerivationParams) Validate() error {
	if p.SaltSize <= 0 {
		return newError(ErrMissingConfiguration, ErrCodeMissingConfig, "salt size must be positive")
	}
	if p.IterationCount <= 0 {
		return newError(ErrMissingConfiguration, ErrCodeMissingConfig, "iteration count must be positive")
	}
	if p.DerivedKeyBits <= 0 || p.DerivedKeyBits%8 != 0 {
		return newError(ErrInvalidKeySize, ErrCodeInvalidKey,
			fmt.Sprintf("derived key bits must be a positive multiple of 8, got %d", p.DerivedKeyBits))
	}
	if _, ok := pbkdf2Hash(p.KDFAlgorithm); !ok && !strings.EqualFold(p.KDFAlgorithm, KDFArgon2id) {
		return newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, fmt.Sprintf("unknown KDF algorithm %q", p.KDFAlgorithm))
	}
	return nil
}

// NewSalt returns SaltSize fresh random bytes from r.
func (p PasswordDerivationParams) NewSalt(r RandomSource) ([]byte, error) {
	return readRandom(r, p.SaltSize)
}

// pbkdf2Hash maps a PBKDF2 algorithm name to its hash constructor.
func pbkdf2Hash(name string) (func() hash.Hash, bool) {
	switch strings.ToUpper(name) {
	case strings.ToUpper(KDFPBKDF2SHA1):
		return sha1.New, true
	case strings.ToUpper(KDFPBKDF2SHA256):
		return sha256.New, true
	case strings.ToUpper(KDFPBKDF2SHA512):
		return sha512.New, true
	default:
		return nil, false
	}
}

// DeriveSecretFromPassword derives SecretMaterial for algorithm from password
// and salt.
//
// The password stays owned by the caller. The derived buffer is handed to the
// returned SecretMaterial without an extra copy; on failure nothing derived
// survives the call.
//
// Example:
//
//	params := crypto.DefaultPasswordDerivationParams()
//	salt, _ := params.NewSalt(crypto.SystemRandom)
//	secret, err := crypto.DeriveSecretFromPassword([]byte("Secr3t!"), salt, params, "AES")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer secret.Destroy()
func DeriveSecretFromPassword(password, salt []byte, params PasswordDerivationParams, algorithm string) (*SecretMaterial, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "salt cannot be empty")
	}

	keyLen := params.KeyLen()
	if err := checkKeyLength(algorithm, keyLen); err != nil {
		return nil, err
	}

	var derived []byte
	if h, ok := pbkdf2Hash(params.KDFAlgorithm); ok {
		derived = pbkdf2.Key(password, salt, params.IterationCount, keyLen, h)
	} else {
		var err error
		derived, err = DeriveKey(password, salt, keyLen, params.Argon2)
		if err != nil {
			return nil, wrapError(ErrPrimitiveFailure, err, ErrCodeKDF, "argon2id derivation failed")
		}
	}

	if len(derived) != keyLen {
		Zeroize(derived)
		return nil, newError(ErrPrimitiveFailure, ErrCodeKDF, "derived key has unexpected length")
	}
	return adoptSecret(derived, algorithm), nil
}

// deriveFromSecretPassword runs DeriveSecretFromPassword with a password held
// in SecretMaterial, borrowing the buffer only for the derivation.
func deriveFromSecretPassword(password *SecretMaterial, salt []byte, params PasswordDerivationParams, algorithm string) (*SecretMaterial, error) {
	var out *SecretMaterial
	err := password.use(func(pw []byte) error {
		var derr error
		out, derr = DeriveSecretFromPassword(pw, salt, params, algorithm)
		return derr
	})
	return out, err
}

// KDFParams defines custom parameters for Argon2id key derivation.
//
// If a field is zero, the library's secure default will be used.
type KDFParams struct {
	// Time is the number of iterations for Argon2id.
	Time uint32 `json:"time,omitempty" yaml:"time,omitempty"`

	// Memory is the memory usage in MB for Argon2id.
	Memory uint32 `json:"memory,omitempty" yaml:"memory,omitempty"`

	// Threads is the number of threads for Argon2id.
	Threads uint8 `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// HighSecurityKDFParams returns Argon2id parameters for maximum security scenarios.
//
// Parameters: Time=5, Memory=128MB, Threads=4
func HighSecurityKDFParams() *KDFParams {
	return &KDFParams{
		Time:    5,
		Memory:  128,
		Threads: 4,
	}
}

// FastKDFParams returns Argon2id parameters optimized for speed.
// Suitable for development and tests.
//
// Parameters: Time=1, Memory=32MB, Threads=2
func FastKDFParams() *KDFParams {
	return &KDFParams{
		Time:    1,
		Memory:  32,
		Threads: 2,
	}
}

// DeriveKey derives a key from a password and salt using Argon2id.
//
// If params is nil, secure defaults are used (Time: 3, Memory: 64MB, Threads: 4).
//
// Example:
//
//	key, err := crypto.DeriveKey([]byte("my-secure-password"), salt, 32, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
func DeriveKey(password, salt []byte, keyLen int, params *KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, goerrors.New("EMPTY_PASSWORD", "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New("EMPTY_SALT", "salt cannot be empty")
	}
	if keyLen <= 0 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length must be positive")
	}

	time := uint32(DefaultTime)
	memory := uint32(DefaultMemory * 1024)
	threads := uint8(DefaultThreads)

	if params != nil {
		if params.Time > 0 {
			time = params.Time
		}
		if params.Memory > 0 {
			memory = params.Memory * 1024
		}
		if params.Threads > 0 {
			threads = params.Threads
		}
	}

	key := argon2.IDKey(password, salt, time, memory, threads, uint32(keyLen)) // #nosec G115 -- keyLen validated positive
	return key, nil
}

// DeriveKeyPBKDF2 derives a key using PBKDF2-HMAC-SHA256.
//
// Example:
//
//	key, err := crypto.DeriveKeyPBKDF2([]byte("my-secure-password"), salt, 100000, 32)
func DeriveKeyPBKDF2(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if len(password) == 0 {
		return nil, goerrors.New("EMPTY_PASSWORD", "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New("EMPTY_SALT", "salt cannot be empty")
	}
	if iterations <= 0 {
		return nil, goerrors.New("INVALID_ITERATIONS", "iterations must be positive")
	}
	if keyLen <= 0 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length must be positive")
	}

	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New), nil
}

// DeriveKeyHKDF derives a key using HKDF-SHA256 (RFC 5869).
//
// HKDF is designed for high-entropy inputs such as generated keys or KEM
// shared secrets. For passwords use DeriveSecretFromPassword.
//
// Example:
//
//	subKey, err := crypto.DeriveKeyHKDF(masterKey, nil, []byte("config-values-v1"), 32)
func DeriveKeyHKDF(masterKey, salt, info []byte, keyLen int) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, goerrors.New("INVALID_MASTER_KEY", "master key cannot be empty")
	}
	if keyLen <= 0 {
		return nil, goerrors.New("INVALID_KEYLEN", "key length must be positive")
	}
	if keyLen > 255*sha256.Size {
		return nil, goerrors.New("INVALID_KEYLEN", "key length too large for HKDF-SHA256")
	}

	okm := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, salt, info), okm); err != nil {
		Zeroize(okm)
		return nil, goerrors.Wrap(err, "HKDF_ERROR", "failed to expand key")
	}
	return okm, nil
}
