// integrity.go: MAC and digest envelopes with constant-time verification.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- SHA-1 MACs and digests are kept for existing data
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Integrity algorithm names. Names are matched case-insensitively and
// ignoring '-' and '_', so "sha3_256" and "SHA3-256" are the same algorithm.
const (
	HmacSHA1   = "HmacSHA1"
	HmacSHA256 = "HmacSHA256"
	HmacSHA384 = "HmacSHA384"
	HmacSHA512 = "HmacSHA512"

	DigestSHA1    = "SHA-1"
	DigestSHA256  = "SHA-256"
	DigestSHA384  = "SHA-384"
	DigestSHA512  = "SHA-512"
	DigestSHA3256 = "SHA3-256"
	DigestSHA3384 = "SHA3-384"
	DigestSHA3512 = "SHA3-512"
)

var integrityNameFolder = strings.NewReplacer("-", "", "_", "")

// integrityAlgorithm resolves name to a hash constructor and whether it is a MAC.
func integrityAlgorithm(name string) (newHash func() hash.Hash, isMAC bool, ok bool) {
	n := strings.ToUpper(integrityNameFolder.Replace(strings.TrimSpace(name)))
	if strings.HasPrefix(n, "HMAC") {
		isMAC = true
		n = strings.TrimPrefix(n, "HMAC")
	}
	switch n {
	case "SHA1":
		newHash = sha1.New
	case "SHA256":
		newHash = sha256.New
	case "SHA384":
		newHash = sha512.New384
	case "SHA512":
		newHash = sha512.New
	case "SHA3256":
		newHash = sha3.New256
	case "SHA3384":
		newHash = sha3.New384
	case "SHA3512":
		newHash = sha3.New512
	default:
		return nil, false, false
	}
	return newHash, isMAC, true
}

// IntegrityEnvelopeBuilder collects the configuration of an IntegrityEnvelope.
type IntegrityEnvelopeBuilder struct {
	algorithm   string
	key         *SecretMaterial
	password    []byte
	passwordSet bool
	params      PasswordDerivationParams
	saltSize    int
	iterations  int
	random      RandomSource
}

// NewIntegrityEnvelopeBuilder returns an empty builder.
func NewIntegrityEnvelopeBuilder() *IntegrityEnvelopeBuilder {
	return &IntegrityEnvelopeBuilder{}
}

// Algorithm selects a MAC (Hmac*) or digest (SHA-*, SHA3-*) algorithm.
func (b *IntegrityEnvelopeBuilder) Algorithm(name string) *IntegrityEnvelopeBuilder {
	b.algorithm = name
	return b
}

// Key sets a direct MAC key. The envelope borrows it; the caller owns it.
func (b *IntegrityEnvelopeBuilder) Key(key *SecretMaterial) *IntegrityEnvelopeBuilder {
	b.key = key
	return b
}

// Password derives the MAC key per call from password and a random salt
// stored in front of the tag. password is copied at Build.
func (b *IntegrityEnvelopeBuilder) Password(password []byte, params PasswordDerivationParams) *IntegrityEnvelopeBuilder {
	b.password = password
	b.passwordSet = true
	b.params = params
	return b
}

// Salt configures salted, iterated digests: saltSize random bytes are
// prepended to the message and the hash is applied iterations times.
// It has no effect on MAC algorithms.
func (b *IntegrityEnvelopeBuilder) Salt(saltSize, iterations int) *IntegrityEnvelopeBuilder {
	b.saltSize = saltSize
	b.iterations = iterations
	return b
}

// Random overrides the salt source.
func (b *IntegrityEnvelopeBuilder) Random(r RandomSource) *IntegrityEnvelopeBuilder {
	b.random = r
	return b
}

// Build validates the configuration and returns an immutable envelope.
func (b *IntegrityEnvelopeBuilder) Build() (*IntegrityEnvelope, error) {
	if b.algorithm == "" {
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "integrity algorithm is required")
	}
	newHash, isMAC, ok := integrityAlgorithm(b.algorithm)
	if !ok {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, fmt.Sprintf("unsupported integrity algorithm %q", b.algorithm))
	}

	e := &IntegrityEnvelope{
		algorithm:  b.algorithm,
		newHash:    newHash,
		isMAC:      isMAC,
		iterations: 1,
		random:     b.random,
		tagSize:    newHash().Size(),
	}
	if e.random == nil {
		e.random = SystemRandom
	}

	switch {
	case isMAC && b.key != nil && b.passwordSet:
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "set either a key or a password, not both")
	case isMAC && b.key != nil:
		n, err := b.key.Len()
		if err != nil || n == 0 {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "MAC key is empty or destroyed")
		}
		e.key = b.key
	case isMAC && b.passwordSet:
		if len(b.password) == 0 {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "password cannot be empty")
		}
		if err := b.params.Validate(); err != nil {
			return nil, err
		}
		e.password = NewSecretMaterial(b.password, "PBE")
		e.params = b.params
		e.saltSize = b.params.SaltSize
	case isMAC:
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "MAC algorithms need a key or a password")
	default:
		if b.key != nil || b.passwordSet {
			return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "digest algorithms take no key")
		}
		if b.saltSize < 0 {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "salt size cannot be negative")
		}
		e.saltSize = b.saltSize
		if b.iterations > 0 {
			e.iterations = b.iterations
		}
	}
	return e, nil
}

// IntegrityEnvelope produces and verifies [salt] [tag] envelopes.
//
// A salt is present for password-derived MACs and for salted digests; a
// direct-key MAC or an unsalted digest is the bare tag. Like CipherEnvelope
// it is immutable and safe for concurrent use.
type IntegrityEnvelope struct {
	algorithm  string
	newHash    func() hash.Hash
	isMAC      bool
	key        *SecretMaterial
	password   *SecretMaterial
	params     PasswordDerivationParams
	saltSize   int
	iterations int
	tagSize    int
	random     RandomSource
}

// Algorithm returns the configured algorithm name.
func (e *IntegrityEnvelope) Algorithm() string { return e.algorithm }

// TagSize returns the size of the MAC or digest in bytes.
func (e *IntegrityEnvelope) TagSize() int { return e.tagSize }

// SaltSize returns the salt size, 0 when the envelope is unsalted.
func (e *IntegrityEnvelope) SaltSize() int { return e.saltSize }

// Sign returns salt ‖ tag for message.
func (e *IntegrityEnvelope) Sign(message []byte) ([]byte, error) {
	salt, err := readRandom(e.random, e.saltSize)
	if err != nil {
		return nil, err
	}
	tag, err := e.compute(salt, message)
	if err != nil {
		return nil, err
	}
	return frame(nil, salt, tag), nil
}

// Digest is Sign under the name used for unkeyed algorithms.
func (e *IntegrityEnvelope) Digest(message []byte) ([]byte, error) {
	return e.Sign(message)
}

// Verify recomputes the tag of message with the salt found in envelope and
// compares it in constant time. A well-formed envelope that does not match
// returns false and a nil error.
func (e *IntegrityEnvelope) Verify(message, envelope []byte) (bool, error) {
	layout, err := LayoutFor(0, e.saltSize, len(envelope))
	if err != nil {
		return false, err
	}
	_, salt, tag := layout.Split(envelope)
	expected, err := e.compute(salt, message)
	if err != nil {
		return false, err
	}
	if len(tag) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(tag, expected) == 1, nil
}

// Destroy wipes the password copy of a password-derived MAC envelope.
func (e *IntegrityEnvelope) Destroy() {
	e.password.Destroy()
}

func (e *IntegrityEnvelope) compute(salt, message []byte) ([]byte, error) {
	if !e.isMAC {
		return e.digest(salt, message), nil
	}

	var tag []byte
	mac := func(key []byte) error {
		m := hmac.New(e.newHash, key)
		m.Write(message)
		tag = m.Sum(nil)
		return nil
	}
	if e.password == nil {
		if err := e.key.use(mac); err != nil {
			return nil, err
		}
		return tag, nil
	}

	derived, err := deriveFromSecretPassword(e.password, salt, e.params, e.algorithm)
	if err != nil {
		return nil, err
	}
	defer derived.Destroy()
	if err := derived.use(mac); err != nil {
		return nil, err
	}
	return tag, nil
}

// digest hashes salt ‖ message, then rehashes the result iterations-1 times.
func (e *IntegrityEnvelope) digest(salt, message []byte) []byte {
	h := e.newHash()
	h.Write(salt)
	h.Write(message)
	sum := h.Sum(nil)
	for i := 1; i < e.iterations; i++ {
		h.Reset()
		h.Write(sum)
		sum = h.Sum(sum[:0])
	}
	return sum
}
