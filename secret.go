// secret.go: Destroyable holder for raw key material.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/subtle"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// SecretMaterial holds raw key bytes together with the algorithm they are
// meant for.
//
// The bytes never leave the holder by reference: Bytes returns a copy, and
// internal users borrow the buffer only for the duration of a callback.
// Destroy wipes the buffer exactly once and flips an atomic flag; after that
// every accessor fails with ErrSecretDestroyed instead of returning residual
// data. Destroy may race with in-flight operations: it waits for borrowers to
// finish before wiping, and later borrowers see the destroyed state.
//
// Example:
//
//	secret, err := crypto.GenerateSecret("AES", 256)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer secret.Destroy()
type SecretMaterial struct {
	mu        sync.RWMutex
	key       []byte
	algorithm string
	createdAt time.Time
	destroyed atomic.Bool
}

// NewSecretMaterial copies key into a new SecretMaterial tagged with algorithm.
// The caller keeps ownership of key and remains responsible for clearing it.
func NewSecretMaterial(key []byte, algorithm string) *SecretMaterial {
	buf := make([]byte, len(key))
	copy(buf, key)
	return adoptSecret(buf, algorithm)
}

// adoptSecret wraps buf without copying. buf must not be referenced elsewhere.
func adoptSecret(buf []byte, algorithm string) *SecretMaterial {
	return &SecretMaterial{
		key:       buf,
		algorithm: algorithm,
		createdAt: timecache.CachedTime().UTC(),
	}
}

// Algorithm returns the algorithm tag. It stays readable after Destroy.
func (s *SecretMaterial) Algorithm() string { return s.algorithm }

// CreatedAt returns the creation time of the material.
func (s *SecretMaterial) CreatedAt() time.Time { return s.createdAt }

// IsDestroyed reports whether Destroy has been called.
func (s *SecretMaterial) IsDestroyed() bool { return s.destroyed.Load() }

// Bytes returns a copy of the key bytes. The caller must Zeroize the copy.
func (s *SecretMaterial) Bytes() ([]byte, error) {
	var out []byte
	err := s.use(func(key []byte) error {
		out = make([]byte, len(key))
		copy(out, key)
		return nil
	})
	return out, err
}

// Len returns the key length in bytes.
func (s *SecretMaterial) Len() (int, error) {
	n := 0
	err := s.use(func(key []byte) error {
		n = len(key)
		return nil
	})
	return n, err
}

// Fingerprint returns a short non-secret identifier of the key bytes.
func (s *SecretMaterial) Fingerprint() (string, error) {
	var fp string
	err := s.use(func(key []byte) error {
		fp = GetKeyFingerprint(key)
		return nil
	})
	return fp, err
}

// Clone returns an independent deep copy.
func (s *SecretMaterial) Clone() (*SecretMaterial, error) {
	var c *SecretMaterial
	err := s.use(func(key []byte) error {
		c = NewSecretMaterial(key, s.algorithm)
		return nil
	})
	return c, err
}

// Destroy wipes the key bytes and marks the material destroyed.
// It is safe to call more than once and from several goroutines.
func (s *SecretMaterial) Destroy() {
	if s == nil || !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	Zeroize(s.key)
	s.key = nil
	s.mu.Unlock()
}

// Equal reports whether s and other hold the same key for the same algorithm.
//
// Destroyed material is never equal to anything, itself included. Algorithm
// tags are compared case-insensitively with "TripleDES" treated as "DESede".
// Key bytes are compared in constant time.
func (s *SecretMaterial) Equal(other *SecretMaterial) bool {
	if s == nil || other == nil || s.IsDestroyed() || other.IsDestroyed() {
		return false
	}
	if normalizeAlgorithm(s.algorithm) != normalizeAlgorithm(other.algorithm) {
		return false
	}
	if s == other {
		return true
	}

	theirs, err := other.Bytes()
	if err != nil {
		return false
	}
	defer Zeroize(theirs)

	equal := false
	_ = s.use(func(key []byte) error {
		equal = subtle.ConstantTimeCompare(key, theirs) == 1
		return nil
	})
	return equal
}

// String never reveals key bytes.
func (s *SecretMaterial) String() string {
	if s.IsDestroyed() {
		return "SecretMaterial(" + s.algorithm + ", destroyed)"
	}
	return "SecretMaterial(" + s.algorithm + ")"
}

// use lends the key buffer to fn while holding the read lock.
// fn must not retain key after returning.
func (s *SecretMaterial) use(fn func(key []byte) error) error {
	if s == nil {
		return newError(ErrMissingConfiguration, ErrCodeMissingConfig, "secret material is nil")
	}
	if s.destroyed.Load() {
		return errDestroyed()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed.Load() || s.key == nil {
		return errDestroyed()
	}
	return fn(s.key)
}

// normalizeAlgorithm folds case and the legacy TripleDES alias.
func normalizeAlgorithm(alg string) string {
	a := strings.ToUpper(strings.TrimSpace(alg))
	if a == "TRIPLEDES" || a == "3DES" {
		return "DESEDE"
	}
	return a
}
