// keyring.go: Versioned keys with zero-downtime rotation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Key status constants
const (
	StatusActive     = "active"     // Active key for encryption/decryption
	StatusPending    = "pending"    // Key in preparation for activation
	StatusValidating = "validating" // Key passed its self-test
	StatusDeprecated = "deprecated" // Deprecated key (for decryption only)
	StatusRevoked    = "revoked"    // Revoked key, material destroyed
)

// DefaultMaxVersions is the number of versions a key ring keeps by default.
const DefaultMaxVersions = 10

// KeyVersion describes one version of a key ring key. Values returned by
// KeyRing never carry key material.
type KeyVersion struct {
	ID             string                 `json:"id"`
	Version        int                    `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	Status         string                 `json:"status"`
	Transformation string                 `json:"transformation"`
	Purpose        string                 `json:"purpose"`
	Fingerprint    string                 `json:"fingerprint,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	secret   *SecretMaterial
	envelope *CipherEnvelope
}

func (kv *KeyVersion) snapshot() KeyVersion {
	c := *kv
	c.secret, c.envelope = nil, nil
	if kv.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(kv.Metadata))
		for k, v := range kv.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// KeyRingOptions configures a KeyRing.
type KeyRingOptions struct {
	// Transformation used by every key; defaults to AES/GCM/NoPadding.
	Transformation string `json:"transformation" yaml:"transformation"`
	// KeyBits is the key size; 0 selects the algorithm default.
	KeyBits int `json:"key_bits" yaml:"key_bits"`
	// MaxVersions bounds how many versions are kept; revoked versions are pruned first.
	MaxVersions int `json:"max_versions" yaml:"max_versions"`

	Audit  AuditLogger  `json:"-" yaml:"-"`
	Random RandomSource `json:"-" yaml:"-"`
}

// KeyRing manages versioned symmetric keys. Every version has its own
// CipherEnvelope; text ciphertexts are prefixed with the version ID so old
// data stays readable after rotation.
type KeyRing struct {
	mu             sync.RWMutex
	transformation string
	algorithm      string
	keyBits        int
	active         *KeyVersion
	pending        *KeyVersion
	previous       *KeyVersion
	versions       map[string]*KeyVersion
	maxVersions    int
	audit          AuditLogger
	random         RandomSource
	codec          TextCodec
	closed         bool
}

// NewKeyRing validates opts and returns an empty ring.
func NewKeyRing(opts KeyRingOptions) (*KeyRing, error) {
	spec := opts.Transformation
	if spec == "" {
		spec = "AES/GCM/NoPadding"
	}
	t, err := ParseTransformation(spec)
	if err != nil {
		return nil, err
	}
	suite, err := ResolveSuite(t)
	if err != nil {
		return nil, err
	}
	if suite.IsAsymmetric() {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "key rings hold symmetric keys only")
	}
	bits := opts.KeyBits
	if bits == 0 {
		bits = defaultKeyBits(suite.KeyAlgorithm())
	}
	if bits%8 != 0 {
		return nil, newError(ErrInvalidKeySize, ErrCodeInvalidKey, "key bits must be a multiple of 8")
	}
	if err := checkKeyLength(suite.KeyAlgorithm(), bits/8); err != nil {
		return nil, err
	}
	maxVersions := opts.MaxVersions
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}
	random := opts.Random
	if random == nil {
		random = SystemRandom
	}
	return &KeyRing{
		transformation: t.String(),
		algorithm:      suite.KeyAlgorithm(),
		keyBits:        bits,
		versions:       make(map[string]*KeyVersion),
		maxVersions:    maxVersions,
		audit:          auditOrNoOp(opts.Audit),
		random:         random,
		codec:          DefaultTextCodec(),
	}, nil
}

func (r *KeyRing) log(action string, success bool, kv *KeyVersion, err error) {
	md := map[string]interface{}{}
	if kv != nil {
		md["key_id"] = kv.ID
		md["version"] = kv.Version
		md["fingerprint"] = kv.Fingerprint
	}
	if err != nil {
		md["error"] = err.Error()
	}
	_ = r.audit.Log(action, success, md)
}

func (r *KeyRing) checkOpen() error {
	if r.closed {
		return newError(ErrClosed, ErrCodeClosed, "key ring is closed")
	}
	return nil
}

// Generate creates a new pending key version.
func (r *KeyRing) Generate(purpose string) (KeyVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kv, err := r.generateLocked(purpose)
	if err != nil {
		return KeyVersion{}, err
	}
	return kv.snapshot(), nil
}

func (r *KeyRing) generateLocked(purpose string) (*KeyVersion, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	secret, err := GenerateSecretFrom(r.random, r.algorithm, r.keyBits)
	if err != nil {
		r.log("keyring.generate", false, nil, err)
		return nil, err
	}
	env, err := NewCipherEnvelopeBuilder().
		Transformation(r.transformation).
		KeySource(DirectKey(secret)).
		Random(r.random).
		Build()
	if err != nil {
		secret.Destroy()
		return nil, err
	}
	fp, _ := secret.Fingerprint()

	kv := &KeyVersion{
		ID:             uuid.NewString(),
		Version:        r.nextVersion(),
		CreatedAt:      timecache.CachedTime().UTC(),
		Status:         StatusPending,
		Transformation: r.transformation,
		Purpose:        purpose,
		Fingerprint:    fp,
		Metadata:       map[string]interface{}{"key_bits": r.keyBits},
		secret:         secret,
		envelope:       env,
	}
	r.versions[kv.ID] = kv
	r.log("keyring.generate", true, kv, nil)
	return kv, nil
}

// Activate makes id the active key; the previous active key is deprecated
// and stays available for decryption.
func (r *KeyRing) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	kv, ok := r.versions[id]
	if !ok {
		return newError(ErrKeyNotFound, ErrCodeKeyRing, fmt.Sprintf("key ID %s not found", id))
	}
	if kv.Status == StatusRevoked {
		return newError(ErrKeyRevoked, ErrCodeKeyRing, fmt.Sprintf("cannot activate revoked key %s", id))
	}
	if r.pending == kv {
		r.pending = nil
	}
	r.promoteLocked(kv)
	r.log("keyring.activate", true, kv, nil)
	return nil
}

func (r *KeyRing) promoteLocked(kv *KeyVersion) {
	if r.active != nil && r.active != kv {
		r.active.Status = StatusDeprecated
		r.previous = r.active
	}
	kv.Status = StatusActive
	r.active = kv
	r.cleanupLocked()
}

// Rotate generates and activates a new key in one step.
func (r *KeyRing) Rotate(purpose string) (KeyVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kv, err := r.generateLocked(purpose)
	if err != nil {
		return KeyVersion{}, err
	}
	r.promoteLocked(kv)
	r.log("keyring.rotate", true, kv, nil)
	return kv.snapshot(), nil
}

// PrepareRotation generates the next key in pending state without touching
// the active key. Only one rotation can be in progress.
func (r *KeyRing) PrepareRotation(purpose string) (KeyVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		return KeyVersion{}, newError(ErrRotationState, ErrCodeKeyRing, "rotation already in progress")
	}
	kv, err := r.generateLocked(purpose)
	if err != nil {
		return KeyVersion{}, err
	}
	r.pending = kv
	return kv.snapshot(), nil
}

// ValidateRotation round-trips probe data through the pending key.
// A pending key that fails is revoked.
func (r *KeyRing) ValidateRotation() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return newError(ErrRotationState, ErrCodeKeyRing, "no pending key to validate")
	}
	probe := []byte("keyring-rotation-probe")
	env, err := r.pending.envelope.Encrypt(probe)
	if err == nil {
		var out []byte
		if out, err = r.pending.envelope.Decrypt(env); err == nil && !bytes.Equal(out, probe) {
			err = newError(ErrPrimitiveFailure, ErrCodeKeyRing, "probe round trip mismatch")
		}
	}
	if err != nil {
		r.log("keyring.validate", false, r.pending, err)
		r.revokeLocked(r.pending)
		r.pending = nil
		return err
	}
	r.pending.Status = StatusValidating
	r.log("keyring.validate", true, r.pending, nil)
	return nil
}

// CommitRotation activates the validated pending key.
func (r *KeyRing) CommitRotation() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil || r.pending.Status != StatusValidating {
		return newError(ErrRotationState, ErrCodeKeyRing, "no validated pending key to commit")
	}
	kv := r.pending
	r.pending = nil
	r.promoteLocked(kv)
	r.log("keyring.commit", true, kv, nil)
	return nil
}

// RollbackRotation revokes the pending key.
func (r *KeyRing) RollbackRotation() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return newError(ErrRotationState, ErrCodeKeyRing, "no rotation in progress to rollback")
	}
	kv := r.pending
	r.pending = nil
	r.revokeLocked(kv)
	r.log("keyring.rollback", true, kv, nil)
	return nil
}

// RotateZeroDowntime runs prepare, validate and commit, rolling back on failure.
func (r *KeyRing) RotateZeroDowntime(purpose string) (KeyVersion, error) {
	kv, err := r.PrepareRotation(purpose)
	if err != nil {
		return KeyVersion{}, err
	}
	if err := r.ValidateRotation(); err != nil {
		return KeyVersion{}, err
	}
	if err := r.CommitRotation(); err != nil {
		_ = r.RollbackRotation()
		return KeyVersion{}, err
	}
	kv.Status = StatusActive
	return kv, nil
}

// Current returns the active key version.
func (r *KeyRing) Current() (KeyVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return KeyVersion{}, newError(ErrKeyNotFound, ErrCodeKeyRing, "no active key")
	}
	return r.active.snapshot(), nil
}

// ByID returns the version with the given ID unless it is revoked.
func (r *KeyRing) ByID(id string) (KeyVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kv, err := r.lookupLocked(id)
	if err != nil {
		return KeyVersion{}, err
	}
	return kv.snapshot(), nil
}

func (r *KeyRing) lookupLocked(id string) (*KeyVersion, error) {
	kv, ok := r.versions[id]
	if !ok {
		return nil, newError(ErrKeyNotFound, ErrCodeKeyRing, fmt.Sprintf("key ID %s not found", id))
	}
	if kv.Status == StatusRevoked {
		return nil, newError(ErrKeyRevoked, ErrCodeKeyRing, fmt.Sprintf("key %s is revoked", id))
	}
	return kv, nil
}

// List returns every version ordered by version number.
func (r *KeyRing) List() []KeyVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]KeyVersion, 0, len(r.versions))
	for _, kv := range r.versions {
		out = append(out, kv.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Revoke destroys the key material of id. The active key cannot be revoked.
func (r *KeyRing) Revoke(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kv, ok := r.versions[id]
	if !ok {
		return newError(ErrKeyNotFound, ErrCodeKeyRing, fmt.Sprintf("key ID %s not found", id))
	}
	if r.active == kv {
		return newError(ErrRotationState, ErrCodeKeyRing, "cannot revoke the active key, rotate first")
	}
	if r.pending == kv {
		r.pending = nil
	}
	r.revokeLocked(kv)
	r.log("keyring.revoke", true, kv, nil)
	return nil
}

func (r *KeyRing) revokeLocked(kv *KeyVersion) {
	kv.Status = StatusRevoked
	kv.secret.Destroy()
	if r.previous == kv {
		r.previous = nil
	}
}

// EnvelopeFor returns the CipherEnvelope of a non-revoked version.
func (r *KeyRing) EnvelopeFor(id string) (*CipherEnvelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kv, err := r.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return kv.envelope, nil
}

// DeriveDataKey derives a data key from the active key with HKDF-SHA256,
// bound to context. It returns the key and the ID of the key it came from.
func (r *KeyRing) DeriveDataKey(context []byte, bits int, algorithm string) (*SecretMaterial, string, error) {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()
	if active == nil {
		return nil, "", newError(ErrKeyNotFound, ErrCodeKeyRing, "no active key")
	}
	if bits <= 0 || bits%8 != 0 {
		return nil, "", newError(ErrInvalidKeySize, ErrCodeInvalidKey, "data key bits must be a positive multiple of 8")
	}
	var dk *SecretMaterial
	err := active.secret.use(func(master []byte) error {
		okm, err := DeriveKeyHKDF(master, nil, context, bits/8)
		if err != nil {
			return wrapError(ErrPrimitiveFailure, err, ErrCodeKDF, "data key derivation failed")
		}
		dk = adoptSecret(okm, algorithm)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return dk, active.ID, nil
}

// EncryptString encrypts with the active key and returns "keyID:ciphertext".
func (r *KeyRing) EncryptString(plaintext string) (string, error) {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()
	if active == nil {
		return "", newError(ErrKeyNotFound, ErrCodeKeyRing, "no active key")
	}
	env, err := active.envelope.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return active.ID + ":" + r.codec.Wrap(env), nil
}

// DecryptString decrypts a value produced by EncryptString with any
// non-revoked version.
func (r *KeyRing) DecryptString(ciphertext string) (string, error) {
	id, body, ok := strings.Cut(ciphertext, ":")
	if !ok || id == "" {
		return "", newError(ErrInvalidCiphertext, ErrCodeKeyRing, "ciphertext has no key ID prefix")
	}
	env, err := r.EnvelopeFor(id)
	if err != nil {
		return "", err
	}
	raw, err := r.codec.Unwrap(body)
	if err != nil {
		return "", err
	}
	plain, err := env.Decrypt(raw)
	if err != nil {
		return "", err
	}
	defer Zeroize(plain)
	return string(plain), nil
}

// Export returns the ring metadata as JSON. Key material is never included.
func (r *KeyRing) Export() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	export := struct {
		Transformation string                `json:"transformation"`
		Versions       map[string]KeyVersion `json:"versions"`
		Current        string                `json:"current,omitempty"`
		Previous       string                `json:"previous,omitempty"`
		MaxVersions    int                   `json:"max_versions"`
	}{
		Transformation: r.transformation,
		Versions:       make(map[string]KeyVersion, len(r.versions)),
		MaxVersions:    r.maxVersions,
	}
	for id, kv := range r.versions {
		export.Versions[id] = kv.snapshot()
	}
	if r.active != nil {
		export.Current = r.active.ID
	}
	if r.previous != nil {
		export.Previous = r.previous.ID
	}
	data, err := json.Marshal(export)
	if err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodeKeyRing, "failed to marshal key ring")
	}
	return data, nil
}

// Close destroys every key. The ring is unusable afterwards.
func (r *KeyRing) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	for _, kv := range r.versions {
		kv.secret.Destroy()
		kv.Status = StatusRevoked
	}
	r.active, r.pending, r.previous = nil, nil, nil
	r.closed = true
	r.log("keyring.close", true, nil, nil)
	return nil
}

func (r *KeyRing) nextVersion() int {
	maxVersion := 0
	for _, kv := range r.versions {
		if kv.Version > maxVersion {
			maxVersion = kv.Version
		}
	}
	return maxVersion + 1
}

// cleanupLocked drops revoked versions, oldest first, while the ring is over its limit.
func (r *KeyRing) cleanupLocked() {
	if len(r.versions) <= r.maxVersions {
		return
	}
	revoked := make([]*KeyVersion, 0)
	for _, kv := range r.versions {
		if kv.Status == StatusRevoked {
			revoked = append(revoked, kv)
		}
	}
	sort.Slice(revoked, func(i, j int) bool { return revoked[i].Version < revoked[j].Version })
	for _, kv := range revoked {
		if len(r.versions) <= r.maxVersions {
			return
		}
		delete(r.versions, kv.ID)
	}
}
