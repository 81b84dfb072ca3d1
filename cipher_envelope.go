// cipher_envelope.go: Self-describing encrypt/decrypt for direct, password and public keys.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"fmt"
)

type keySourceKind int

const (
	keyNone keySourceKind = iota
	keyDirect
	keyPassword
	keyAsymmetric
)

func (k keySourceKind) String() string {
	switch k {
	case keyDirect:
		return "direct"
	case keyPassword:
		return "password"
	case keyAsymmetric:
		return "asymmetric"
	default:
		return "none"
	}
}

// KeySource tells a CipherEnvelope where its key comes from.
// Use DirectKey, PasswordKey or AsymmetricKey to create one.
type KeySource struct {
	kind     keySourceKind
	secret   *SecretMaterial
	password *SecretMaterial
	params   PasswordDerivationParams
	public   any
	private  any
}

// DirectKey uses secret for every operation. The envelope borrows secret;
// the caller still owns it and may Destroy it, after which calls fail with
// ErrSecretDestroyed.
func DirectKey(secret *SecretMaterial) KeySource {
	return KeySource{kind: keyDirect, secret: secret}
}

// PasswordKey derives a fresh key from password and a random salt on every
// encryption, and from the stored salt on decryption. password is copied;
// the caller should clear its own buffer. The copy is wiped when Build fails
// or when the envelope is destroyed.
func PasswordKey(password []byte, params PasswordDerivationParams) KeySource {
	return KeySource{
		kind:     keyPassword,
		password: NewSecretMaterial(password, "PBE"),
		params:   params,
	}
}

// AsymmetricKey encrypts with public and decrypts with private. Either may be
// nil for envelopes that only encrypt or only decrypt.
//
// RSA suites take *rsa.PublicKey / *rsa.PrivateKey; MLKEM768/GCM takes
// *mlkem768.PublicKey / *mlkem768.PrivateKey.
func AsymmetricKey(public, private any) KeySource {
	return KeySource{kind: keyAsymmetric, public: public, private: private}
}

// CipherEnvelopeBuilder collects the configuration of a CipherEnvelope.
// Nothing is validated until Build.
type CipherEnvelopeBuilder struct {
	spec      string
	specSet   bool
	source    KeySource
	random    RandomSource
	primitive CipherPrimitive
}

// NewCipherEnvelopeBuilder returns an empty builder.
func NewCipherEnvelopeBuilder() *CipherEnvelopeBuilder {
	return &CipherEnvelopeBuilder{}
}

// Transformation sets the ALGORITHM/MODE/PADDING specifier.
func (b *CipherEnvelopeBuilder) Transformation(spec string) *CipherEnvelopeBuilder {
	b.spec = spec
	b.specSet = true
	return b
}

// KeySource sets the key source.
func (b *CipherEnvelopeBuilder) KeySource(k KeySource) *CipherEnvelopeBuilder {
	b.source = k
	return b
}

// Random overrides the source of IVs, salts and asymmetric padding entropy.
func (b *CipherEnvelopeBuilder) Random(r RandomSource) *CipherEnvelopeBuilder {
	b.random = r
	return b
}

// Primitive overrides the cipher backend.
func (b *CipherEnvelopeBuilder) Primitive(p CipherPrimitive) *CipherEnvelopeBuilder {
	b.primitive = p
	return b
}

// Build validates the configuration and returns an immutable envelope.
// Every error it returns is a configuration error (errors.Is(err, ErrConfig)).
func (b *CipherEnvelopeBuilder) Build() (*CipherEnvelope, error) {
	env, err := b.build()
	if err != nil && b.source.kind == keyPassword && b.source.password != nil {
		b.source.password.Destroy()
	}
	return env, err
}

func (b *CipherEnvelopeBuilder) build() (*CipherEnvelope, error) {
	if !b.specSet {
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "transformation is required")
	}
	t, err := ParseTransformation(b.spec)
	if err != nil {
		return nil, err
	}
	suite, err := ResolveSuite(t)
	if err != nil {
		return nil, err
	}

	src := b.source
	switch src.kind {
	case keyNone:
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "key source is required")
	case keyAsymmetric:
		if !suite.IsAsymmetric() {
			return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported,
				fmt.Sprintf("%s needs a symmetric key source", suite))
		}
		if err := checkAsymmetricKeys(suite, src.public, src.private); err != nil {
			return nil, err
		}
	default:
		if suite.IsAsymmetric() {
			return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported,
				fmt.Sprintf("%s needs an asymmetric key source", suite))
		}
	}

	switch src.kind {
	case keyDirect:
		if src.secret == nil {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "direct key is nil")
		}
		n, err := src.secret.Len()
		if err != nil {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "direct key has been destroyed")
		}
		if err := checkKeyLength(suite.KeyAlgorithm(), n); err != nil {
			return nil, err
		}
	case keyPassword:
		if n, err := src.password.Len(); err != nil || n == 0 {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "password cannot be empty")
		}
		if err := src.params.Validate(); err != nil {
			return nil, err
		}
		if err := checkKeyLength(suite.KeyAlgorithm(), src.params.KeyLen()); err != nil {
			return nil, err
		}
	}

	random := b.random
	if random == nil {
		random = SystemRandom
	}
	primitive := b.primitive
	if primitive == nil {
		primitive = DefaultPrimitive
	}

	return &CipherEnvelope{
		transformation: t,
		suite:          suite,
		ivSize:         IVSizePolicy(t).Size(suite.BlockSize()),
		noPadding:      suite.padded() && unpadded(t),
		source:         src,
		random:         random,
		primitive:      primitive,
	}, nil
}

// CipherEnvelope encrypts to and decrypts from the layout
//
//	[IV] [salt] [payload]
//
// where the IV is present when the mode needs one and the salt when the key
// is password-derived. A CipherEnvelope is immutable and safe for concurrent
// use: every call allocates its own IV, salt and transient key.
type CipherEnvelope struct {
	transformation Transformation
	suite          Suite
	ivSize         int
	noPadding      bool
	source         KeySource
	random         RandomSource
	primitive      CipherPrimitive
}

// Transformation returns the parsed transformation.
func (e *CipherEnvelope) Transformation() Transformation { return e.transformation }

// Suite returns the resolved cipher suite.
func (e *CipherEnvelope) Suite() Suite { return e.suite }

// IVSize returns the IV size of every envelope produced.
func (e *CipherEnvelope) IVSize() int { return e.ivSize }

// SaltSize returns the salt size, 0 unless the key is password-derived.
func (e *CipherEnvelope) SaltSize() int {
	if e.source.kind == keyPassword {
		return e.source.params.SaltSize
	}
	return 0
}

// Layout returns the IV, salt and payload sizes of the envelope produced for
// a plaintext of plaintextLen bytes.
func (e *CipherEnvelope) Layout(plaintextLen int) (ivSize, saltSize, payloadLen int) {
	modulus := rsaModulusLen(e.source.public, e.source.private)
	return e.ivSize, e.SaltSize(), e.suite.PayloadLen(plaintextLen, e.noPadding, modulus)
}

// Encrypt encrypts plaintext and returns IV ‖ salt ‖ payload.
func (e *CipherEnvelope) Encrypt(plaintext []byte) ([]byte, error) {
	return e.seal(plaintext, nil)
}

// EncryptWithAAD is Encrypt with additional authenticated data. Only AEAD
// suites accept a non-empty aad.
func (e *CipherEnvelope) EncryptWithAAD(plaintext, aad []byte) ([]byte, error) {
	if err := e.checkAAD(aad); err != nil {
		return nil, err
	}
	return e.seal(plaintext, aad)
}

// Decrypt reverses Encrypt.
func (e *CipherEnvelope) Decrypt(envelope []byte) ([]byte, error) {
	return e.open(envelope, nil)
}

// DecryptWithAAD reverses EncryptWithAAD. aad must match the value used to encrypt.
func (e *CipherEnvelope) DecryptWithAAD(envelope, aad []byte) ([]byte, error) {
	if err := e.checkAAD(aad); err != nil {
		return nil, err
	}
	return e.open(envelope, aad)
}

// Destroy wipes the password copy held by a password key source.
// Direct keys are owned by the caller and left untouched.
func (e *CipherEnvelope) Destroy() {
	if e.source.kind == keyPassword {
		e.source.password.Destroy()
	}
}

func (e *CipherEnvelope) checkAAD(aad []byte) error {
	if len(aad) > 0 && !e.suite.IsAEAD() {
		return newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported,
			fmt.Sprintf("%s does not authenticate associated data", e.suite))
	}
	return nil
}

func (e *CipherEnvelope) seal(plaintext, aad []byte) ([]byte, error) {
	iv, err := readRandom(e.random, e.ivSize)
	if err != nil {
		return nil, err
	}
	var salt []byte
	if e.source.kind == keyPassword {
		if salt, err = e.source.params.NewSalt(e.random); err != nil {
			return nil, err
		}
	}

	payload, err := e.withKey(salt, func(key []byte) ([]byte, error) {
		return e.primitive.Encrypt(e.request(key, iv, aad, plaintext))
	})
	if err != nil {
		return nil, err
	}
	return frame(iv, salt, payload), nil
}

func (e *CipherEnvelope) open(envelope, aad []byte) ([]byte, error) {
	layout, err := LayoutFor(e.ivSize, e.SaltSize(), len(envelope))
	if err != nil {
		return nil, err
	}
	iv, salt, payload := layout.Split(envelope)
	return e.withKey(salt, func(key []byte) ([]byte, error) {
		return e.primitive.Decrypt(e.request(key, iv, aad, payload))
	})
}

func (e *CipherEnvelope) request(key, iv, aad, data []byte) PrimitiveRequest {
	return PrimitiveRequest{
		Suite:      e.suite,
		NoPadding:  e.noPadding,
		Key:        key,
		PublicKey:  e.source.public,
		PrivateKey: e.source.private,
		IV:         iv,
		AAD:        aad,
		Data:       data,
		Random:     e.random,
	}
}

// withKey runs fn with the key for this operation. A password-derived key
// lives only for the duration of fn and is destroyed on every return path.
func (e *CipherEnvelope) withKey(salt []byte, fn func(key []byte) ([]byte, error)) ([]byte, error) {
	var out []byte
	borrow := func(key []byte) error {
		var err error
		out, err = fn(key)
		return err
	}

	switch e.source.kind {
	case keyAsymmetric:
		return fn(nil)
	case keyDirect:
		if err := e.source.secret.use(borrow); err != nil {
			return nil, err
		}
		return out, nil
	case keyPassword:
		derived, err := deriveFromSecretPassword(e.source.password, salt, e.source.params, e.suite.KeyAlgorithm())
		if err != nil {
			return nil, err
		}
		defer derived.Destroy()
		if err := derived.use(borrow); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "key source is required")
}
