// signature.go: Detached signatures over messages.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Signature scheme names.
const (
	SigEd25519        = "Ed25519"
	SigECDSAP256      = "ECDSA-P256-SHA256"
	SigRSAPSS         = "RSA-PSS-SHA256"
	SigMLDSA65        = "ML-DSA-65"
	defaultRSASigBits = 3072
)

// SignatureEnvelope signs and verifies messages with one scheme and key pair.
// The envelope is the raw signature: no IV, no salt.
type SignatureEnvelope struct {
	scheme  string
	public  any
	private any
	random  RandomSource
}

// NewSignatureEnvelope checks that public and private match scheme. Either
// key may be nil for verify-only or sign-only envelopes.
func NewSignatureEnvelope(scheme string, public, private any) (*SignatureEnvelope, error) {
	canonical, err := canonicalScheme(scheme)
	if err != nil {
		return nil, err
	}
	if public == nil && private == nil {
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "signature envelope needs a public or private key")
	}
	var pubOK, privOK bool
	switch canonical {
	case SigEd25519:
		_, pubOK = public.(ed25519.PublicKey)
		_, privOK = private.(ed25519.PrivateKey)
	case SigECDSAP256:
		pub, ok := public.(*ecdsa.PublicKey)
		pubOK = ok && pub.Curve == elliptic.P256()
		priv, ok := private.(*ecdsa.PrivateKey)
		privOK = ok && priv.Curve == elliptic.P256()
	case SigRSAPSS:
		_, pubOK = public.(*rsa.PublicKey)
		_, privOK = private.(*rsa.PrivateKey)
	case SigMLDSA65:
		_, pubOK = public.(*mldsa65.PublicKey)
		_, privOK = private.(*mldsa65.PrivateKey)
	}
	if (public != nil && !pubOK) || (private != nil && !privOK) {
		return nil, newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("key types %T/%T do not match %s", public, private, canonical))
	}
	return &SignatureEnvelope{scheme: canonical, public: public, private: private, random: SystemRandom}, nil
}

func canonicalScheme(scheme string) (string, error) {
	for _, s := range []string{SigEd25519, SigECDSAP256, SigRSAPSS, SigMLDSA65} {
		if strings.EqualFold(strings.TrimSpace(scheme), s) {
			return s, nil
		}
	}
	return "", newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, fmt.Sprintf("unsupported signature scheme %q", scheme))
}

// Scheme returns the canonical scheme name.
func (s *SignatureEnvelope) Scheme() string { return s.scheme }

// Sign returns the signature of message.
func (s *SignatureEnvelope) Sign(message []byte) ([]byte, error) {
	if s.private == nil {
		return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "private key required for signing")
	}
	var (
		sig []byte
		err error
	)
	switch priv := s.private.(type) {
	case ed25519.PrivateKey:
		sig = ed25519.Sign(priv, message)
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256(message)
		sig, err = ecdsa.SignASN1(s.random, priv, digest[:])
	case *rsa.PrivateKey:
		digest := sha256.Sum256(message)
		sig, err = rsa.SignPSS(s.random, priv, stdcrypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	case *mldsa65.PrivateKey:
		sig, err = priv.Sign(s.random, message, stdcrypto.Hash(0))
	}
	if err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, s.scheme+" signing failed")
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature of message.
// An invalid signature returns false and a nil error.
func (s *SignatureEnvelope) Verify(message, sig []byte) (bool, error) {
	if s.public == nil {
		return false, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "public key required for verification")
	}
	switch pub := s.public.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(pub, message, sig), nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(pub, digest[:], sig), nil
	case *rsa.PublicKey:
		digest := sha256.Sum256(message)
		err := rsa.VerifyPSS(pub, stdcrypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		return err == nil, nil
	case *mldsa65.PublicKey:
		return mldsa65.Verify(pub, message, nil, sig), nil
	}
	return false, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "unsupported public key")
}

// GenerateSigningKey creates a key pair for scheme.
func GenerateSigningKey(scheme string) (public, private any, err error) {
	canonical, err := canonicalScheme(scheme)
	if err != nil {
		return nil, nil, err
	}
	switch canonical {
	case SigEd25519:
		public, private, err = ed25519.GenerateKey(rand.Reader)
	case SigECDSAP256:
		var k *ecdsa.PrivateKey
		if k, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err == nil {
			public, private = &k.PublicKey, k
		}
	case SigRSAPSS:
		var k *rsa.PrivateKey
		if k, err = rsa.GenerateKey(rand.Reader, defaultRSASigBits); err == nil {
			public, private = &k.PublicKey, k
		}
	case SigMLDSA65:
		public, private, err = mldsa65.GenerateKey(rand.Reader)
	}
	if err != nil {
		return nil, nil, wrapError(ErrRandomSource, err, ErrCodeRandomSource, "failed to generate "+canonical+" key")
	}
	return public, private, nil
}
