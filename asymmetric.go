// asymmetric.go: Public-key suites (RSA, ML-KEM-768 hybrid) and key encoding helpers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"golang.org/x/crypto/hkdf"
)

const (
	mlkemCiphertextSize = mlkem768.CiphertextSize
	mlkemHKDFInfo       = "cryptex:mlkem768:aes-256-gcm:v1"
)

// PEM block types understood by the key helpers.
const (
	pemPublicKey      = "PUBLIC KEY"
	pemPrivateKey     = "PRIVATE KEY"
	pemMLKEMPublic    = "ML-KEM-768 PUBLIC KEY"
	pemMLKEMPrivate   = "ML-KEM-768 PRIVATE KEY"
	pemRSAPrivateKey  = "RSA PRIVATE KEY"
	minRSAModulusBits = 2048
)

// GenerateRSAKeyPair generates an RSA key pair for the RSA suites.
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < minRSAModulusBits {
		return nil, newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("RSA modulus must be at least %d bits", minRSAModulusBits))
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, "failed to generate RSA key")
	}
	return priv, nil
}

// GenerateMLKEMKeyPair generates an ML-KEM-768 key pair for the MLKEM768/GCM suite.
func GenerateMLKEMKeyPair(r io.Reader) (*mlkem768.PublicKey, *mlkem768.PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := mlkem768.GenerateKeyPair(r)
	if err != nil {
		return nil, nil, wrapError(ErrRandomSource, err, ErrCodeRandomSource, "failed to generate ML-KEM-768 key pair")
	}
	return pub, priv, nil
}

// checkAsymmetricKeys validates key types for s. private may be nil for
// encrypt-only envelopes; public may be nil for decrypt-only envelopes.
func checkAsymmetricKeys(s Suite, public, private any) error {
	if public == nil && private == nil {
		return newError(ErrMissingConfiguration, ErrCodeMissingConfig, "asymmetric key source needs a public or private key")
	}
	switch s {
	case SuiteRSAOAEP, SuiteRSAPKCS1:
		if public != nil {
			pub, ok := public.(*rsa.PublicKey)
			if !ok {
				return newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("%s needs *rsa.PublicKey, got %T", s, public))
			}
			if pub.N.BitLen() < minRSAModulusBits {
				return newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("RSA modulus must be at least %d bits", minRSAModulusBits))
			}
		}
		if private != nil {
			if _, ok := private.(*rsa.PrivateKey); !ok {
				return newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("%s needs *rsa.PrivateKey, got %T", s, private))
			}
		}
	case SuiteMLKEM768GCM:
		if public != nil {
			if _, ok := public.(*mlkem768.PublicKey); !ok {
				return newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("%s needs *mlkem768.PublicKey, got %T", s, public))
			}
		}
		if private != nil {
			if _, ok := private.(*mlkem768.PrivateKey); !ok {
				return newError(ErrInvalidKeySize, ErrCodeInvalidKey, fmt.Sprintf("%s needs *mlkem768.PrivateKey, got %T", s, private))
			}
		}
	default:
		return newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, fmt.Sprintf("%s is not an asymmetric suite", s))
	}
	return nil
}

// rsaModulusLen returns the modulus size in bytes of the RSA key in public or private.
func rsaModulusLen(public, private any) int {
	if pub, ok := public.(*rsa.PublicKey); ok {
		return pub.Size()
	}
	if priv, ok := private.(*rsa.PrivateKey); ok {
		return priv.Size()
	}
	return 0
}

func asymmetricEncrypt(req PrimitiveRequest) ([]byte, error) {
	random := req.Random
	if random == nil {
		random = rand.Reader
	}
	switch req.Suite {
	case SuiteRSAOAEP:
		pub, ok := req.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "RSA public key required for encryption")
		}
		out, err := rsa.EncryptOAEP(sha256.New(), random, pub, req.Data, nil)
		if err != nil {
			return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, "RSA-OAEP encryption failed")
		}
		return out, nil

	case SuiteRSAPKCS1:
		pub, ok := req.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "RSA public key required for encryption")
		}
		out, err := rsa.EncryptPKCS1v15(random, pub, req.Data) // #nosec G401 -- legacy padding kept for interoperability
		if err != nil {
			return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, "RSA-PKCS1 encryption failed")
		}
		return out, nil

	case SuiteMLKEM768GCM:
		pub, ok := req.PublicKey.(*mlkem768.PublicKey)
		if !ok {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "ML-KEM-768 public key required for encryption")
		}
		seed := make([]byte, mlkem768.EncapsulationSeedSize)
		defer Zeroize(seed)
		if _, err := io.ReadFull(random, seed); err != nil {
			return nil, wrapError(ErrRandomSource, err, ErrCodeRandomSource, "failed to read encapsulation seed")
		}
		ct := make([]byte, mlkem768.CiphertextSize)
		shared := make([]byte, mlkem768.SharedKeySize)
		defer Zeroize(shared)
		pub.EncapsulateTo(ct, shared, seed)

		gcm, err := hybridAEAD(shared)
		if err != nil {
			return nil, err
		}
		if len(req.IV) != gcm.NonceSize() {
			return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "nonce has wrong size")
		}
		return gcm.Seal(ct, req.IV, req.Data, req.AAD), nil // #nosec G407 -- nonce comes from the envelope random source
	}
	return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "suite is not asymmetric")
}

func asymmetricDecrypt(req PrimitiveRequest) ([]byte, error) {
	switch req.Suite {
	case SuiteRSAOAEP, SuiteRSAPKCS1:
		priv, ok := req.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "RSA private key required for decryption")
		}
		var (
			out []byte
			err error
		)
		if req.Suite == SuiteRSAOAEP {
			out, err = rsa.DecryptOAEP(sha256.New(), nil, priv, req.Data, nil)
		} else {
			out, err = rsa.DecryptPKCS1v15(nil, priv, req.Data) // #nosec G401 -- legacy padding kept for interoperability
		}
		if err != nil {
			// The RSA error is deliberately not wrapped to avoid a padding oracle.
			return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "decryption failed")
		}
		return out, nil

	case SuiteMLKEM768GCM:
		priv, ok := req.PrivateKey.(*mlkem768.PrivateKey)
		if !ok {
			return nil, newError(ErrMissingConfiguration, ErrCodeMissingConfig, "ML-KEM-768 private key required for decryption")
		}
		if len(req.Data) < mlkem768.CiphertextSize+AEADTagSize {
			return nil, newError(ErrInvalidCiphertext, ErrCodeCipherShort, "payload shorter than encapsulation and tag")
		}
		shared := make([]byte, mlkem768.SharedKeySize)
		defer Zeroize(shared)
		priv.DecapsulateTo(shared, req.Data[:mlkem768.CiphertextSize])

		gcm, err := hybridAEAD(shared)
		if err != nil {
			return nil, err
		}
		if len(req.IV) != gcm.NonceSize() {
			return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "nonce has wrong size")
		}
		plain, err := gcm.Open(nil, req.IV, req.Data[mlkem768.CiphertextSize:], req.AAD)
		if err != nil {
			return nil, newError(ErrAuthenticationFailed, ErrCodeAuthentication, "message authentication failed")
		}
		return plain, nil
	}
	return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "suite is not asymmetric")
}

// hybridAEAD turns a KEM shared secret into an AES-256-GCM instance.
func hybridAEAD(shared []byte) (cipher.AEAD, error) {
	key := make([]byte, 32)
	defer Zeroize(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(mlkemHKDFInfo)), key); err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodeKDF, "failed to derive hybrid key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, "failed to create AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, "failed to create GCM mode")
	}
	return gcm, nil
}

// MarshalPublicKeyPEM encodes an RSA, ECDSA, Ed25519 or ML-KEM-768 public key as PEM.
func MarshalPublicKeyPEM(pub any) ([]byte, error) {
	if k, ok := pub.(*mlkem768.PublicKey); ok {
		der, err := k.MarshalBinary()
		if err != nil {
			return nil, wrapError(ErrPrimitiveFailure, err, ErrCodeCodec, "failed to marshal ML-KEM public key")
		}
		return pem.EncodeToMemory(&pem.Block{Type: pemMLKEMPublic, Bytes: der}), nil
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, wrapError(ErrUnsupportedAlgorithm, err, ErrCodeCodec, "failed to marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der}), nil
}

// MarshalPrivateKeyPEM encodes a private key as PKCS#8 PEM (or raw ML-KEM-768).
// The intermediate DER buffer is wiped; the returned PEM is the caller's to clear.
func MarshalPrivateKeyPEM(priv any) ([]byte, error) {
	if k, ok := priv.(*mlkem768.PrivateKey); ok {
		raw, err := k.MarshalBinary()
		if err != nil {
			return nil, wrapError(ErrPrimitiveFailure, err, ErrCodeCodec, "failed to marshal ML-KEM private key")
		}
		defer Zeroize(raw)
		return pem.EncodeToMemory(&pem.Block{Type: pemMLKEMPrivate, Bytes: raw}), nil
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, wrapError(ErrUnsupportedAlgorithm, err, ErrCodeCodec, "failed to marshal private key")
	}
	defer Zeroize(der)
	return pem.EncodeToMemory(&pem.Block{Type: pemPrivateKey, Bytes: der}), nil
}

// ParsePublicKeyPEM decodes the first PEM block of data into a public key.
func ParsePublicKeyPEM(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newError(ErrInvalidKeySize, ErrCodeCodec, "no PEM block found")
	}
	switch block.Type {
	case pemMLKEMPublic:
		pk, err := mlkem768.Scheme().UnmarshalBinaryPublicKey(block.Bytes)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeCodec, "invalid ML-KEM-768 public key")
		}
		return pk, nil
	case pemPublicKey:
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeCodec, "invalid PKIX public key")
		}
		return pub, nil
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeCodec, fmt.Sprintf("unexpected PEM block %q", block.Type))
	}
}

// ParsePrivateKeyPEM decodes the first PEM block of data into a private key.
// PKCS#8, PKCS#1 RSA and raw ML-KEM-768 blocks are accepted.
func ParsePrivateKeyPEM(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newError(ErrInvalidKeySize, ErrCodeCodec, "no PEM block found")
	}
	defer Zeroize(block.Bytes)
	switch block.Type {
	case pemMLKEMPrivate:
		sk, err := mlkem768.Scheme().UnmarshalBinaryPrivateKey(block.Bytes)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeCodec, "invalid ML-KEM-768 private key")
		}
		return sk, nil
	case pemPrivateKey:
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeCodec, "invalid PKCS#8 private key")
		}
		return priv, nil
	case pemRSAPrivateKey:
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeCodec, "invalid PKCS#1 private key")
		}
		return priv, nil
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeCodec, fmt.Sprintf("unexpected PEM block %q", block.Type))
	}
}
