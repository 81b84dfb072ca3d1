// errors.go: Error taxonomy shared by every envelope component.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"errors"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// Public standard errors. Every error returned by this package wraps exactly
// one of these values, so callers can classify failures with errors.Is.
//
// Configuration errors (ErrConfig and its children) are only produced while
// building an envelope; the remaining errors are produced at call time and
// are terminal for the operation that returned them.
var (
	// ErrConfig is the parent of every configuration error.
	ErrConfig = errors.New("crypto: configuration error")

	// ErrInvalidTransformation is returned when a transformation specifier is empty or malformed.
	ErrInvalidTransformation = fmt.Errorf("%w: invalid transformation", ErrConfig)

	// ErrUnsupportedAlgorithm is returned when an algorithm/mode/padding combination has no implementation.
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrConfig)

	// ErrInvalidKeySize is returned when key material does not fit the selected algorithm.
	ErrInvalidKeySize = fmt.Errorf("%w: invalid key size", ErrConfig)

	// ErrMissingConfiguration is returned when a required builder setting is absent.
	ErrMissingConfiguration = fmt.Errorf("%w: missing configuration", ErrConfig)

	// ErrRandomSource is returned when the secure random source cannot supply bytes.
	ErrRandomSource = errors.New("crypto: random source failure")

	// ErrPrimitiveFailure wraps a failure of the underlying cipher, MAC or KDF primitive.
	ErrPrimitiveFailure = errors.New("crypto: primitive failure")

	// ErrInvalidCiphertext is returned when an envelope is shorter than its framing requires.
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")

	// ErrAuthenticationFailed is returned when an AEAD tag, MAC or signature does not verify.
	ErrAuthenticationFailed = errors.New("crypto: authentication failed")

	// ErrSecretDestroyed is returned by every accessor of a destroyed SecretMaterial.
	ErrSecretDestroyed = errors.New("crypto: secret material destroyed")

	// ErrStreamIO is returned when the reader or writer behind a stream fails.
	ErrStreamIO = errors.New("crypto: stream I/O failure")

	// ErrClosed is returned by streams, key rings and provider managers after Close.
	ErrClosed = errors.New("crypto: closed")

	// ErrKeyNotFound is returned when a key ring or provider lookup has no match.
	ErrKeyNotFound = errors.New("crypto: key not found")

	// ErrKeyRevoked is returned when a revoked key version is requested.
	ErrKeyRevoked = errors.New("crypto: key revoked")

	// ErrRotationState is returned when a rotation step is called out of order.
	ErrRotationState = errors.New("crypto: invalid rotation state")

	// ErrProviderUnavailable is returned when a crypto provider fails its health check.
	ErrProviderUnavailable = errors.New("crypto: provider unavailable")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidTransformation goerrors.ErrorCode = "CRYPTO_INVALID_TRANSFORMATION"
	ErrCodeUnsupported           goerrors.ErrorCode = "CRYPTO_UNSUPPORTED_ALGORITHM"
	ErrCodeInvalidKey            goerrors.ErrorCode = "CRYPTO_INVALID_KEY"
	ErrCodeMissingConfig         goerrors.ErrorCode = "CRYPTO_MISSING_CONFIG"
	ErrCodeRandomSource          goerrors.ErrorCode = "CRYPTO_RANDOM_SOURCE"
	ErrCodePrimitive             goerrors.ErrorCode = "CRYPTO_PRIMITIVE"
	ErrCodeCipherShort           goerrors.ErrorCode = "CRYPTO_CIPHERTEXT_SHORT"
	ErrCodeAuthentication        goerrors.ErrorCode = "CRYPTO_AUTHENTICATION"
	ErrCodeDestroyed             goerrors.ErrorCode = "CRYPTO_SECRET_DESTROYED"
	ErrCodeKDF                   goerrors.ErrorCode = "CRYPTO_KDF"
	ErrCodeCodec                 goerrors.ErrorCode = "CRYPTO_CODEC"
	ErrCodeStream                goerrors.ErrorCode = "CRYPTO_STREAM"
	ErrCodeClosed                goerrors.ErrorCode = "CRYPTO_CLOSED"
	ErrCodeKeyRing               goerrors.ErrorCode = "CRYPTO_KEYRING"
	ErrCodeProvider              goerrors.ErrorCode = "CRYPTO_PROVIDER"
	ErrCodeConfigValue           goerrors.ErrorCode = "CRYPTO_CONFIG_VALUE"
)

// IsConfigError reports whether err was produced while validating configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// newError joins a public sentinel with a coded rich error.
func newError(sentinel error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.New(code, msg))
}

// wrapError joins a public sentinel with a coded rich error wrapping cause.
func wrapError(sentinel, cause error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.Wrap(cause, code, msg))
}

// errDestroyed is the error returned by SecretMaterial accessors after Destroy.
func errDestroyed() error {
	return newError(ErrSecretDestroyed, ErrCodeDestroyed, "secret material has been destroyed")
}
