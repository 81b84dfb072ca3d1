// framing.go: IV, tag and byte-range policy for self-describing envelopes.
//
// Every envelope produced by this package is laid out as
//
//	[IV (if the mode needs one)] [salt (if the key is password-derived)] [payload]
//
// The functions in this file are the only place that decide IV and tag sizes.
// Cipher, integrity and stream envelopes all consult them, so two code paths
// can never disagree about the framing of the same mode.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import "fmt"

// GCMNonceSize is the nonce size used for GCM and ChaCha20-Poly1305 envelopes.
const GCMNonceSize = 12

// AEADTagSize is the authentication tag size appended by AEAD modes.
const AEADTagSize = 16

// IVKind classifies how a mode obtains its initialization vector.
type IVKind int

const (
	// IVNone means the mode takes no IV (ECB, asymmetric suites, MACs).
	IVNone IVKind = iota
	// IVFixed means the IV has a fixed size independent of the block size.
	IVFixed
	// IVBlockSize means the IV is exactly one cipher block.
	IVBlockSize
)

// String returns a readable name for the kind.
func (k IVKind) String() string {
	switch k {
	case IVNone:
		return "none"
	case IVFixed:
		return "fixed"
	case IVBlockSize:
		return "block"
	default:
		return fmt.Sprintf("IVKind(%d)", int(k))
	}
}

// IVPolicy describes the IV requirement of a transformation.
type IVPolicy struct {
	Kind  IVKind
	Fixed int // size in bytes when Kind == IVFixed
}

// Required reports whether an IV is part of the envelope.
func (p IVPolicy) Required() bool { return p.Kind != IVNone }

// Size resolves the policy to a byte count for a cipher with the given block size.
func (p IVPolicy) Size(blockSize int) int {
	switch p.Kind {
	case IVFixed:
		return p.Fixed
	case IVBlockSize:
		return blockSize
	default:
		return 0
	}
}

// Mode families recognised by the framing policy.
var (
	aeadModes    = []string{"GCM", "Poly1305"}
	blockIVModes = []string{"CBC", `CFB\d*`, `OFB\d*`, "CTR"}
)

// isChaCha reports whether t names the ChaCha20-Poly1305 AEAD.
func isChaCha(t Transformation) bool {
	return t.IsAlgorithm("ChaCha20-Poly1305") || (t.IsAlgorithm("ChaCha20") && t.IsMode("Poly1305"))
}

// IsAEAD reports whether t produces an authentication tag alongside the ciphertext.
func IsAEAD(t Transformation) bool {
	return isChaCha(t) || t.IsMode(aeadModes...)
}

// IVSizePolicy returns the IV policy for t.
//
//   - GCM and ChaCha20-Poly1305: a fixed 12-byte nonce
//   - CBC, CFB, OFB, CTR (with optional bit suffix): one cipher block
//   - ECB, modeless algorithms and asymmetric suites: no IV
func IVSizePolicy(t Transformation) IVPolicy {
	switch {
	case IsAEAD(t):
		return IVPolicy{Kind: IVFixed, Fixed: GCMNonceSize}
	case t.IsMode(blockIVModes...):
		return IVPolicy{Kind: IVBlockSize}
	default:
		return IVPolicy{Kind: IVNone}
	}
}

// TagSize returns the authentication tag size of t and whether t has one.
// For non-AEAD modes the integrity of the payload is not framed separately.
func TagSize(t Transformation) (int, bool) {
	if IsAEAD(t) {
		return AEADTagSize, true
	}
	return 0, false
}

// Range is a half-open byte range [Start, End) inside an envelope.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by r.
func (r Range) Len() int { return r.End - r.Start }

// EnvelopeLayout describes where IV, salt and payload live inside an envelope.
// It is computed, never stored: the same inputs always produce the same layout.
type EnvelopeLayout struct {
	IV      Range
	Salt    Range
	Payload Range
}

// HasIV reports whether the layout contains an IV.
func (l EnvelopeLayout) HasIV() bool { return l.IV.Len() > 0 }

// HasSalt reports whether the layout contains a salt.
func (l EnvelopeLayout) HasSalt() bool { return l.Salt.Len() > 0 }

// Overhead returns the number of framing bytes that precede the payload.
func (l EnvelopeLayout) Overhead() int { return l.Payload.Start }

// LayoutFor computes the layout of an envelope of total bytes with the given
// IV and salt sizes. It fails with ErrInvalidCiphertext when the envelope is
// too short to hold the framing.
func LayoutFor(ivSize, saltSize, total int) (EnvelopeLayout, error) {
	if ivSize < 0 || saltSize < 0 {
		return EnvelopeLayout{}, newError(ErrInvalidCiphertext, ErrCodeCipherShort, "negative framing size")
	}
	if total < ivSize+saltSize {
		return EnvelopeLayout{}, newError(ErrInvalidCiphertext, ErrCodeCipherShort,
			fmt.Sprintf("envelope too short: %d bytes, framing requires %d", total, ivSize+saltSize))
	}
	return EnvelopeLayout{
		IV:      Range{Start: 0, End: ivSize},
		Salt:    Range{Start: ivSize, End: ivSize + saltSize},
		Payload: Range{Start: ivSize + saltSize, End: total},
	}, nil
}

// Split slices env according to the layout. The returned slices alias env.
func (l EnvelopeLayout) Split(env []byte) (iv, salt, payload []byte) {
	if l.HasIV() {
		iv = env[l.IV.Start:l.IV.End]
	}
	if l.HasSalt() {
		salt = env[l.Salt.Start:l.Salt.End]
	}
	return iv, salt, env[l.Payload.Start:l.Payload.End]
}

// frame concatenates iv, salt and payload in envelope order into a new slice.
func frame(iv, salt, payload []byte) []byte {
	out := make([]byte, 0, len(iv)+len(salt)+len(payload))
	out = append(out, iv...)
	out = append(out, salt...)
	return append(out, payload...)
}
