// primitive.go: Closed set of cipher suites and the default primitive backend.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" // #nosec G502 -- DESede is supported for existing envelopes only
	"crypto/subtle"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite identifies one supported algorithm/mode/padding combination.
// Transformations are resolved to a Suite when an envelope is built, so an
// unsupported combination is reported as a configuration error rather than
// at the first call.
type Suite int

// Supported suites.
const (
	SuiteUnknown Suite = iota
	SuiteAESECB
	SuiteAESCBC
	SuiteAESCFB
	SuiteAESOFB
	SuiteAESCTR
	SuiteAESGCM
	SuiteDESedeECB
	SuiteDESedeCBC
	SuiteDESedeCFB
	SuiteDESedeOFB
	SuiteDESedeCTR
	SuiteChaCha20Poly1305
	SuiteRSAOAEP
	SuiteRSAPKCS1
	SuiteMLKEM768GCM
)

var suiteNames = map[Suite]string{
	SuiteAESECB:           "AES/ECB",
	SuiteAESCBC:           "AES/CBC",
	SuiteAESCFB:           "AES/CFB",
	SuiteAESOFB:           "AES/OFB",
	SuiteAESCTR:           "AES/CTR",
	SuiteAESGCM:           "AES/GCM",
	SuiteDESedeECB:        "DESede/ECB",
	SuiteDESedeCBC:        "DESede/CBC",
	SuiteDESedeCFB:        "DESede/CFB",
	SuiteDESedeOFB:        "DESede/OFB",
	SuiteDESedeCTR:        "DESede/CTR",
	SuiteChaCha20Poly1305: "ChaCha20-Poly1305",
	SuiteRSAOAEP:          "RSA/ECB/OAEPWithSHA-256AndMGF1Padding",
	SuiteRSAPKCS1:         "RSA/ECB/PKCS1Padding",
	SuiteMLKEM768GCM:      "MLKEM768/GCM",
}

// String returns the canonical name of the suite.
func (s Suite) String() string {
	if n, ok := suiteNames[s]; ok {
		return n
	}
	return "Suite(" + strconv.Itoa(int(s)) + ")"
}

// KeyAlgorithm returns the algorithm tag expected on SecretMaterial used with s.
func (s Suite) KeyAlgorithm() string {
	switch {
	case s >= SuiteAESECB && s <= SuiteAESGCM:
		return "AES"
	case s >= SuiteDESedeECB && s <= SuiteDESedeCTR:
		return "DESede"
	case s == SuiteChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	case s == SuiteRSAOAEP || s == SuiteRSAPKCS1:
		return "RSA"
	case s == SuiteMLKEM768GCM:
		return "MLKEM768"
	default:
		return ""
	}
}

// BlockSize returns the cipher block size in bytes, or 0 for non-block suites.
func (s Suite) BlockSize() int {
	switch {
	case s >= SuiteAESECB && s <= SuiteAESGCM:
		return aes.BlockSize
	case s >= SuiteDESedeECB && s <= SuiteDESedeCTR:
		return des.BlockSize
	default:
		return 0
	}
}

// IsAsymmetric reports whether s encrypts with a public key.
func (s Suite) IsAsymmetric() bool {
	return s == SuiteRSAOAEP || s == SuiteRSAPKCS1 || s == SuiteMLKEM768GCM
}

// IsAEAD reports whether s authenticates its payload.
func (s Suite) IsAEAD() bool {
	return s == SuiteAESGCM || s == SuiteChaCha20Poly1305 || s == SuiteMLKEM768GCM
}

// padded reports whether s applies PKCS#5/#7 padding.
func (s Suite) padded() bool {
	return s == SuiteAESECB || s == SuiteAESCBC || s == SuiteDESedeECB || s == SuiteDESedeCBC
}

// ResolveSuite maps a transformation to a Suite.
//
// ECB and CBC default to PKCS5Padding (PKCS7Padding is accepted as an alias);
// every other mode requires NoPadding or no padding segment. CFB and OFB only
// run with full-block feedback, so "CFB", "CFB128" (AES) and "CFB64"
// (DESede) are accepted and narrower segment sizes are rejected.
func ResolveSuite(t Transformation) (Suite, error) {
	unsupported := func() (Suite, error) {
		return SuiteUnknown, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported,
			fmt.Sprintf("unsupported transformation %q", t.String()))
	}

	switch {
	case isChaCha(t):
		if t.Padding() != "" && !t.IsPadding("NoPadding") {
			return unsupported()
		}
		return SuiteChaCha20Poly1305, nil

	case t.IsAlgorithm("AES") || t.IsAlgorithm("DESede") || t.IsAlgorithm("TripleDES"):
		aesFamily := t.IsAlgorithm("AES")
		blockBits := 64
		if aesFamily {
			blockBits = 128
		}
		if !t.HasMode() {
			return unsupported()
		}

		var suite Suite
		switch {
		case t.IsMode("ECB"):
			suite = pick(aesFamily, SuiteAESECB, SuiteDESedeECB)
		case t.IsMode("CBC"):
			suite = pick(aesFamily, SuiteAESCBC, SuiteDESedeCBC)
		case t.IsMode(`CFB\d*`) && fullFeedback(t.Mode(), "CFB", blockBits):
			suite = pick(aesFamily, SuiteAESCFB, SuiteDESedeCFB)
		case t.IsMode(`OFB\d*`) && fullFeedback(t.Mode(), "OFB", blockBits):
			suite = pick(aesFamily, SuiteAESOFB, SuiteDESedeOFB)
		case t.IsMode("CTR"):
			suite = pick(aesFamily, SuiteAESCTR, SuiteDESedeCTR)
		case t.IsMode("GCM") && aesFamily:
			suite = SuiteAESGCM
		default:
			return unsupported()
		}

		if suite.padded() {
			if t.Padding() != "" && !t.IsPadding("PKCS5Padding") && !t.IsPadding("PKCS7Padding") && !t.IsPadding("NoPadding") {
				return unsupported()
			}
		} else if t.Padding() != "" && !t.IsPadding("NoPadding") {
			return unsupported()
		}
		return suite, nil

	case t.IsAlgorithm("RSA"):
		if t.HasMode() && !t.IsMode("ECB", "None") {
			return unsupported()
		}
		switch {
		case t.Padding() == "" || t.IsPadding("OAEPWithSHA-256AndMGF1Padding") || t.IsPadding("OAEPPadding"):
			return SuiteRSAOAEP, nil
		case t.IsPadding("PKCS1Padding"):
			return SuiteRSAPKCS1, nil
		default:
			return unsupported()
		}

	case t.IsAlgorithm("MLKEM768") || t.IsAlgorithm("ML-KEM-768"):
		if !t.IsMode("GCM") || (t.Padding() != "" && !t.IsPadding("NoPadding")) {
			return unsupported()
		}
		return SuiteMLKEM768GCM, nil
	}
	return unsupported()
}

// unpadded reports whether t explicitly disables padding for a padded suite.
func unpadded(t Transformation) bool { return t.IsPadding("NoPadding") }

func pick(cond bool, a, b Suite) Suite {
	if cond {
		return a
	}
	return b
}

// fullFeedback accepts "CFB"/"OFB" with no suffix or a suffix equal to the block size in bits.
func fullFeedback(mode, family string, blockBits int) bool {
	suffix := strings.TrimPrefix(strings.ToUpper(mode), family)
	return suffix == "" || suffix == strconv.Itoa(blockBits)
}

// PrimitiveRequest carries one call to a CipherPrimitive.
type PrimitiveRequest struct {
	Suite Suite
	// NoPadding disables PKCS#5 padding on ECB/CBC suites.
	NoPadding bool
	// Key is the raw symmetric key. It is only valid during the call.
	Key []byte
	// PublicKey and PrivateKey are used by asymmetric suites.
	PublicKey  any
	PrivateKey any
	IV         []byte
	AAD        []byte
	Data       []byte
	// Random supplies entropy for probabilistic asymmetric schemes.
	Random io.Reader
}

// CipherPrimitive performs the raw cipher transform for a resolved suite.
//
// Implementations must not retain Key, must not include key bytes in errors,
// and must return an error wrapping ErrAuthenticationFailed when an AEAD tag
// does not verify. The envelope treats ciphertext+tag as one opaque payload.
type CipherPrimitive interface {
	Encrypt(req PrimitiveRequest) ([]byte, error)
	Decrypt(req PrimitiveRequest) ([]byte, error)
}

// StdPrimitive is the default backend built on crypto/aes, crypto/des,
// crypto/cipher, crypto/rsa, x/crypto/chacha20poly1305 and circl ML-KEM.
type StdPrimitive struct{}

// DefaultPrimitive is the backend used when a builder is not given one.
var DefaultPrimitive CipherPrimitive = StdPrimitive{}

// Encrypt implements CipherPrimitive.
func (StdPrimitive) Encrypt(req PrimitiveRequest) ([]byte, error) {
	if req.Suite.IsAsymmetric() {
		return asymmetricEncrypt(req)
	}
	if aead, err := newAEAD(req.Suite, req.Key); err != nil {
		return nil, err
	} else if aead != nil {
		if len(req.IV) != aead.NonceSize() {
			return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "nonce has wrong size")
		}
		return aead.Seal(nil, req.IV, req.Data, req.AAD), nil // #nosec G407 -- nonce comes from the envelope random source
	}

	block, err := newBlock(req.Suite, req.Key)
	if err != nil {
		return nil, err
	}
	data := req.Data
	if req.Suite.padded() {
		if req.NoPadding {
			if len(data)%block.BlockSize() != 0 {
				return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "input is not a multiple of the block size")
			}
		} else {
			data = pkcs7Pad(data, block.BlockSize())
		}
	}

	out := make([]byte, len(data))
	switch req.Suite {
	case SuiteAESECB, SuiteDESedeECB:
		ecbCrypt(block, out, data, true)
	case SuiteAESCBC, SuiteDESedeCBC:
		cipher.NewCBCEncrypter(block, req.IV).CryptBlocks(out, data)
	case SuiteAESCFB, SuiteDESedeCFB:
		cipher.NewCFBEncrypter(block, req.IV).XORKeyStream(out, data) //nolint:staticcheck // full-block CFB kept for interoperability
	case SuiteAESOFB, SuiteDESedeOFB:
		cipher.NewOFB(block, req.IV).XORKeyStream(out, data) //nolint:staticcheck // OFB kept for interoperability
	case SuiteAESCTR, SuiteDESedeCTR:
		cipher.NewCTR(block, req.IV).XORKeyStream(out, data)
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "suite has no symmetric implementation")
	}
	if len(data) != len(req.Data) {
		Zeroize(data)
	}
	return out, nil
}

// Decrypt implements CipherPrimitive.
func (StdPrimitive) Decrypt(req PrimitiveRequest) ([]byte, error) {
	if req.Suite.IsAsymmetric() {
		return asymmetricDecrypt(req)
	}
	if aead, err := newAEAD(req.Suite, req.Key); err != nil {
		return nil, err
	} else if aead != nil {
		if len(req.IV) != aead.NonceSize() {
			return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "nonce has wrong size")
		}
		if len(req.Data) < aead.Overhead() {
			return nil, newError(ErrInvalidCiphertext, ErrCodeCipherShort, "payload shorter than authentication tag")
		}
		plain, err := aead.Open(nil, req.IV, req.Data, req.AAD)
		if err != nil {
			return nil, newError(ErrAuthenticationFailed, ErrCodeAuthentication, "message authentication failed")
		}
		return plain, nil
	}

	block, err := newBlock(req.Suite, req.Key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(req.Data))
	switch req.Suite {
	case SuiteAESECB, SuiteDESedeECB, SuiteAESCBC, SuiteDESedeCBC:
		if len(req.Data) == 0 || len(req.Data)%block.BlockSize() != 0 {
			if len(req.Data) == 0 && req.NoPadding {
				return out, nil
			}
			return nil, newError(ErrInvalidCiphertext, ErrCodeCipherShort, "payload is not a whole number of blocks")
		}
		if req.Suite == SuiteAESECB || req.Suite == SuiteDESedeECB {
			ecbCrypt(block, out, req.Data, false)
		} else {
			cipher.NewCBCDecrypter(block, req.IV).CryptBlocks(out, req.Data)
		}
		if req.NoPadding {
			return out, nil
		}
		n, ok := pkcs7Unpad(out, block.BlockSize())
		if !ok {
			Zeroize(out)
			return nil, newError(ErrPrimitiveFailure, ErrCodePrimitive, "decryption failed")
		}
		plain := make([]byte, n)
		copy(plain, out[:n])
		Zeroize(out)
		return plain, nil
	case SuiteAESCFB, SuiteDESedeCFB:
		cipher.NewCFBDecrypter(block, req.IV).XORKeyStream(out, req.Data) //nolint:staticcheck // full-block CFB kept for interoperability
	case SuiteAESOFB, SuiteDESedeOFB:
		cipher.NewOFB(block, req.IV).XORKeyStream(out, req.Data) //nolint:staticcheck // OFB kept for interoperability
	case SuiteAESCTR, SuiteDESedeCTR:
		cipher.NewCTR(block, req.IV).XORKeyStream(out, req.Data)
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "suite has no symmetric implementation")
	}
	return out, nil
}

// newAEAD returns an AEAD for AEAD suites and nil for the rest.
func newAEAD(s Suite, key []byte) (cipher.AEAD, error) {
	switch s {
	case SuiteAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeInvalidKey, "failed to create AES cipher")
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, wrapError(ErrPrimitiveFailure, err, ErrCodePrimitive, "failed to create GCM mode")
		}
		return gcm, nil
	case SuiteChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, wrapError(ErrInvalidKeySize, err, ErrCodeInvalidKey, "failed to create ChaCha20-Poly1305")
		}
		return aead, nil
	default:
		return nil, nil
	}
}

// newBlock creates the block cipher for a non-AEAD symmetric suite.
func newBlock(s Suite, key []byte) (cipher.Block, error) {
	var (
		block cipher.Block
		err   error
	)
	switch s.KeyAlgorithm() {
	case "AES":
		block, err = aes.NewCipher(key)
	case "DESede":
		block, err = des.NewTripleDESCipher(key) // #nosec G401 -- legacy suite
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported, "suite is not a block cipher")
	}
	if err != nil {
		return nil, wrapError(ErrInvalidKeySize, err, ErrCodeInvalidKey, "failed to create block cipher")
	}
	return block, nil
}

// ecbCrypt runs the block cipher over each block independently.
func ecbCrypt(b cipher.Block, dst, src []byte, encrypt bool) {
	bs := b.BlockSize()
	for i := 0; i < len(src); i += bs {
		if encrypt {
			b.Encrypt(dst[i:i+bs], src[i:i+bs])
		} else {
			b.Decrypt(dst[i:i+bs], src[i:i+bs])
		}
	}
}

// pkcs7Pad returns a new slice with PKCS#7 padding appended.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// pkcs7Unpad validates padding without branching on its content and returns
// the unpadded length.
func pkcs7Unpad(data []byte, blockSize int) (int, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return 0, false
	}
	padLen := int(data[len(data)-1])
	good := subtle.ConstantTimeLessOrEq(1, padLen) & subtle.ConstantTimeLessOrEq(padLen, blockSize)

	// Examine the whole last block so timing does not depend on padLen.
	for i := 1; i <= blockSize; i++ {
		b := int(data[len(data)-i])
		inPad := subtle.ConstantTimeLessOrEq(i, padLen)
		good &= subtle.ConstantTimeSelect(inPad, subtle.ConstantTimeByteEq(byte(b), byte(padLen)), 1)
	}
	if good != 1 {
		return 0, false
	}
	return len(data) - padLen, true
}

// PayloadLen returns the payload length produced for n plaintext bytes.
// For asymmetric suites modulusLen is the RSA modulus size in bytes.
func (s Suite) PayloadLen(n int, noPadding bool, modulusLen int) int {
	switch {
	case s.padded() && !noPadding:
		bs := s.BlockSize()
		return (n/bs + 1) * bs
	case s == SuiteAESGCM || s == SuiteChaCha20Poly1305:
		return n + AEADTagSize
	case s == SuiteMLKEM768GCM:
		return mlkemCiphertextSize + n + AEADTagSize
	case s == SuiteRSAOAEP || s == SuiteRSAPKCS1:
		return modulusLen
	default:
		return n
	}
}
