// codec.go: Text adaptation of byte envelopes (Base64/Hex, charsets).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// TextEncoding selects how envelope bytes are printed.
type TextEncoding int

const (
	// Base64 is standard padded base64 (RFC 4648 section 4).
	Base64 TextEncoding = iota
	// Base64URL is padded URL-safe base64 (RFC 4648 section 5).
	Base64URL
	// Hex is lowercase hexadecimal.
	Hex
)

// String returns the encoding name.
func (t TextEncoding) String() string {
	switch t {
	case Base64:
		return "base64"
	case Base64URL:
		return "base64url"
	case Hex:
		return "hex"
	default:
		return fmt.Sprintf("TextEncoding(%d)", int(t))
	}
}

// ParseTextEncoding parses "base64", "base64url" or "hex" (case-insensitive).
func ParseTextEncoding(name string) (TextEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "base64":
		return Base64, nil
	case "base64url":
		return Base64URL, nil
	case "hex":
		return Hex, nil
	}
	return 0, newError(ErrUnsupportedAlgorithm, ErrCodeCodec, fmt.Sprintf("unknown text encoding %q", name))
}

// MarshalText implements encoding.TextMarshaler.
func (t TextEncoding) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TextEncoding) UnmarshalText(b []byte) error {
	v, err := ParseTextEncoding(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DefaultCharset is the charset used when TextCodec.Charset is empty.
const DefaultCharset = "UTF-8"

// TextCodec converts strings to bytes in a charset and envelopes to printable text.
type TextCodec struct {
	Encoding TextEncoding `json:"encoding" yaml:"encoding"`
	Charset  string       `json:"charset" yaml:"charset"`
}

// DefaultTextCodec returns Base64 with UTF-8.
func DefaultTextCodec() TextCodec {
	return TextCodec{Encoding: Base64, Charset: DefaultCharset}
}

// Validate reports an unknown encoding or charset as a configuration error.
func (c TextCodec) Validate() error {
	switch c.Encoding {
	case Base64, Base64URL, Hex:
	default:
		return newError(ErrUnsupportedAlgorithm, ErrCodeCodec, fmt.Sprintf("unknown text encoding %d", int(c.Encoding)))
	}
	_, err := c.charset()
	return err
}

// charset returns nil for UTF-8, which needs no transcoding.
func (c TextCodec) charset() (encoding.Encoding, error) {
	name := strings.TrimSpace(c.Charset)
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8") {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeCodec, fmt.Sprintf("unsupported charset %q", name))
	}
	return enc, nil
}

// EncodeString converts s to bytes in the configured charset.
func (c TextCodec) EncodeString(s string) ([]byte, error) {
	enc, err := c.charset()
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(s), nil
	}
	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, wrapError(ErrPrimitiveFailure, err, ErrCodeCodec, fmt.Sprintf("text is not representable in %s", c.Charset))
	}
	return b, nil
}

// DecodeString converts bytes in the configured charset back to a string.
func (c TextCodec) DecodeString(b []byte) (string, error) {
	enc, err := c.charset()
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", wrapError(ErrPrimitiveFailure, err, ErrCodeCodec, fmt.Sprintf("invalid %s text", c.Charset))
	}
	return string(out), nil
}

// Wrap renders envelope bytes as text.
func (c TextCodec) Wrap(b []byte) string {
	switch c.Encoding {
	case Base64URL:
		return base64.URLEncoding.EncodeToString(b)
	case Hex:
		return hex.EncodeToString(b)
	default:
		return base64.StdEncoding.EncodeToString(b)
	}
}

// Unwrap parses text produced by Wrap. Malformed text is reported as
// ErrInvalidCiphertext.
func (c TextCodec) Unwrap(s string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch c.Encoding {
	case Base64URL:
		b, err = base64.URLEncoding.DecodeString(s)
	case Hex:
		b, err = hex.DecodeString(s)
	default:
		b, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, wrapError(ErrInvalidCiphertext, err, ErrCodeCodec, fmt.Sprintf("malformed %s text", c.Encoding))
	}
	return b, nil
}

// StringEncryptor is the text interface consumed by configuration stores
// and other callers that only handle strings.
type StringEncryptor interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// TextEnvelope adapts a CipherEnvelope to StringEncryptor.
type TextEnvelope struct {
	envelope *CipherEnvelope
	codec    TextCodec
}

var _ StringEncryptor = (*TextEnvelope)(nil)

// WithCodec returns a text adapter of e using codec.
func (e *CipherEnvelope) WithCodec(codec TextCodec) (*TextEnvelope, error) {
	if err := codec.Validate(); err != nil {
		return nil, err
	}
	return &TextEnvelope{envelope: e, codec: codec}, nil
}

// Envelope returns the underlying CipherEnvelope.
func (t *TextEnvelope) Envelope() *CipherEnvelope { return t.envelope }

// EncryptString encodes plaintext in the codec charset, encrypts it and wraps the envelope.
func (t *TextEnvelope) EncryptString(plaintext string) (string, error) {
	b, err := t.codec.EncodeString(plaintext)
	if err != nil {
		return "", err
	}
	defer Zeroize(b)
	env, err := t.envelope.Encrypt(b)
	if err != nil {
		return "", err
	}
	return t.codec.Wrap(env), nil
}

// DecryptString reverses EncryptString.
func (t *TextEnvelope) DecryptString(ciphertext string) (string, error) {
	env, err := t.codec.Unwrap(ciphertext)
	if err != nil {
		return "", err
	}
	plain, err := t.envelope.Decrypt(env)
	if err != nil {
		return "", err
	}
	defer Zeroize(plain)
	return t.codec.DecodeString(plain)
}

// TextDigester adapts an IntegrityEnvelope to strings.
type TextDigester struct {
	envelope *IntegrityEnvelope
	codec    TextCodec
}

// WithCodec returns a text adapter of e using codec.
func (e *IntegrityEnvelope) WithCodec(codec TextCodec) (*TextDigester, error) {
	if err := codec.Validate(); err != nil {
		return nil, err
	}
	return &TextDigester{envelope: e, codec: codec}, nil
}

// DigestString signs message and returns the wrapped envelope.
func (t *TextDigester) DigestString(message string) (string, error) {
	b, err := t.codec.EncodeString(message)
	if err != nil {
		return "", err
	}
	env, err := t.envelope.Sign(b)
	if err != nil {
		return "", err
	}
	return t.codec.Wrap(env), nil
}

// Matches reports whether digest was produced for message.
func (t *TextDigester) Matches(message, digest string) (bool, error) {
	b, err := t.codec.EncodeString(message)
	if err != nil {
		return false, err
	}
	env, err := t.codec.Unwrap(digest)
	if err != nil {
		return false, err
	}
	return t.envelope.Verify(b, env)
}
