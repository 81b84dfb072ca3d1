// streaming.go: Chunked AEAD streams for data too large to hold in memory.
//
// A stream follows the same prefix discipline as a CipherEnvelope:
//
//	[nonce (12)] [salt (password keys only)] [header] [frame]...
//
// header is "CXS1" followed by the chunk size (uint32, little endian). Each
// frame is a uint32 little-endian word holding the sealed length, with the
// top bit set on the final frame, followed by the sealed chunk. Chunk i is
// sealed under nonce XOR i with header ‖ final-flag as associated data, so
// frames cannot be reordered, truncated or extended.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the plaintext size of every non-final chunk (64KB).
const DefaultChunkSize = 64 * 1024

// MaxChunkSize bounds the chunk size accepted from a stream header.
const MaxChunkSize = 10 * 1024 * 1024

const (
	streamMagic      = "CXS1"
	streamHeaderSize = 4 + 4
	frameFinalBit    = uint32(1) << 31
	maxStreamChunks  = uint64(1) << 32
)

// StreamingEncryptor encrypts everything written to it.
// Close must be called: it writes the final frame.
type StreamingEncryptor interface {
	Write(data []byte) (int, error)
	Close() error
}

// StreamingDecryptor decrypts a stream produced by a StreamingEncryptor.
// Read returns io.EOF only after the authenticated final frame.
type StreamingDecryptor interface {
	Read(data []byte) (int, error)
	Close() error
}

// streamState is the per-stream key and nonce schedule shared by both directions.
type streamState struct {
	env     *CipherEnvelope
	key     *SecretMaterial
	ownsKey bool
	nonce   []byte
	header  []byte
	counter uint64
}

func checkStreamEnvelope(env *CipherEnvelope) error {
	if env == nil {
		return newError(ErrMissingConfiguration, ErrCodeMissingConfig, "stream needs a cipher envelope")
	}
	if !env.suite.IsAEAD() || env.suite.IsAsymmetric() {
		return newError(ErrUnsupportedAlgorithm, ErrCodeUnsupported,
			fmt.Sprintf("streams need a symmetric AEAD suite, got %s", env.suite))
	}
	return nil
}

// streamKey returns the key for a whole stream. A password-derived key is
// owned by the stream and destroyed by Close.
func (e *CipherEnvelope) streamKey(salt []byte) (*SecretMaterial, bool, error) {
	if e.source.kind == keyPassword {
		derived, err := deriveFromSecretPassword(e.source.password, salt, e.source.params, e.suite.KeyAlgorithm())
		return derived, true, err
	}
	return e.source.secret, false, nil
}

func streamHeader(chunkSize int) []byte {
	h := make([]byte, streamHeaderSize)
	copy(h, streamMagic)
	binary.LittleEndian.PutUint32(h[4:], uint32(chunkSize)) // #nosec G115 -- bounded by MaxChunkSize
	return h
}

// chunkNonce returns base XOR counter (big endian, right aligned).
func chunkNonce(base []byte, counter uint64) []byte {
	n := make([]byte, len(base))
	copy(n, base)
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], counter)
	for i := range c {
		n[len(n)-8+i] ^= c[i]
	}
	return n
}

func (s *streamState) aad(final bool) []byte {
	a := make([]byte, len(s.header)+1)
	copy(a, s.header)
	if final {
		a[len(s.header)] = 1
	}
	return a
}

func (s *streamState) next() ([]byte, error) {
	if s.counter >= maxStreamChunks {
		return nil, newError(ErrInvalidCiphertext, ErrCodeStream, "stream chunk counter exhausted")
	}
	n := chunkNonce(s.nonce, s.counter)
	s.counter++
	return n, nil
}

func (s *streamState) seal(plain []byte, final bool) ([]byte, error) {
	nonce, err := s.next()
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.key.use(func(k []byte) error {
		var perr error
		out, perr = s.env.primitive.Encrypt(PrimitiveRequest{Suite: s.env.suite, Key: k, IV: nonce, AAD: s.aad(final), Data: plain})
		return perr
	})
	return out, err
}

func (s *streamState) open(sealed []byte, final bool) ([]byte, error) {
	nonce, err := s.next()
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.key.use(func(k []byte) error {
		var perr error
		out, perr = s.env.primitive.Decrypt(PrimitiveRequest{Suite: s.env.suite, Key: k, IV: nonce, AAD: s.aad(final), Data: sealed})
		return perr
	})
	return out, err
}

func (s *streamState) release() {
	if s.ownsKey {
		s.key.Destroy()
	}
}

type streamingEncryptor struct {
	streamState
	writer    io.Writer
	buf       *[]byte
	n         int
	chunkSize int
	closed    bool
	failed    error
}

// NewStreamingEncryptor starts a stream with DefaultChunkSize chunks.
//
// Example:
//
//	env, _ := crypto.NewCipherEnvelopeBuilder().
//		Transformation("AES/GCM/NoPadding").
//		KeySource(crypto.DirectKey(secret)).
//		Build()
//	enc, err := crypto.NewStreamingEncryptor(file, env)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := io.Copy(enc, input); err != nil {
//		log.Fatal(err)
//	}
//	if err := enc.Close(); err != nil {
//		log.Fatal(err)
//	}
func NewStreamingEncryptor(w io.Writer, env *CipherEnvelope) (StreamingEncryptor, error) {
	return NewStreamingEncryptorWithChunkSize(w, env, DefaultChunkSize)
}

// NewStreamingEncryptorWithChunkSize starts a stream with chunkSize-byte chunks.
// The prefix is written immediately.
func NewStreamingEncryptorWithChunkSize(w io.Writer, env *CipherEnvelope, chunkSize int) (StreamingEncryptor, error) {
	if err := checkStreamEnvelope(env); err != nil {
		return nil, err
	}
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, newError(ErrMissingConfiguration, ErrCodeStream, "chunk size must be between 1 and 10MB")
	}

	nonce, err := readRandom(env.random, GCMNonceSize)
	if err != nil {
		return nil, err
	}
	var salt []byte
	if env.source.kind == keyPassword {
		if salt, err = env.source.params.NewSalt(env.random); err != nil {
			return nil, err
		}
	}
	key, owns, err := env.streamKey(salt)
	if err != nil {
		return nil, err
	}

	enc := &streamingEncryptor{
		streamState: streamState{env: env, key: key, ownsKey: owns, nonce: nonce, header: streamHeader(chunkSize)},
		writer:      w,
		buf:         getBuffer(chunkSize),
		chunkSize:   chunkSize,
	}
	if _, err := w.Write(frame(nonce, salt, enc.header)); err != nil {
		enc.release()
		putBuffer(enc.buf)
		return nil, wrapError(ErrStreamIO, err, ErrCodeStream, "failed to write stream prefix")
	}
	return enc, nil
}

// Write buffers data and emits every full chunk that is known not to be the last.
func (e *streamingEncryptor) Write(data []byte) (int, error) {
	if e.closed {
		return 0, newError(ErrClosed, ErrCodeClosed, "cannot write to closed encryptor")
	}
	if e.failed != nil {
		return 0, e.failed
	}

	written := 0
	for len(data) > 0 {
		if e.n == e.chunkSize {
			if err := e.flush(false); err != nil {
				e.failed = err
				return written, err
			}
		}
		c := copy((*e.buf)[e.n:], data)
		e.n += c
		data = data[c:]
		written += c
	}
	return written, nil
}

// Close writes the final frame and releases the key and buffer.
func (e *streamingEncryptor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer func() {
		putBuffer(e.buf)
		e.buf = nil
		e.release()
	}()
	if e.failed != nil {
		return e.failed
	}
	return e.flush(true)
}

func (e *streamingEncryptor) flush(final bool) error {
	sealed, err := e.seal((*e.buf)[:e.n], final)
	if err != nil {
		return err
	}
	word := uint32(len(sealed)) // #nosec G115 -- at most MaxChunkSize+tag
	if final {
		word |= frameFinalBit
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], word)
	if _, err := e.writer.Write(lenBuf[:]); err != nil {
		return wrapError(ErrStreamIO, err, ErrCodeStream, "failed to write frame header")
	}
	if _, err := e.writer.Write(sealed); err != nil {
		return wrapError(ErrStreamIO, err, ErrCodeStream, "failed to write frame")
	}
	Zeroize((*e.buf)[:e.n])
	e.n = 0
	return nil
}

type streamingDecryptor struct {
	streamState
	reader     io.Reader
	chunkSize  int
	headerRead bool
	done       bool
	closed     bool
	failed     error
	remaining  []byte
	plain      []byte
}

// NewStreamingDecryptor reads a stream produced with the same envelope
// configuration. The prefix is read on the first Read.
func NewStreamingDecryptor(r io.Reader, env *CipherEnvelope) (StreamingDecryptor, error) {
	if err := checkStreamEnvelope(env); err != nil {
		return nil, err
	}
	return &streamingDecryptor{streamState: streamState{env: env}, reader: r}, nil
}

func (d *streamingDecryptor) readHeader() error {
	prefix := make([]byte, GCMNonceSize+d.env.SaltSize()+streamHeaderSize)
	if _, err := io.ReadFull(d.reader, prefix); err != nil {
		return wrapError(ErrInvalidCiphertext, err, ErrCodeCipherShort, "stream prefix is truncated")
	}
	layout, err := LayoutFor(GCMNonceSize, d.env.SaltSize(), len(prefix))
	if err != nil {
		return err
	}
	nonce, salt, header := layout.Split(prefix)
	if string(header[:4]) != streamMagic {
		return newError(ErrInvalidCiphertext, ErrCodeStream, "invalid stream magic")
	}
	chunkSize := int(binary.LittleEndian.Uint32(header[4:]))
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return newError(ErrInvalidCiphertext, ErrCodeStream, "invalid chunk size in header")
	}

	key, owns, err := d.env.streamKey(salt)
	if err != nil {
		return err
	}
	d.key, d.ownsKey = key, owns
	d.nonce = nonce
	d.header = header
	d.chunkSize = chunkSize
	d.headerRead = true
	return nil
}

// Read implements io.Reader.
func (d *streamingDecryptor) Read(p []byte) (int, error) {
	if d.closed {
		return 0, newError(ErrClosed, ErrCodeClosed, "cannot read from closed decryptor")
	}
	if d.failed != nil {
		return 0, d.failed
	}
	if !d.headerRead {
		if err := d.readHeader(); err != nil {
			d.failed = err
			return 0, err
		}
	}
	for len(d.remaining) == 0 {
		if d.done {
			return 0, io.EOF
		}
		if err := d.readNextChunk(); err != nil {
			d.failed = err
			return 0, err
		}
	}
	n := copy(p, d.remaining)
	d.remaining = d.remaining[n:]
	return n, nil
}

// Close wipes buffered plaintext and releases the key.
func (d *streamingDecryptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	Zeroize(d.plain)
	d.plain, d.remaining = nil, nil
	if d.headerRead {
		d.release()
	}
	return nil
}

func (d *streamingDecryptor) readNextChunk() error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.reader, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return newError(ErrInvalidCiphertext, ErrCodeCipherShort, "stream truncated before final frame")
		}
		return wrapError(ErrStreamIO, err, ErrCodeStream, "failed to read frame header")
	}
	word := binary.LittleEndian.Uint32(lenBuf[:])
	final := word&frameFinalBit != 0
	size := int(word &^ frameFinalBit)
	if size < AEADTagSize || size > d.chunkSize+AEADTagSize {
		return newError(ErrInvalidCiphertext, ErrCodeStream, "invalid frame size")
	}

	sealed := make([]byte, size)
	if _, err := io.ReadFull(d.reader, sealed); err != nil {
		return newError(ErrInvalidCiphertext, ErrCodeCipherShort, "stream truncated inside a frame")
	}
	plain, err := d.open(sealed, final)
	if err != nil {
		return err
	}
	if !final && len(plain) != d.chunkSize {
		Zeroize(plain)
		return newError(ErrInvalidCiphertext, ErrCodeStream, "short non-final frame")
	}

	if final {
		var extra [1]byte
		if _, err := io.ReadFull(d.reader, extra[:]); !errors.Is(err, io.EOF) {
			Zeroize(plain)
			if err != nil {
				return wrapError(ErrStreamIO, err, ErrCodeStream, "failed to read past final frame")
			}
			return newError(ErrInvalidCiphertext, ErrCodeStream, "data after final frame")
		}
		d.done = true
	}
	Zeroize(d.plain)
	d.plain = plain
	d.remaining = plain
	return nil
}
