// streaming_test.go: Test cases for chunked AEAD streams.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/cryptex"
)

const (
	streamPrefix   = crypto.GCMNonceSize + 8
	frameOverhead  = 4 + crypto.AEADTagSize
	smallChunkSize = 64
)

func encryptStream(t *testing.T, env *crypto.CipherEnvelope, chunkSize int, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := crypto.NewStreamingEncryptorWithChunkSize(&buf, env, chunkSize)
	require.NoError(t, err)

	// Uneven writes exercise chunk boundaries that do not line up with calls.
	for rest := data; len(rest) > 0; {
		n := 7
		if n > len(rest) {
			n = len(rest)
		}
		w, err := enc.Write(rest[:n])
		require.NoError(t, err)
		require.Equal(t, n, w)
		rest = rest[n:]
	}
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func decryptStream(env *crypto.CipherEnvelope, stream []byte) ([]byte, error) {
	dec, err := crypto.NewStreamingDecryptor(bytes.NewReader(stream), env)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestStreamingRoundTripBoundaries(t *testing.T) {
	for _, spec := range []string{"AES/GCM/NoPadding", "ChaCha20-Poly1305"} {
		env := directEnvelope(t, spec, newSecretFor(t, spec))
		for _, size := range []int{0, 1, smallChunkSize - 1, smallChunkSize, smallChunkSize + 1, 3 * smallChunkSize, 10*smallChunkSize + 5} {
			data := randomBytes(t, size)
			stream := encryptStream(t, env, smallChunkSize, data)

			// A full last chunk is held back and sealed as the final frame on Close.
			frames := size / smallChunkSize
			if size%smallChunkSize != 0 || size == 0 {
				frames++
			}
			assert.Equal(t, streamPrefix+size+frames*frameOverhead, len(stream), "%s size %d", spec, size)

			got, err := decryptStream(env, stream)
			require.NoError(t, err, "%s size %d", spec, size)
			assert.True(t, bytes.Equal(data, got), "%s size %d", spec, size)
		}
	}
}

func TestStreamingDefaultChunkSize(t *testing.T) {
	env := directEnvelope(t, "AES/GCM/NoPadding", newSecretFor(t, "AES/GCM/NoPadding"))
	data := randomBytes(t, crypto.DefaultChunkSize*2+100)

	var buf bytes.Buffer
	enc, err := crypto.NewStreamingEncryptor(&buf, env)
	require.NoError(t, err)
	n, err := io.Copy(enc, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	require.NoError(t, enc.Close())
	assert.Equal(t, streamPrefix+len(data)+3*frameOverhead, buf.Len())

	got, err := decryptStream(env, buf.Bytes())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestStreamingPasswordKey(t *testing.T) {
	env := passwordEnvelope(t, "AES/GCM/NoPadding", "stream-password", fastParams())
	data := randomBytes(t, 500)
	stream := encryptStream(t, env, smallChunkSize, data)
	assert.Equal(t, streamPrefix+16+500+8*frameOverhead, len(stream), "salt follows the nonce")

	got, err := decryptStream(env, stream)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	other := passwordEnvelope(t, "AES/GCM/NoPadding", "wrong-password", fastParams())
	_, err = decryptStream(other, stream)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestStreamingDetectsTampering(t *testing.T) {
	env := directEnvelope(t, "AES/GCM/NoPadding", newSecretFor(t, "AES/GCM/NoPadding"))
	data := randomBytes(t, 3*smallChunkSize+10)
	stream := encryptStream(t, env, smallChunkSize, data)
	frameLen := 4 + smallChunkSize + crypto.AEADTagSize
	first := streamPrefix
	second := first + frameLen

	t.Run("bit flip in payload", func(t *testing.T) {
		_, err := decryptStream(env, flipBit(stream, (second+10)*8))
		assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	})

	t.Run("bit flip in header", func(t *testing.T) {
		_, err := decryptStream(env, flipBit(stream, crypto.GCMNonceSize*8))
		assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext, "magic is checked first")
	})

	t.Run("final flag set on a middle frame", func(t *testing.T) {
		_, err := decryptStream(env, flipBit(stream, (second+3)*8+7))
		assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	})

	t.Run("reordered frames", func(t *testing.T) {
		swapped := append([]byte{}, stream[:first]...)
		swapped = append(swapped, stream[second:second+frameLen]...)
		swapped = append(swapped, stream[first:second]...)
		swapped = append(swapped, stream[second+frameLen:]...)
		require.Len(t, swapped, len(stream))
		_, err := decryptStream(env, swapped)
		assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	})

	t.Run("dropped final frame", func(t *testing.T) {
		cut := first + 3*frameLen
		_, err := decryptStream(env, stream[:cut])
		assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	})

	t.Run("truncated inside a frame", func(t *testing.T) {
		_, err := decryptStream(env, stream[:len(stream)-3])
		assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	})

	t.Run("truncated prefix", func(t *testing.T) {
		_, err := decryptStream(env, stream[:5])
		assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := decryptStream(env, append(append([]byte{}, stream...), 0x00))
		assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	})

	t.Run("frame spliced from another stream", func(t *testing.T) {
		otherStream := encryptStream(t, env, smallChunkSize, data)
		spliced := append([]byte{}, stream[:second]...)
		spliced = append(spliced, otherStream[second:]...)
		_, err := decryptStream(env, spliced)
		assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	})
}

func TestStreamingDecryptErrorIsSticky(t *testing.T) {
	env := directEnvelope(t, "AES/GCM/NoPadding", newSecretFor(t, "AES/GCM/NoPadding"))
	stream := encryptStream(t, env, smallChunkSize, randomBytes(t, 3*smallChunkSize))

	dec, err := crypto.NewStreamingDecryptor(bytes.NewReader(flipBit(stream, (streamPrefix+4)*8)), env)
	require.NoError(t, err)
	defer dec.Close()

	buf := make([]byte, smallChunkSize)
	n, err := dec.Read(buf)
	assert.Zero(t, n)
	require.ErrorIs(t, err, crypto.ErrAuthenticationFailed)

	// The rejected chunk must not be skipped over on retry.
	for i := 0; i < 3; i++ {
		n, err = dec.Read(buf)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	}

	bad, err := crypto.NewStreamingDecryptor(bytes.NewReader(stream[:5]), env)
	require.NoError(t, err)
	defer bad.Close()
	_, err = bad.Read(buf)
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	_, err = bad.Read(buf)
	assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

// stutterReader returns (0, nil) before every real read.
type stutterReader struct {
	r     io.Reader
	stall bool
}

func (s *stutterReader) Read(p []byte) (int, error) {
	s.stall = !s.stall
	if s.stall {
		return 0, nil
	}
	return s.r.Read(p)
}

func TestStreamingTrailingDataWithStallingReader(t *testing.T) {
	env := directEnvelope(t, "ChaCha20-Poly1305", newSecretFor(t, "ChaCha20-Poly1305"))
	data := randomBytes(t, 2*smallChunkSize+3)
	stream := encryptStream(t, env, smallChunkSize, data)

	dec, err := crypto.NewStreamingDecryptor(&stutterReader{r: bytes.NewReader(stream)}, env)
	require.NoError(t, err)
	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, dec.Close())

	trailing := append(append([]byte{}, stream...), 0x01)
	dec, err = crypto.NewStreamingDecryptor(&stutterReader{r: bytes.NewReader(trailing)}, env)
	require.NoError(t, err)
	defer dec.Close()
	_, err = io.ReadAll(dec)
	assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestStreamingRejectsNonAEAD(t *testing.T) {
	cbc := directEnvelope(t, "AES/CBC/PKCS5Padding", newSecretFor(t, "AES/CBC/PKCS5Padding"))
	_, err := crypto.NewStreamingEncryptor(io.Discard, cbc)
	assert.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)
	_, err = crypto.NewStreamingDecryptor(bytes.NewReader(nil), cbc)
	assert.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)

	kemPub, _ := testKEMKeys(t)
	kem, err := crypto.NewCipherEnvelopeBuilder().
		Transformation("MLKEM768/GCM/NoPadding").
		KeySource(crypto.AsymmetricKey(kemPub, nil)).
		Build()
	require.NoError(t, err)
	_, err = crypto.NewStreamingEncryptor(io.Discard, kem)
	assert.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)

	_, err = crypto.NewStreamingEncryptor(io.Discard, nil)
	assert.ErrorIs(t, err, crypto.ErrMissingConfiguration)
}

func TestStreamingChunkSizeLimits(t *testing.T) {
	env := directEnvelope(t, "AES/GCM/NoPadding", newSecretFor(t, "AES/GCM/NoPadding"))
	for _, size := range []int{0, -1, crypto.MaxChunkSize + 1} {
		_, err := crypto.NewStreamingEncryptorWithChunkSize(io.Discard, env, size)
		assert.Error(t, err, "chunk size %d", size)
	}
}

func TestStreamingWriteAfterClose(t *testing.T) {
	env := directEnvelope(t, "AES/GCM/NoPadding", newSecretFor(t, "AES/GCM/NoPadding"))
	enc, err := crypto.NewStreamingEncryptor(io.Discard, env)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close(), "Close is idempotent")

	_, err = enc.Write([]byte("late"))
	assert.ErrorIs(t, err, crypto.ErrClosed)

	dec, err := crypto.NewStreamingDecryptor(bytes.NewReader(nil), env)
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	_, err = dec.Read(make([]byte, 1))
	assert.ErrorIs(t, err, crypto.ErrClosed)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestStreamingWriterFailure(t *testing.T) {
	env := directEnvelope(t, "AES/GCM/NoPadding", newSecretFor(t, "AES/GCM/NoPadding"))

	_, err := crypto.NewStreamingEncryptor(&failingWriter{}, env)
	assert.ErrorIs(t, err, crypto.ErrStreamIO)

	enc, err := crypto.NewStreamingEncryptorWithChunkSize(&failingWriter{after: 1}, env, 4)
	require.NoError(t, err)
	_, err = enc.Write([]byte("0123456789"))
	require.ErrorIs(t, err, crypto.ErrStreamIO)
	_, err = enc.Write([]byte("x"))
	assert.ErrorIs(t, err, crypto.ErrStreamIO, "the first failure sticks")
	assert.ErrorIs(t, enc.Close(), crypto.ErrStreamIO)
}

func TestStreamingDirectKeyDestroyed(t *testing.T) {
	secret, err := crypto.GenerateSecret("AES", 256)
	require.NoError(t, err)
	env := directEnvelope(t, "AES/GCM/NoPadding", secret)

	enc, err := crypto.NewStreamingEncryptorWithChunkSize(io.Discard, env, 4)
	require.NoError(t, err)
	secret.Destroy()
	_, err = enc.Write([]byte("0123456789"))
	assert.ErrorIs(t, err, crypto.ErrSecretDestroyed)
}
