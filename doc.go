// Package crypto provides self-describing encryption and integrity envelopes for Go applications.
//
// An envelope is the byte sequence produced by an encrypt or sign operation.
// It carries everything needed to reverse the operation except the key:
//
//	[IV (if the mode needs one)] [salt (if the key is password-derived)] [payload]
//
// The package offers:
//   - TransformationDescriptor parsing ("AES/CBC/PKCS5Padding", "HmacSHA256")
//   - A single framing policy for IV, salt and tag sizes shared by every envelope
//   - SecretMaterial, a destroyable key holder with constant-time equality
//   - PBKDF2 (SHA-1/256/512) and Argon2id password derivation with per-call salts
//   - CipherEnvelope for direct keys, password-derived keys and public keys
//     (AES, DESede, ChaCha20-Poly1305, RSA and ML-KEM-768 hybrid suites)
//   - IntegrityEnvelope for HMAC, salted digests and password-based MACs
//   - TextCodec for Base64/Hex text and non-UTF-8 charsets
//   - Chunked AEAD streams, versioned key rings, crypto providers and an
//     ENC(...) aware configuration store
//
// # Quick Start
//
// Build an envelope once and share it between goroutines:
//
//	secret, err := crypto.GenerateSecret("AES", 256)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer secret.Destroy()
//
//	env, err := crypto.NewCipherEnvelopeBuilder().
//		Transformation("AES/GCM/NoPadding").
//		KeySource(crypto.DirectKey(secret)).
//		Build()
//	if err != nil {
//		log.Fatal(err) // always a configuration error
//	}
//
//	ciphertext, err := env.Encrypt([]byte("hello")) // 12 + 5 + 16 bytes
//	plaintext, err := env.Decrypt(ciphertext)
//
// The one-call helpers Encrypt/Decrypt and EncryptWithPassword/DecryptWithPassword
// cover the common AES-256-GCM case with base64 text.
//
// # Password-Based Encryption
//
// A password key source derives a fresh key from a fresh salt on every call.
// The salt is stored after the IV, so decryption re-derives the same key:
//
//	params := crypto.DefaultPasswordDerivationParams() // 16-byte salt, 100000 x PBKDF2-HMAC-SHA256, 256 bits
//	env, err := crypto.NewCipherEnvelopeBuilder().
//		Transformation("AES/CBC/PKCS5Padding").
//		KeySource(crypto.PasswordKey([]byte("Secr3t!"), params)).
//		Build()
//	defer env.Destroy()
//
// The derived key is destroyed before Encrypt or Decrypt returns, on every path.
//
// # Integrity
//
//	mac, err := crypto.NewIntegrityEnvelopeBuilder().
//		Algorithm(crypto.HmacSHA256).
//		Key(macKey).
//		Build()
//	tag, err := mac.Sign(message)
//	ok, err := mac.Verify(message, tag)
//
// Verification is constant time once the tag length matches.
//
// # Error Handling
//
// Every error wraps exactly one of the exported sentinel values and a coded
// github.com/agilira/go-errors error:
//
//	if errors.Is(err, crypto.ErrAuthenticationFailed) {
//		// tampered or wrong key
//	}
//	if crypto.IsConfigError(err) {
//		// returned by a builder, fix the configuration
//	}
//
// Configuration errors are reported by Build. Call-time errors (random
// source, primitive, short ciphertext, authentication, destroyed secret)
// are terminal for the call that returned them; nothing is retried.
//
// # Security Considerations
//
//   - Padding and RSA decryption failures are reported as one generic error.
//   - Key and password bytes never appear in errors or audit metadata.
//   - Scratch buffers are wiped with memguard before reuse.
//   - DESede, ECB, SHA-1 and RSA PKCS#1 v1.5 exist to read existing data.
//
// # Streaming Encryption for Large Datasets
//
//	enc, err := crypto.NewStreamingEncryptor(output, env)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := io.Copy(enc, input); err != nil {
//		log.Fatal(err)
//	}
//	if err := enc.Close(); err != nil {
//		log.Fatal(err)
//	}
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra library
// SPDX-License-Identifier: MPL-2.0
package crypto
