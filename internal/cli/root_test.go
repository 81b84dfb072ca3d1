// root_test.go: End-to-end tests of the cryptex commands.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/cryptex"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestEncryptDecryptWithKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b64 := crypto.KeyToBase64(key)

	envelope, err := run(t, "", "encrypt", "--key", b64, "hello")
	require.NoError(t, err)
	raw, err := crypto.KeyFromBase64(envelope)
	require.NoError(t, err)
	assert.Len(t, raw, 33)

	plain, err := run(t, "", "decrypt", "--key", b64, envelope)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestEncryptDecryptWithPasswordFromStdin(t *testing.T) {
	t.Setenv("CRYPTEX_TEST_PASSWORD", "Secr3t!")
	common := []string{"--password-env", "CRYPTEX_TEST_PASSWORD", "--iterations", "1000", "-t", "AES/CBC/PKCS5Padding", "--encoding", "hex"}

	envelope, err := run(t, "A\n", append([]string{"encrypt"}, common...)...)
	require.NoError(t, err)
	assert.Len(t, envelope, 2*48)

	plain, err := run(t, envelope+"\n", append([]string{"decrypt"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "A", plain)
}

func TestPasswordFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CRYPTEX_ENVFILE_PASSWORD=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CRYPTEX_ENVFILE_PASSWORD") })

	common := []string{"--env-file", envFile, "--password-env", "CRYPTEX_ENVFILE_PASSWORD", "--iterations", "1000"}
	envelope, err := run(t, "", append([]string{"encrypt", "payload"}, common...)...)
	require.NoError(t, err)
	plain, err := run(t, "", append([]string{"decrypt", envelope}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "payload", plain)
}

func TestMissingKeySource(t *testing.T) {
	_, err := run(t, "", "encrypt", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password-env")
}

func TestDecryptWrongKeyFails(t *testing.T) {
	k1, _ := crypto.GenerateKey()
	k2, _ := crypto.GenerateKey()
	envelope, err := run(t, "", "encrypt", "--key", crypto.KeyToBase64(k1), "hello")
	require.NoError(t, err)
	_, err = run(t, "", "decrypt", "--key", crypto.KeyToBase64(k2), envelope)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
}

func TestDigestAndVerify(t *testing.T) {
	digest, err := run(t, "", "digest", "-a", "SHA-256", "--digest-salt", "8", "--digest-iterations", "10", "message")
	require.NoError(t, err)

	out, err := run(t, "", "verify", "-a", "SHA-256", "--digest-salt", "8", "--digest-iterations", "10", "message", digest)
	require.NoError(t, err)
	assert.Equal(t, "OK", out)

	_, err = run(t, "", "verify", "-a", "SHA-256", "--digest-salt", "8", "--digest-iterations", "10", "other", digest)
	assert.Error(t, err)
}

func TestHmacWithKeyFile(t *testing.T) {
	keyOut, err := run(t, "", "keygen", "-a", "HmacSHA256")
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "mac.key")
	require.NoError(t, os.WriteFile(keyFile, []byte(keyOut+"\n"), 0o600))

	tag, err := run(t, "", "digest", "-a", "HmacSHA256", "--key-file", keyFile, "message")
	require.NoError(t, err)
	out, err := run(t, "", "verify", "-a", "HmacSHA256", "--key-file", keyFile, "message", tag)
	require.NoError(t, err)
	assert.Equal(t, "OK", out)
}

func TestKeygenSymmetric(t *testing.T) {
	out, err := run(t, "", "keygen", "--algorithm", "DESede")
	require.NoError(t, err)
	key, err := crypto.KeyFromBase64(out)
	require.NoError(t, err)
	assert.Len(t, key, 24)

	_, err = run(t, "", "keygen", "--algorithm", "AES", "--bits", "100")
	assert.ErrorIs(t, err, crypto.ErrInvalidKeySize)
}

func TestKeygenPairAndAsymmetricRoundTrip(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "kem")
	_, err := run(t, "", "keygen", "--pair", "MLKEM768", "--out", prefix)
	require.NoError(t, err)

	envelope, err := run(t, "", "encrypt", "-t", "MLKEM768/GCM/NoPadding", "--public-key", prefix+".pub.pem", "post-quantum")
	require.NoError(t, err)
	plain, err := run(t, "", "decrypt", "-t", "MLKEM768/GCM/NoPadding", "--private-key", prefix+".pem", envelope)
	require.NoError(t, err)
	assert.Equal(t, "post-quantum", plain)
}

func TestConfigGetYAML(t *testing.T) {
	key, _ := crypto.GenerateKey()
	b64 := crypto.KeyToBase64(key)

	enc, err := run(t, "", "config", "encrypt-value", "--key", b64, "s3cr3t")
	require.NoError(t, err)
	require.True(t, crypto.IsEncrypted(enc))

	file := filepath.Join(t.TempDir(), "app.yaml")
	doc := "database:\n  user: app\n  password: " + enc + "\n"
	require.NoError(t, os.WriteFile(file, []byte(doc), 0o600))

	out, err := run(t, "", "config", "get", "--key", b64, "-f", file, "database.password")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", out)

	out, err = run(t, "", "config", "get", "--key", b64, "-f", file, "database.user")
	require.NoError(t, err)
	assert.Equal(t, "app", out)

	_, err = run(t, "", "config", "get", "--key", b64, "-f", file, "database.missing")
	assert.Error(t, err)
}

func TestConfigDotenvAudit(t *testing.T) {
	key, _ := crypto.GenerateKey()
	b64 := crypto.KeyToBase64(key)
	enc, err := run(t, "", "config", "encrypt-value", "--key", b64, "token-value")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(file, []byte("API_TOKEN="+enc+"\nPLAIN=x\n"), 0o600))

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"config", "get", "--audit", "--key", b64, "-f", file, "API_TOKEN"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "token-value", strings.TrimSpace(out.String()))
	assert.Contains(t, errOut.String(), `"action":"config.decrypt"`)
	assert.NotContains(t, errOut.String(), "token-value")
}
