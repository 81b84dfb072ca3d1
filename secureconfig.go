// secureconfig.go: Property store with transparently decrypted ENC(...) values.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	encPrefix = "ENC("
	encSuffix = ")"
)

// IsEncrypted reports whether value has the ENC(...) form.
func IsEncrypted(value string) bool {
	_, ok := unwrapEncrypted(value)
	return ok
}

func unwrapEncrypted(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if len(v) < len(encPrefix)+len(encSuffix) || !strings.HasPrefix(v, encPrefix) || !strings.HasSuffix(v, encSuffix) {
		return "", false
	}
	return v[len(encPrefix) : len(v)-len(encSuffix)], true
}

// SecureConfig holds string properties. Values written as ENC(ciphertext)
// are decrypted with the configured StringEncryptor when read.
//
// Example:
//
//	text, _ := env.WithCodec(crypto.DefaultTextCodec())
//	cfg, _ := crypto.NewSecureConfig(text, nil)
//	_ = cfg.LoadYAMLFile("app.yaml")
//	dsn, ok, err := cfg.Get("database.password")
type SecureConfig struct {
	mu        sync.RWMutex
	values    map[string]string
	encryptor StringEncryptor
	audit     AuditLogger
}

// NewSecureConfig returns an empty store. audit may be nil.
func NewSecureConfig(encryptor StringEncryptor, audit AuditLogger) (*SecureConfig, error) {
	if encryptor == nil {
		return nil, newError(ErrMissingConfiguration, ErrCodeConfigValue, "secure config needs a string encryptor")
	}
	return &SecureConfig{
		values:    make(map[string]string),
		encryptor: encryptor,
		audit:     auditOrNoOp(audit),
	}, nil
}

// LoadYAML merges a YAML document. Nested mappings are flattened with '.'
// and scalars are stored in their YAML text form.
func (c *SecureConfig) LoadYAML(r io.Reader) error {
	var doc map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return wrapError(ErrMissingConfiguration, err, ErrCodeConfigValue, "invalid YAML configuration")
	}
	flat := make(map[string]string)
	flatten("", doc, flat)
	c.merge(flat)
	return nil
}

// LoadYAMLFile merges the YAML file at path.
func (c *SecureConfig) LoadYAMLFile(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path is chosen by the application
	if err != nil {
		return wrapError(ErrMissingConfiguration, err, ErrCodeConfigValue, "cannot open configuration file")
	}
	defer func() { _ = f.Close() }()
	return c.LoadYAML(f)
}

// LoadDotenv merges KEY=value lines in dotenv syntax.
func (c *SecureConfig) LoadDotenv(r io.Reader) error {
	values, err := godotenv.Parse(r)
	if err != nil {
		return wrapError(ErrMissingConfiguration, err, ErrCodeConfigValue, "invalid dotenv configuration")
	}
	c.merge(values)
	return nil
}

// LoadDotenvFile merges the dotenv files at paths, later files winning.
func (c *SecureConfig) LoadDotenvFile(paths ...string) error {
	values, err := godotenv.Read(paths...)
	if err != nil {
		return wrapError(ErrMissingConfiguration, err, ErrCodeConfigValue, "cannot read dotenv configuration")
	}
	c.merge(values)
	return nil
}

func (c *SecureConfig) merge(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.values[k] = v
	}
}

func flatten(prefix string, node interface{}, out map[string]string) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			flatten(joinKey(prefix, k), child, out)
		}
	case map[interface{}]interface{}:
		for k, child := range v {
			flatten(joinKey(prefix, fmt.Sprint(k)), child, out)
		}
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Get returns the value of key, decrypting ENC(...) values.
func (c *SecureConfig) Get(key string) (string, bool, error) {
	c.mu.RLock()
	raw, ok := c.values[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	inner, enc := unwrapEncrypted(raw)
	if !enc {
		return raw, true, nil
	}
	plain, err := c.encryptor.DecryptString(inner)
	_ = c.audit.Log("config.decrypt", err == nil, map[string]interface{}{"key": key})
	if err != nil {
		return "", true, err
	}
	return plain, true, nil
}

// GetOrDefault returns the decrypted value of key, or def when the key is
// missing. A value that fails to decrypt is an error, never the default.
func (c *SecureConfig) GetOrDefault(key, def string) (string, error) {
	v, ok, err := c.Get(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Raw returns the stored value without decrypting it.
func (c *SecureConfig) Raw(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value as is.
func (c *SecureConfig) Set(key, value string) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// SetEncrypted encrypts plaintext and stores it as ENC(...).
func (c *SecureConfig) SetEncrypted(key, plaintext string) error {
	v, err := c.EncryptValue(plaintext)
	_ = c.audit.Log("config.encrypt", err == nil, map[string]interface{}{"key": key})
	if err != nil {
		return err
	}
	c.Set(key, v)
	return nil
}

// EncryptValue returns plaintext encrypted in ENC(...) form.
func (c *SecureConfig) EncryptValue(plaintext string) (string, error) {
	ct, err := c.encryptor.EncryptString(plaintext)
	if err != nil {
		return "", err
	}
	return encPrefix + ct + encSuffix, nil
}

// Keys returns the stored keys in sorted order.
func (c *SecureConfig) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dotenv renders the stored values, still encrypted, in dotenv syntax.
func (c *SecureConfig) Dotenv() (string, error) {
	c.mu.RLock()
	snapshot := make(map[string]string, len(c.values))
	for k, v := range c.values {
		snapshot[k] = v
	}
	c.mu.RUnlock()
	out, err := godotenv.Marshal(snapshot)
	if err != nil {
		return "", wrapError(ErrPrimitiveFailure, err, ErrCodeConfigValue, "failed to render dotenv")
	}
	return out, nil
}
