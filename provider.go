// provider.go: Pluggable crypto providers (HSM, KMS, software) for envelopes.
//
// A provider can supply entropy to envelopes through RandomSource and, when it
// implements CipherPrimitive, run the cipher transforms itself. Providers are
// managed with the github.com/agilira/go-plugins framework types.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProviderCapability names an operation a provider supports.
type ProviderCapability string

const (
	CapabilityRandom         ProviderCapability = "random_generation"
	CapabilityGenerateSecret ProviderCapability = "generate_symmetric"
	CapabilityCipher         ProviderCapability = "cipher"
	CapabilityKeyStorage     ProviderCapability = "secure_key_storage"
)

// Provider is implemented by crypto provider plugins.
type Provider interface {
	Name() string
	Version() string
	Capabilities() []ProviderCapability

	Initialize(ctx context.Context, config map[string]interface{}) error
	Close() error
	IsHealthy() bool

	// GenerateRandom returns exactly length random bytes.
	GenerateRandom(ctx context.Context, length int) ([]byte, error)
}

// ProviderRequest is the plugin wire request for provider operations.
type ProviderRequest struct {
	Operation  string                 `json:"operation"`
	Suite      string                 `json:"suite,omitempty"`
	Data       []byte                 `json:"data,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ProviderResponse is the plugin wire response for provider operations.
type ProviderResponse struct {
	Success  bool                   `json:"success"`
	Data     []byte                 `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ProviderManagerConfig configures a ProviderManager.
type ProviderManagerConfig struct {
	DefaultProvider  string                            `json:"default_provider" yaml:"default_provider"`
	ProviderConfigs  map[string]map[string]interface{} `json:"provider_configs" yaml:"provider_configs"`
	OperationTimeout time.Duration                     `json:"operation_timeout" yaml:"operation_timeout"`
	Audit            AuditLogger                       `json:"-" yaml:"-"`
}

// DefaultProviderTimeout bounds provider initialization and random requests.
const DefaultProviderTimeout = 10 * time.Second

// ProviderManager keeps initialized providers by name.
type ProviderManager struct {
	mu              sync.RWMutex
	pluginManager   *PluginManager
	providers       map[string]Provider
	defaultProvider string
	config          ProviderManagerConfig
	audit           AuditLogger
	closed          bool
}

// NewProviderManager returns a manager. pluginManager may be nil when all
// providers are registered in-process; otherwise RegisterPlugin can add the
// plugins it serves.
func NewProviderManager(config *ProviderManagerConfig, pluginManager *PluginManager) *ProviderManager {
	cfg := ProviderManagerConfig{OperationTimeout: DefaultProviderTimeout}
	if config != nil {
		cfg = *config
		if cfg.OperationTimeout <= 0 {
			cfg.OperationTimeout = DefaultProviderTimeout
		}
	}
	return &ProviderManager{
		pluginManager: pluginManager,
		providers:     make(map[string]Provider),
		config:        cfg,
		audit:         auditOrNoOp(cfg.Audit),
	}
}

// PluginManager returns the go-plugins manager given at construction, if any.
func (m *ProviderManager) PluginManager() *PluginManager {
	return m.pluginManager
}

// RegisterProvider initializes provider with its configured settings and
// registers it under name.
func (m *ProviderManager) RegisterProvider(name string, provider Provider) error {
	if name == "" || provider == nil {
		return newError(ErrMissingConfiguration, ErrCodeProvider, "provider name and instance are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return newError(ErrClosed, ErrCodeClosed, "provider manager is closed")
	}
	if _, exists := m.providers[name]; exists {
		return newError(ErrMissingConfiguration, ErrCodeProvider, fmt.Sprintf("provider %s already registered", name))
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.OperationTimeout)
	defer cancel()
	if err := provider.Initialize(ctx, m.config.ProviderConfigs[name]); err != nil {
		_ = m.audit.Log("provider.register", false, map[string]interface{}{"provider": name, "error": err.Error()})
		return wrapError(ErrProviderUnavailable, err, ErrCodeProvider, fmt.Sprintf("failed to initialize provider %s", name))
	}

	m.providers[name] = provider
	if m.defaultProvider == "" || m.config.DefaultProvider == name {
		m.defaultProvider = name
	}
	_ = m.audit.Log("provider.register", true, map[string]interface{}{"provider": name, "version": provider.Version()})
	return nil
}

// GetProvider returns a healthy provider; an empty name selects the default.
func (m *ProviderManager) GetProvider(name string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, newError(ErrClosed, ErrCodeClosed, "provider manager is closed")
	}
	if name == "" {
		name = m.defaultProvider
	}
	p, ok := m.providers[name]
	if !ok {
		return nil, newError(ErrKeyNotFound, ErrCodeProvider, fmt.Sprintf("provider %q not registered", name))
	}
	if !p.IsHealthy() {
		return nil, newError(ErrProviderUnavailable, ErrCodeProvider, fmt.Sprintf("provider %s failed its health check", name))
	}
	return p, nil
}

// Providers returns the registered provider names in sorted order.
func (m *ProviderManager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for n := range m.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RandomSource returns a RandomSource that draws from the named provider.
// The provider is looked up on every read, so a provider that becomes
// unhealthy makes envelope calls fail with ErrRandomSource.
func (m *ProviderManager) RandomSource(name string) (RandomSource, error) {
	p, err := m.GetProvider(name)
	if err != nil {
		return nil, err
	}
	if !hasCapability(p, CapabilityRandom) {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeProvider, fmt.Sprintf("provider %s has no random generator", p.Name()))
	}
	return &providerRandom{manager: m, name: name, timeout: m.config.OperationTimeout}, nil
}

// Primitive returns the named provider as a CipherPrimitive when it implements one.
func (m *ProviderManager) Primitive(name string) (CipherPrimitive, error) {
	p, err := m.GetProvider(name)
	if err != nil {
		return nil, err
	}
	cp, ok := p.(CipherPrimitive)
	if !ok || !hasCapability(p, CapabilityCipher) {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeProvider, fmt.Sprintf("provider %s does not run ciphers", p.Name()))
	}
	return cp, nil
}

// Close shuts down every provider. Later calls fail with ErrClosed.
func (m *ProviderManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for name, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
		}
	}
	m.providers = make(map[string]Provider)
	if len(errs) > 0 {
		return wrapError(ErrProviderUnavailable, errors.Join(errs...), ErrCodeProvider, "failed to close some providers")
	}
	return nil
}

func hasCapability(p Provider, c ProviderCapability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

type providerRandom struct {
	manager *ProviderManager
	name    string
	timeout time.Duration
}

func (r *providerRandom) Read(b []byte) (int, error) {
	p, err := r.manager.GetProvider(r.name)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	out, err := p.GenerateRandom(ctx, len(b))
	if err != nil {
		return 0, err
	}
	defer Zeroize(out)
	if len(out) != len(b) {
		return 0, newError(ErrRandomSource, ErrCodeProvider, fmt.Sprintf("provider %s returned %d of %d bytes", p.Name(), len(out), len(b)))
	}
	return copy(b, out), nil
}

// SoftwareProvider is the in-process provider backed by the system CSPRNG
// and DefaultPrimitive.
type SoftwareProvider struct {
	StdPrimitive
	mu          sync.RWMutex
	initialized bool
}

// NewSoftwareProvider returns an uninitialized software provider.
func NewSoftwareProvider() *SoftwareProvider { return &SoftwareProvider{} }

func (s *SoftwareProvider) Name() string    { return "software" }
func (s *SoftwareProvider) Version() string { return "1.0.0" }

func (s *SoftwareProvider) Capabilities() []ProviderCapability {
	return []ProviderCapability{CapabilityRandom, CapabilityGenerateSecret, CapabilityCipher}
}

func (s *SoftwareProvider) Initialize(context.Context, map[string]interface{}) error {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *SoftwareProvider) Close() error {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return nil
}

func (s *SoftwareProvider) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *SoftwareProvider) GenerateRandom(ctx context.Context, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(ErrRandomSource, err, ErrCodeProvider, "random request cancelled")
	}
	if length < 0 {
		return nil, newError(ErrRandomSource, ErrCodeProvider, "negative random length")
	}
	return readRandom(SystemRandom, length)
}
