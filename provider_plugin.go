// provider_plugin.go: Bridges between Provider and go-plugins managers.
//
// ProviderPlugin serves an in-process Provider as a plugin; PluginProvider is
// the Provider seen from the other side, routing every call through
// Manager.ExecuteWithOptions with its circuit breaker and metrics.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"context"
	"fmt"
	"sync"
	"time"

	goplugins "github.com/agilira/go-plugins"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Plugin operations carried in ProviderRequest.Operation.
const (
	OpInitialize     = "initialize"
	OpGenerateRandom = "generate_random"
	OpHealth         = "health"
)

// PluginManager is the go-plugins manager type used for crypto providers.
type PluginManager = goplugins.Manager[ProviderRequest, ProviderResponse]

// ProviderPlugin exposes a Provider as a go-plugins plugin.
type ProviderPlugin struct {
	provider Provider
}

// NewProviderPlugin wraps provider for registration with a PluginManager.
func NewProviderPlugin(provider Provider) *ProviderPlugin {
	return &ProviderPlugin{provider: provider}
}

// Info implements goplugins.Plugin.
func (p *ProviderPlugin) Info() goplugins.PluginInfo {
	caps := p.provider.Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return goplugins.PluginInfo{
		Name:         p.provider.Name(),
		Version:      p.provider.Version(),
		Description:  "cryptex provider",
		Capabilities: names,
	}
}

// Execute implements goplugins.Plugin. Provider failures are returned as
// errors so the manager's circuit breaker sees them; unknown operations are
// an unsuccessful response.
func (p *ProviderPlugin) Execute(ctx context.Context, _ goplugins.ExecutionContext, req ProviderRequest) (ProviderResponse, error) {
	switch req.Operation {
	case OpInitialize:
		if err := p.provider.Initialize(ctx, req.Parameters); err != nil {
			return ProviderResponse{}, err
		}
		return ProviderResponse{Success: true}, nil
	case OpGenerateRandom:
		n, ok := intParam(req.Parameters, "length")
		if !ok || n < 0 {
			return ProviderResponse{Error: "generate_random needs a non-negative length"}, nil
		}
		data, err := p.provider.GenerateRandom(ctx, n)
		if err != nil {
			return ProviderResponse{}, err
		}
		return ProviderResponse{Success: true, Data: data}, nil
	case OpHealth:
		return ProviderResponse{Success: p.provider.IsHealthy()}, nil
	default:
		return ProviderResponse{Error: fmt.Sprintf("unsupported operation %q", req.Operation)}, nil
	}
}

// Health implements goplugins.Plugin.
func (p *ProviderPlugin) Health(context.Context) goplugins.HealthStatus {
	status := goplugins.HealthStatus{Status: goplugins.StatusHealthy, LastCheck: timecache.CachedTime()}
	if !p.provider.IsHealthy() {
		status.Status = goplugins.StatusUnhealthy
		status.Message = "provider reports unhealthy"
	}
	return status
}

// Close implements goplugins.Plugin.
func (p *ProviderPlugin) Close() error {
	return p.provider.Close()
}

// intParam reads an integer parameter that may have been decoded from JSON.
func intParam(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), v == float64(int(v))
	default:
		return 0, false
	}
}

// PluginProvider is a Provider whose operations run in the plugin registered
// under the same name in a PluginManager.
type PluginProvider struct {
	manager *PluginManager
	name    string
	timeout time.Duration

	mu           sync.RWMutex
	version      string
	capabilities []ProviderCapability
	initialized  bool
}

// NewPluginProvider returns a provider for the plugin called name. A zero
// timeout uses DefaultProviderTimeout.
func NewPluginProvider(manager *PluginManager, name string, timeout time.Duration) *PluginProvider {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &PluginProvider{manager: manager, name: name, timeout: timeout}
}

func (p *PluginProvider) Name() string { return p.name }

func (p *PluginProvider) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

func (p *PluginProvider) Capabilities() []ProviderCapability {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ProviderCapability(nil), p.capabilities...)
}

// Initialize looks the plugin up, records its metadata and forwards config.
func (p *PluginProvider) Initialize(ctx context.Context, config map[string]interface{}) error {
	if p.manager == nil {
		return newError(ErrMissingConfiguration, ErrCodeProvider, "plugin manager is required")
	}
	plugin, err := p.manager.GetPlugin(p.name)
	if err != nil {
		return wrapError(ErrProviderUnavailable, err, ErrCodeProvider, fmt.Sprintf("plugin %s is not registered", p.name))
	}
	if _, err := p.execute(ctx, ProviderRequest{Operation: OpInitialize, Parameters: config}); err != nil {
		return err
	}

	info := plugin.Info()
	caps := make([]ProviderCapability, len(info.Capabilities))
	for i, c := range info.Capabilities {
		caps[i] = ProviderCapability(c)
	}
	p.mu.Lock()
	p.version = info.Version
	p.capabilities = caps
	p.initialized = true
	p.mu.Unlock()
	return nil
}

// Close marks the provider closed. The plugin itself belongs to the manager.
func (p *PluginProvider) Close() error {
	p.mu.Lock()
	p.initialized = false
	p.mu.Unlock()
	return nil
}

// IsHealthy asks the plugin directly rather than the manager's periodic status.
func (p *PluginProvider) IsHealthy() bool {
	p.mu.RLock()
	ok := p.initialized
	p.mu.RUnlock()
	if !ok {
		return false
	}
	plugin, err := p.manager.GetPlugin(p.name)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return plugin.Health(ctx).Status == goplugins.StatusHealthy
}

func (p *PluginProvider) GenerateRandom(ctx context.Context, length int) ([]byte, error) {
	resp, err := p.execute(ctx, ProviderRequest{
		Operation:  OpGenerateRandom,
		Parameters: map[string]interface{}{"length": length},
	})
	if err != nil {
		return nil, wrapError(ErrRandomSource, err, ErrCodeProvider, fmt.Sprintf("plugin %s failed to generate random bytes", p.name))
	}
	return resp.Data, nil
}

func (p *PluginProvider) execute(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	resp, err := p.manager.ExecuteWithOptions(ctx, p.name, goplugins.ExecutionContext{
		RequestID: uuid.NewString(),
		Timeout:   p.timeout,
	}, req)
	if err != nil {
		return ProviderResponse{}, wrapError(ErrProviderUnavailable, err, ErrCodeProvider, fmt.Sprintf("plugin %s: %s failed", p.name, req.Operation))
	}
	if !resp.Success {
		return resp, newError(ErrProviderUnavailable, ErrCodeProvider, fmt.Sprintf("plugin %s: %s", p.name, resp.Error))
	}
	return resp, nil
}

// RegisterPlugin registers the plugin called name from the manager's
// PluginManager as a provider.
func (m *ProviderManager) RegisterPlugin(name string) error {
	if m.pluginManager == nil {
		return newError(ErrMissingConfiguration, ErrCodeProvider, "no plugin manager configured")
	}
	return m.RegisterProvider(name, NewPluginProvider(m.pluginManager, name, m.config.OperationTimeout))
}

var (
	_ goplugins.Plugin[ProviderRequest, ProviderResponse] = (*ProviderPlugin)(nil)
	_ Provider                                            = (*PluginProvider)(nil)
)
