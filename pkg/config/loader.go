// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Provider supplies raw config bytes and, optionally, a change signal.
type Provider interface {
	Load(ctx context.Context) ([]byte, error)
	Watch(ctx context.Context) (<-chan struct{}, error)
	Close() error
}

// Loader loads and, when the provider supports it, watches configuration.
type Loader struct {
	provider Provider
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange registers a callback invoked with the freshly reloaded
// Config whenever the underlying provider reports a change.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) { l.onChange = fn }
}

// NewLoader creates a Loader reading from p.
func NewLoader(p Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, expands, and decodes the configuration, applying defaults
// to anything left unset.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(expandEnv(data), &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	return cfg, nil
}

// Watch starts the provider's change notifications and invokes onChange
// with a freshly reloaded Config on each signal. It returns immediately;
// the watch loop runs until ctx is canceled.
func (l *Loader) Watch(ctx context.Context) error {
	if l.onChange == nil {
		return nil
	}
	ch, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				cfg, err := l.Load(ctx)
				if err != nil {
					slog.Error("config: reload failed", "error", err)
					continue
				}
				l.onChange(cfg)
			}
		}
	}()
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if len(groups[2]) > 2 {
			return groups[2][2:]
		}
		return nil
	})
}

// applyEnvOverrides lets the documented environment variables win over
// whatever the YAML file says.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("POLICY_MODEL"); v != "" {
		cfg.LLM.PolicyModel = v
	}
	if v := os.Getenv("ORACULUM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ORACULUM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ORACULUM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
