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

// Package config loads oraculum's runtime configuration from YAML plus
// environment overrides, and can hot-reload the sandbox allowlist and
// search defaults when the file changes on disk.
package config

import "time"

// Config is the top-level configuration tree.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty" mapstructure:"server"`
	LLM     LLMConfig     `yaml:"llm,omitempty" mapstructure:"llm"`
	Sandbox SandboxConfig `yaml:"sandbox,omitempty" mapstructure:"sandbox"`
	Search  SearchConfig  `yaml:"search,omitempty" mapstructure:"search"`
	Log     LogConfig     `yaml:"log,omitempty" mapstructure:"log"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"`
}

// LLMConfig configures the provider-agnostic chat-completion client.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	PolicyModel string  `yaml:"policy_model,omitempty" mapstructure:"policy_model"`
	JudgeModel  string  `yaml:"judge_model,omitempty" mapstructure:"judge_model"`
	Temperature float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
}

// SandboxConfig configures the persistent code-execution sandbox's budgets.
type SandboxConfig struct {
	Timeout          time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	MaxLLMCalls      int           `yaml:"max_llm_calls,omitempty" mapstructure:"max_llm_calls"`
	MaxPromptChars   int           `yaml:"max_prompt_chars,omitempty" mapstructure:"max_prompt_chars"`
	StdoutCap        int           `yaml:"stdout_cap,omitempty" mapstructure:"stdout_cap"`
	StderrCap        int           `yaml:"stderr_cap,omitempty" mapstructure:"stderr_cap"`
	ReprCap          int           `yaml:"repr_cap,omitempty" mapstructure:"repr_cap"`
	AllowedImports   []string      `yaml:"allowed_imports,omitempty" mapstructure:"allowed_imports"`
	RestrictBuiltins bool          `yaml:"restrict_builtins,omitempty" mapstructure:"restrict_builtins"`
}

// SearchConfig configures the MCTS engine's default search parameters.
type SearchConfig struct {
	MaxIterations int     `yaml:"max_iterations,omitempty" mapstructure:"max_iterations"`
	MaxDepth      int     `yaml:"max_depth,omitempty" mapstructure:"max_depth"`
	ExploreConst  float64 `yaml:"explore_const,omitempty" mapstructure:"explore_const"`
	HistoryLimit  int     `yaml:"history_limit,omitempty" mapstructure:"history_limit"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" mapstructure:"level"`
	Format string `yaml:"format,omitempty" mapstructure:"format"`
}

// SetDefaults fills zero-valued fields with oraculum's defaults: 30s
// sandbox timeout, 3 sub-LLM calls, 100k-char prompt truncation, 12
// iterations, depth 5, c=sqrt(2), last-10-message branch history.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.LLM.PolicyModel == "" {
		c.LLM.PolicyModel = "gpt-4o"
	}
	if c.LLM.JudgeModel == "" {
		c.LLM.JudgeModel = "gpt-4o-mini"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.Sandbox.Timeout == 0 {
		c.Sandbox.Timeout = 30 * time.Second
	}
	if c.Sandbox.MaxLLMCalls == 0 {
		c.Sandbox.MaxLLMCalls = 3
	}
	if c.Sandbox.MaxPromptChars == 0 {
		c.Sandbox.MaxPromptChars = 100_000
	}
	if c.Sandbox.StdoutCap == 0 {
		c.Sandbox.StdoutCap = 2000
	}
	if c.Sandbox.StderrCap == 0 {
		c.Sandbox.StderrCap = 1000
	}
	if c.Sandbox.ReprCap == 0 {
		c.Sandbox.ReprCap = 200
	}
	if len(c.Sandbox.AllowedImports) == 0 {
		c.Sandbox.AllowedImports = []string{"re", "json", "math", "string", "collections", "functools", "itertools"}
	}
	if c.Search.MaxIterations == 0 {
		c.Search.MaxIterations = 12
	}
	if c.Search.MaxDepth == 0 {
		c.Search.MaxDepth = 5
	}
	if c.Search.ExploreConst == 0 {
		c.Search.ExploreConst = 1.4142135623730951 // sqrt(2)
	}
	if c.Search.HistoryLimit == 0 {
		c.Search.HistoryLimit = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "simple"
	}
}
