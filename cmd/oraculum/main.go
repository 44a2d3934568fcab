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

// Command oraculum serves the MCTS search orchestrator over HTTP.
//
// Usage:
//
//	oraculum serve --config config.yaml
//	oraculum validate --config config.yaml
//	oraculum schema
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/oraculum/pkg/config"
	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/logger"
	"github.com/kadirpekel/oraculum/pkg/observability"
	"github.com/kadirpekel/oraculum/pkg/orchestrator"
	"github.com/kadirpekel/oraculum/pkg/tokencount"
	"github.com/kadirpekel/oraculum/pkg/transcript"
	"github.com/kadirpekel/oraculum/pkg/transport"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP/WebSocket server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the configuration defaults as YAML."`

	Config string `short:"c" help:"Path to config file." type:"path"`
}

// ServeCmd starts the HTTP/WebSocket server.
type ServeCmd struct {
	Addr string `help:"Listen address, overrides config/env." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Format)

	obsMgr, err := observability.NewManager(context.Background(), &observability.Config{
		Metrics: observability.MetricsConfig{Enabled: true},
	})
	if err != nil {
		return fmt.Errorf("observability init: %w", err)
	}
	defer obsMgr.Shutdown(context.Background())

	client := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	counter, err := tokencount.New(cfg.LLM.PolicyModel)
	if err != nil {
		return fmt.Errorf("token counter init: %w", err)
	}

	cache := transcript.NewCache()
	orch := orchestrator.New(cache, client, counter, *cfg)

	srv := transport.New(orch, cache, transcript.NewFakeIngester(nil), obsMgr)

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Router()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	slog.Info("oraculum server starting", "addr", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	<-ctx.Done()
	return nil
}

// ValidateCmd validates a configuration file without starting the server.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	if _, err := loadConfig(cli.Config); err != nil {
		return err
	}
	fmt.Println("configuration is valid")
	return nil
}

// SchemaCmd prints the fully-defaulted configuration as YAML, useful as a
// reference for writing a real config file.
type SchemaCmd struct{}

func (c *SchemaCmd) Run(cli *CLI) error {
	cfg := &config.Config{}
	cfg.SetDefaults()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		cfg.SetDefaults()
		return cfg, nil
	}
	provider, err := config.NewFileProvider(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer provider.Close()
	loader := config.NewLoader(provider)
	return loader.Load(context.Background())
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("oraculum"),
		kong.Description("MCTS search orchestrator for transcript Q&A and rubric discovery"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
