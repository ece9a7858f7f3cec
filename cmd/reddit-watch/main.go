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

// Command reddit-watch is the CLI surface spec section 6 calls out of
// core but consumed by it: migrate, serve {agent-type}, run-cycle.
//
// Usage:
//
//	reddit-watch migrate --config config.yaml
//	reddit-watch serve retrieval --config config.yaml
//	reddit-watch run-cycle --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/a2awatch/reddit-watch/internal/obslog"
)

// CLI mirrors the teacher's cmd/hector flat-subcommand shape (Name/Serve/
// Version-style fields with `cmd:""` tags), trimmed to the three
// subcommands spec section 6 names.
type CLI struct {
	Migrate  MigrateCmd  `cmd:"" help:"Apply pending database migrations."`
	Serve    ServeCmd    `cmd:"" help:"Run one agent-type's HTTP server."`
	RunCycle RunCycleCmd `cmd:"run-cycle" help:"Run one monitoring cycle to completion and exit."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	cli := CLI{}
	parseCtx := kong.Parse(&cli,
		kong.Name("reddit-watch"),
		kong.Description("Reddit Watch agent platform"),
		kong.UsageOnError(),
	)

	obslog.Init(obslog.ParseLevel(cli.LogLevel), os.Stderr)

	err := parseCtx.Run(&cli)
	if err == nil {
		os.Exit(0)
	}

	var exitErr *exitCodeError
	if asExitCodeError(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.cause)
		os.Exit(exitErr.code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// exitCodeError lets a subcommand's Run pick between exit code 1 (runtime
// error) and exit code 2 (bad configuration) per spec section 6.
type exitCodeError struct {
	code  int
	cause error
}

func (e *exitCodeError) Error() string { return e.cause.Error() }
func (e *exitCodeError) Unwrap() error { return e.cause }

func badConfig(err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: 2, cause: err}
}

func asExitCodeError(err error, target **exitCodeError) bool {
	if e, ok := err.(*exitCodeError); ok {
		*target = e
		return true
	}
	return false
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, grounded on
// cmd/hector/main.go's ServeCmd.Run shutdown handling.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}
