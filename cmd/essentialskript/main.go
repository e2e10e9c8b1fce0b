// Command essentialskript serves the Essential Skript example extension over
// stdin and stdout to a host that started it as a child process, or over the
// Unix socket named by ESSENTIALSKRIPT_SOCKET.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mcengine/essentialskript/extension/essentialskript"
	"github.com/mcengine/essentialskript/lib/plugin"
)

const (
	logLevelEnv = "ESSENTIALSKRIPT_LOG_LEVEL"
	socketEnv   = "ESSENTIALSKRIPT_SOCKET"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := zap.NewProductionConfig()
	// stdout carries the protocol
	cfg.OutputPaths = []string{"stderr"}
	if lvl := os.Getenv(logLevelEnv); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", logLevelEnv, err)
		}
		cfg.Level = level
	}

	log, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *plugin.Module
	if socket := os.Getenv(socketEnv); socket != "" {
		conn, err := plugin.DialUnix(ctx, socket)
		if err != nil {
			return err
		}
		defer conn.Close()
		m = plugin.New(conn, conn, plugin.WithLogger(log))
	} else {
		m = plugin.NewStd(plugin.WithLogger(log))
	}
	if err := plugin.Serve(ctx, m, essentialskript.New()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
