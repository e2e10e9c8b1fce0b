package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mcengine/essentialskript/extension/essentialskript"
	"github.com/mcengine/essentialskript/lib/host"
)

func newEmbeddedRuntime(t *testing.T) (*host.Runtime, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	rt := host.New("MCEngineEssential", zap.New(core))
	require.NoError(t, rt.Load(context.Background(), "essential", essentialskript.New()))
	t.Cleanup(func() { rt.Close(context.Background()) })
	return rt, logs
}

func TestConsole_Session(t *testing.T) {
	rt, logs := newEmbeddedRuntime(t)

	input := strings.Join([]string{
		"/essentialskriptexample",
		"tab essentialskriptexample ",
		"tab essentialskriptexample start ",
		"join Steve",
		"join Steve",
		"/nope",
		"quit Steve",
		"quit Steve",
		"stop",
		"/essentialskriptexample",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, newConsole(rt, strings.NewReader(input), &out).run(context.Background()))

	assert.Equal(t, []string{
		"EssentialSkript example command executed!",
		"start, stop, status",
		"(no suggestions)",
		"[Steve] [Skript][essential-skript-example] Hello Steve, enjoy your time!",
		"Steve is already online.",
		`Unknown command. Type "list" for registered commands.`,
		`"Steve" is not online.`,
	}, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))
	assert.Equal(t, 1, logs.FilterMessage("Steve has left the server.").Len())
}

func TestConsole_DisconnectsPlayersAtEndOfInput(t *testing.T) {
	rt, logs := newEmbeddedRuntime(t)

	var out bytes.Buffer
	require.NoError(t, newConsole(rt, strings.NewReader("join Alex\njoin Steve\n"), &out).run(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("Alex has left the server.").Len())
	assert.Equal(t, 1, logs.FilterMessage("Steve has left the server.").Len())
}

func TestLoadConfig_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "MCEngineEssential", cfg.Name)
	assert.Equal(t, modeEmbedded, cfg.Mode)
	assert.Equal(t, "essential-skript-example", cfg.Extension.Name)
	assert.Equal(t, 5*time.Second, cfg.Extension.ReadyTimeout)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, written)
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("mode: process\nextension:\n  path: /opt/essentialskript\n  shutdown_timeout: 500ms\n"), 0644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, modeProcess, cfg.Mode)
	assert.Equal(t, "/opt/essentialskript", cfg.Extension.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Extension.ShutdownTimeout)
	assert.Equal(t, "essential-skript-example", cfg.Extension.Name)
	assert.Equal(t, "MCEngineEssential", cfg.Name)
}

func TestLoadConfig_SocketModeNeedsSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("mode: socket\nextension:\n  socket: \"\"\n"), 0644))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "extension.socket is required")
}

func TestLoadConfig_RejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("mode: remote\n"), 0644))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, `unknown mode "remote"`)
}

func TestRootCmd_EmbeddedSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path})
	cmd.SetIn(strings.NewReader("/MCEngineEssential:essentialskriptexample\nstop\n"))
	cmd.SetOut(&out)

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "EssentialSkript example command executed!\n", out.String())
}
