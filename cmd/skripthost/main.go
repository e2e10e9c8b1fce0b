// Command skripthost is a console host for trying the Essential Skript
// example extension without a game server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcengine/essentialskript/extension/essentialskript"
	"github.com/mcengine/essentialskript/lib/host"
	"github.com/mcengine/essentialskript/lib/plugin"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "skripthost",
		Short: "Console host for the Essential Skript example extension",
		Long: `Loads the Essential Skript example extension in-process, as a child
process or over a Unix socket, and reads console input:

  /<command> [args...]   run a command as CONSOLE
  tab <line>             print tab completions for line
  join <name>            connect a player
  quit <name>            disconnect a player
  list                   print registered command labels
  stop                   shut down`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", envString(configPathEnv, "config.yml"), "path to the configuration file")

	return cmd
}

func run(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := host.New(cfg.Name, log)
	if err := loadExtension(ctx, rt, cfg); err != nil {
		log.Error("failed to load extension", zap.Error(err))
		return err
	}

	c := newConsole(rt, in, out)
	runErr := c.run(ctx)

	if err := rt.Close(context.Background()); err != nil {
		log.Warn("shutdown finished with errors", zap.Error(err))
	}
	return runErr
}

func loadExtension(ctx context.Context, rt *host.Runtime, cfg config) error {
	if cfg.Mode == modeEmbedded {
		return rt.Load(ctx, cfg.Extension.Name, essentialskript.New())
	}

	opts := plugin.DefaultLoaderOptions()
	path := cfg.Extension.Path
	switch cfg.Mode {
	case modeSocket:
		path = cfg.Extension.Socket
		opts.Provider = &plugin.UnixSocketProvider{SocketPath: path, AcceptTimeout: cfg.Extension.AcceptTimeout}
	default:
		opts.Provider = &plugin.StdioProvider{Args: cfg.Extension.Args}
	}
	opts.Log = rt.Log.WithName("loader")
	if cfg.Extension.ReadyTimeout > 0 {
		opts.ReadyTimeout = cfg.Extension.ReadyTimeout
	}
	if cfg.Extension.ShutdownTimeout > 0 {
		opts.ShutdownTimeout = cfg.Extension.ShutdownTimeout
	}

	return rt.LoadProcess(ctx, cfg.Extension.Name, path, opts)
}
