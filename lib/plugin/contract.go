// Package plugin defines the contract between a game server host and its
// extensions, and carries that contract across a process boundary.
//
// An Extension only ever sees a Host. In-process hosts implement Host
// directly; out-of-process extensions are driven by a Loader on the host side
// and served by a Module inside the extension binary.
package plugin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRegistrationUnavailable is returned by a Host that cannot register
// commands or listeners for the calling extension.
var ErrRegistrationUnavailable = errors.New("plugin: registration capability unavailable")

// CommandSender is anything a command can be executed by.
type CommandSender interface {
	Name() string
	SendMessage(msg string)
}

// Player is a connected player.
type Player interface {
	CommandSender
	UniqueID() uuid.UUID
}

// EventType names a player lifecycle event an extension can listen to.
type EventType string

const (
	EventPlayerJoin EventType = "player_join"
	EventPlayerQuit EventType = "player_quit"
)

type PlayerJoinEvent struct {
	Player Player
}

type PlayerQuitEvent struct {
	Player Player
}

// Listener receives player lifecycle events. The host never invokes a
// listener concurrently with another hook.
type Listener interface {
	OnPlayerJoin(ctx context.Context, e *PlayerJoinEvent)
	OnPlayerQuit(ctx context.Context, e *PlayerQuitEvent)
}

// CommandExecutor runs a command. It reports whether the command was handled.
type CommandExecutor interface {
	Execute(ctx context.Context, sender CommandSender, label string, args []string) bool
}

// TabCompleter suggests values for the last argument in args.
type TabCompleter interface {
	Complete(ctx context.Context, sender CommandSender, alias string, args []string) []string
}

// CommandExecutorFunc is a convenience type for converting functions to CommandExecutor
type CommandExecutorFunc func(ctx context.Context, sender CommandSender, label string, args []string) bool

// Execute implements CommandExecutor interface
func (f CommandExecutorFunc) Execute(ctx context.Context, sender CommandSender, label string, args []string) bool {
	return f(ctx, sender, label, args)
}

// TabCompleterFunc is a convenience type for converting functions to TabCompleter
type TabCompleterFunc func(ctx context.Context, sender CommandSender, alias string, args []string) []string

// Complete implements TabCompleter interface
func (f TabCompleterFunc) Complete(ctx context.Context, sender CommandSender, alias string, args []string) []string {
	return f(ctx, sender, alias, args)
}

// Command is a chat command as registered with the host.
type Command struct {
	Name        string
	Description string
	Usage       string

	Executor  CommandExecutor
	Completer TabCompleter // optional
}

// Host is the handle an extension receives on load. It is the only way an
// extension reaches the server.
type Host interface {
	// Name is the hosting plugin's name; extensions use its lower-cased form
	// as their command namespace.
	Name() string
	Logger() *zap.Logger
	RegisterCommand(ctx context.Context, namespace string, cmd *Command) error
	RegisterListener(ctx context.Context, l Listener) error
}

// Extension is the lifecycle an extension module implements.
type Extension interface {
	// OnLoad is called once when the extension is activated. Failures are the
	// extension's to log; they never propagate to the host.
	OnLoad(ctx context.Context, host Host)
	// OnUnload is called once when the extension is deactivated.
	OnUnload(ctx context.Context, host Host)
	SetID(id string)
	ID() string
}
