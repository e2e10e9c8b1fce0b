// Package essentialskript is an example Skript extension. It registers the
// essentialskriptexample command with tab completion and greets joining
// players.
package essentialskript

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mcengine/essentialskript/lib/plugin"
)

const (
	// ID is the fixed identity of the extension. Ids assigned by the host are ignored.
	ID = "mcengine-essential-skript-example"

	CommandName        = "essentialskriptexample"
	CommandDescription = "Essential Skript example command."
	CommandUsage       = "/essentialskriptexample"

	loggerKind = "Skript"
	loggerName = "EssentialExampleSkript"
)

// Extension implements plugin.Extension.
type Extension struct {
	mu     sync.Mutex
	id     string
	logger *plugin.ExtensionLogger
}

var _ plugin.Extension = (*Extension)(nil)

// New returns the extension with its fixed ID.
func New() *Extension {
	return &Extension{id: ID}
}

// OnLoad registers the listener and then the command under the host's
// lower-cased name. Registration failures are logged and leave the extension
// loaded without them.
func (e *Extension) OnLoad(ctx context.Context, host plugin.Host) {
	logger := plugin.NewExtensionLogger(host.Logger(), loggerKind, loggerName)

	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()

	if err := e.register(ctx, host, logger); err != nil {
		logger.Warning("Failed to initialize ExampleEssentialSkript: " + err.Error())
		return
	}

	logger.Info("Enabled successfully.")
}

func (e *Extension) register(ctx context.Context, host plugin.Host, logger *plugin.ExtensionLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	if err := host.RegisterListener(ctx, &listener{logger: logger}); err != nil {
		return err
	}

	ns := namespace(host.Name())
	if err := host.RegisterCommand(ctx, ns, &plugin.Command{
		Name:        CommandName,
		Description: CommandDescription,
		Usage:       CommandUsage,
		Executor:    plugin.CommandExecutorFunc(execute),
		Completer:   plugin.TabCompleterFunc(complete),
	}); err != nil {
		return err
	}

	logger.Debug("Registered command.", zap.String("namespace", ns), zap.String("command", CommandName))
	return nil
}

// OnUnload logs that the extension was disabled.
func (e *Extension) OnUnload(_ context.Context, _ plugin.Host) {
	e.mu.Lock()
	logger := e.logger
	e.mu.Unlock()

	if logger != nil {
		logger.Info("Disabled.")
	}
}

// SetID keeps the fixed ID whatever the host assigns.
func (e *Extension) SetID(string) {
	e.mu.Lock()
	e.id = ID
	e.mu.Unlock()
}

// ID returns the extension's identity.
func (e *Extension) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// namespace lower-cases the host name the way the server lower-cases plugin
// names for fallback command prefixes.
func namespace(hostName string) string {
	return cases.Lower(language.English).String(hostName)
}
