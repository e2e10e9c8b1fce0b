// Package host is a small in-memory game server host: a command map, an
// event bus and a runtime that loads extensions in-process or as child
// processes.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/mcengine/essentialskript/lib/plugin"
)

// ErrUnknownCommand is returned by Dispatch for labels nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

type commandEntry struct {
	owner     string
	namespace string
	cmd       *plugin.Command
}

// CommandMap resolves labels to commands. Every command is reachable as
// "namespace:name"; the bare name goes to whoever registered it first.
type CommandMap struct {
	Log logr.Logger

	mu    sync.RWMutex
	known map[string]*commandEntry
}

func NewCommandMap(log logr.Logger) *CommandMap {
	return &CommandMap{
		Log:   log,
		known: make(map[string]*commandEntry),
	}
}

// Register adds cmd for owner under namespace.
func (m *CommandMap) Register(owner, namespace string, cmd *plugin.Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Executor == nil {
		return errors.New("command needs a name and an executor")
	}
	if namespace == "" {
		return errors.New("command namespace is empty")
	}
	if strings.ContainsAny(cmd.Name, " :") {
		return fmt.Errorf("invalid command name %q", cmd.Name)
	}

	name := strings.ToLower(cmd.Name)
	fallback := strings.ToLower(namespace) + ":" + name

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.known[fallback]; taken {
		return fmt.Errorf("command %s already registered", fallback)
	}

	entry := &commandEntry{owner: owner, namespace: strings.ToLower(namespace), cmd: cmd}
	m.known[fallback] = entry

	if existing, taken := m.known[name]; taken {
		m.Log.Info("label already taken, command only reachable by its namespaced label",
			"label", name, "fallback", fallback, "holder", existing.owner)
		return nil
	}
	m.known[name] = entry

	m.Log.V(1).Info("command registered", "owner", owner, "label", name, "fallback", fallback)
	return nil
}

// UnregisterOwner removes every label pointing at a command of owner and
// returns how many labels were removed.
func (m *CommandMap) UnregisterOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for label, entry := range m.known {
		if entry.owner == owner {
			delete(m.known, label)
			removed++
		}
	}
	return removed
}

func (m *CommandMap) Lookup(label string) (*plugin.Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.known[strings.ToLower(label)]
	if !ok {
		return nil, false
	}
	return entry.cmd, true
}

// Labels returns every registered label in sorted order.
func (m *CommandMap) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make([]string, 0, len(m.known))
	for label := range m.known {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Dispatch runs a command line such as "/essentialskriptexample start".
// When the executor reports the command as not handled, its usage is sent
// to the sender.
func (m *CommandMap) Dispatch(ctx context.Context, sender plugin.CommandSender, line string) (bool, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return false, nil
	}

	label := fields[0]
	cmd, ok := m.Lookup(label)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, label)
	}

	handled := cmd.Executor.Execute(ctx, sender, label, fields[1:])
	if !handled && cmd.Usage != "" {
		sender.SendMessage(cmd.Usage)
	}
	return handled, nil
}

// TabComplete returns suggestions for the last token of line. The first
// token completes against command labels; later tokens go to the command's
// completer. A trailing space starts a new, empty token.
func (m *CommandMap) TabComplete(ctx context.Context, sender plugin.CommandSender, line string) []string {
	line = strings.TrimPrefix(strings.TrimLeft(line, " "), "/")

	args := strings.Fields(line)
	if len(args) == 0 || strings.HasSuffix(line, " ") {
		args = append(args, "")
	}

	if len(args) == 1 {
		prefix := strings.ToLower(args[0])
		matches := []string{}
		for _, label := range m.Labels() {
			if strings.HasPrefix(label, prefix) {
				matches = append(matches, label)
			}
		}
		return matches
	}

	cmd, ok := m.Lookup(args[0])
	if !ok || cmd.Completer == nil {
		return []string{}
	}

	suggestions := cmd.Completer.Complete(ctx, sender, args[0], args[1:])
	if suggestions == nil {
		return []string{}
	}
	return suggestions
}
