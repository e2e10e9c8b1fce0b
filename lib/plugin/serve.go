package plugin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Serve exposes ext through m and listens until the host shuts the module
// down. Registrations the extension makes during OnLoad are forwarded to the
// host; commands and events the host forwards back are dispatched locally.
func Serve(ctx context.Context, m *Module, ext Extension) error {
	b := newBinding(m, ext)

	RegisterHandler(m, MethodLoad, NewBinaryHandlerAdapter[LoadInfo](MethodLoad, b.load).ToPluginHandler())
	RegisterHandler(m, MethodUnload, NewBinaryHandlerAdapter[LoadInfo](MethodUnload, b.unload).ToPluginHandler())
	RegisterHandler(m, MethodCommandExecute, NewBinaryHandlerAdapter[Invocation](MethodCommandExecute, b.execute).ToPluginHandler())
	RegisterHandler(m, MethodCommandComplete, NewBinaryHandlerAdapter[Invocation](MethodCommandComplete, b.complete).ToPluginHandler())
	RegisterHandler(m, MethodPlayerJoin, NewBinaryHandlerAdapter[PlayerRef](MethodPlayerJoin, b.playerJoin).ToPluginHandler())
	RegisterHandler(m, MethodPlayerQuit, NewBinaryHandlerAdapter[PlayerRef](MethodPlayerQuit, b.playerQuit).ToPluginHandler())

	return m.Listen(ctx)
}

// binding is the Host an extension sees inside the module process.
type binding struct {
	module *Module
	ext    Extension

	mu        sync.RWMutex
	hostName  string
	loaded    bool
	commands  map[string]*Command
	listeners map[string]Listener
	nextID    int
}

func newBinding(m *Module, ext Extension) *binding {
	return &binding{
		module:    m,
		ext:       ext,
		commands:  make(map[string]*Command),
		listeners: make(map[string]Listener),
	}
}

func (b *binding) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hostName
}

func (b *binding) Logger() *zap.Logger {
	return b.module.log
}

func (b *binding) RegisterCommand(ctx context.Context, namespace string, cmd *Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Executor == nil {
		return errors.New("command needs a name and an executor")
	}

	key := strings.ToLower(cmd.Name)
	b.mu.Lock()
	b.commands[key] = cmd
	b.mu.Unlock()

	payload, err := CommandSpec{
		Namespace:   namespace,
		Name:        cmd.Name,
		Description: cmd.Description,
		Usage:       cmd.Usage,
	}.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := b.module.SendRequest(ctx, MethodRegisterCommand, payload); err != nil {
		b.mu.Lock()
		delete(b.commands, key)
		b.mu.Unlock()
		return fmt.Errorf("register command %s: %w", cmd.Name, err)
	}
	return nil
}

func (b *binding) RegisterListener(ctx context.Context, l Listener) error {
	if l == nil {
		return errors.New("listener is nil")
	}

	b.mu.Lock()
	b.nextID++
	id := "listener-" + strconv.Itoa(b.nextID)
	b.listeners[id] = l
	b.mu.Unlock()

	if _, err := b.module.SendRequest(ctx, MethodRegisterListener, []byte(id)); err != nil {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
		return fmt.Errorf("register listener: %w", err)
	}
	return nil
}

func (b *binding) load(ctx context.Context, info LoadInfo) (LoadInfo, error) {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		return LoadInfo{}, errors.New("extension already loaded")
	}
	b.loaded = true
	b.hostName = info.HostName
	b.mu.Unlock()

	b.ext.SetID(info.ExtensionID)
	b.ext.OnLoad(ctx, b)

	return LoadInfo{HostName: info.HostName, ExtensionID: b.ext.ID()}, nil
}

func (b *binding) unload(ctx context.Context, info LoadInfo) (Outcome, error) {
	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return Outcome{}, errors.New("extension not loaded")
	}
	b.loaded = false
	b.mu.Unlock()

	b.ext.OnUnload(ctx, b)
	return Outcome{Handled: true}, nil
}

func (b *binding) command(name string) (*Command, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cmd, ok := b.commands[strings.ToLower(name)]
	return cmd, ok
}

func (b *binding) listener(id string) (Listener, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.listeners[id]
	return l, ok
}

func (b *binding) execute(ctx context.Context, inv Invocation) (Outcome, error) {
	cmd, ok := b.command(inv.Command)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown command %q", inv.Command)
	}

	sender := &bufferedSender{name: inv.Sender}
	handled := cmd.Executor.Execute(ctx, sender, inv.Label, inv.Args)
	return Outcome{Handled: handled, Messages: sender.drain()}, nil
}

func (b *binding) complete(ctx context.Context, inv Invocation) (Completion, error) {
	cmd, ok := b.command(inv.Command)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", inv.Command)
	}
	if cmd.Completer == nil {
		return Completion{}, nil
	}

	sender := &bufferedSender{name: inv.Sender}
	return Completion(cmd.Completer.Complete(ctx, sender, inv.Label, inv.Args)), nil
}

func (b *binding) playerJoin(ctx context.Context, ref PlayerRef) (Outcome, error) {
	l, ok := b.listener(ref.Listener)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown listener %q", ref.Listener)
	}

	p := &bufferedPlayer{bufferedSender: bufferedSender{name: ref.Name}, id: ref.UUID}
	l.OnPlayerJoin(ctx, &PlayerJoinEvent{Player: p})
	return Outcome{Handled: true, Messages: p.drain()}, nil
}

func (b *binding) playerQuit(ctx context.Context, ref PlayerRef) (Outcome, error) {
	l, ok := b.listener(ref.Listener)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown listener %q", ref.Listener)
	}

	p := &bufferedPlayer{bufferedSender: bufferedSender{name: ref.Name}, id: ref.UUID}
	l.OnPlayerQuit(ctx, &PlayerQuitEvent{Player: p})
	return Outcome{Handled: true, Messages: p.drain()}, nil
}

// bufferedSender collects the messages a hook sends so they can be delivered
// by the host once the call returns.
type bufferedSender struct {
	name string

	mu       sync.Mutex
	messages []string
}

func (s *bufferedSender) Name() string { return s.name }

func (s *bufferedSender) SendMessage(msg string) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *bufferedSender) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	return out
}

type bufferedPlayer struct {
	bufferedSender
	id uuid.UUID
}

func (p *bufferedPlayer) UniqueID() uuid.UUID { return p.id }
