package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcengine/essentialskript/lib/plugin"
)

// Runtime owns the command map and event bus and the extensions loaded
// against them. Hooks (loading, commands, completions, events) run one at a
// time.
type Runtime struct {
	Log logr.Logger

	name     string
	zap      *zap.Logger
	commands *CommandMap
	events   *EventBus

	hooks sync.Mutex

	mu       sync.Mutex
	sessions map[string]*session
	order    []string
	closed   bool
}

type session struct {
	id     uuid.UUID
	handle *handle
	ext    plugin.Extension
	loader *plugin.Loader
}

// New creates a runtime for the hosting plugin called name.
func New(name string, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	lr := zapr.NewLogger(log).WithName("host")

	return &Runtime{
		Log:      lr,
		name:     name,
		zap:      log,
		commands: NewCommandMap(lr.WithName("commands")),
		events:   NewEventBus(lr.WithName("events")),
		sessions: make(map[string]*session),
	}
}

func (r *Runtime) Name() string          { return r.name }
func (r *Runtime) Commands() *CommandMap { return r.commands }
func (r *Runtime) Events() *EventBus     { return r.events }

// Load runs ext in this process under the id name.
func (r *Runtime) Load(ctx context.Context, name string, ext plugin.Extension) error {
	if ext == nil {
		return errors.New("extension is nil")
	}

	r.hooks.Lock()
	defer r.hooks.Unlock()

	s, err := r.reserve(name)
	if err != nil {
		return err
	}
	s.ext = ext

	ext.SetID(name)
	ext.OnLoad(ctx, s.handle)

	r.commit(name)
	r.Log.Info("extension loaded", "name", name, "id", ext.ID(), "session", s.id.String())
	return nil
}

// LoadProcess runs the extension binary at path as a child process under
// the id name. A nil opts uses stdio with the runtime's logger.
func (r *Runtime) LoadProcess(ctx context.Context, name, path string, opts *plugin.LoaderOptions) error {
	if opts == nil {
		opts = plugin.DefaultLoaderOptions()
		opts.Log = r.Log.WithName("loader")
	}

	r.hooks.Lock()
	defer r.hooks.Unlock()

	s, err := r.reserve(name)
	if err != nil {
		return err
	}

	loader := plugin.NewLoader(path, name, "", opts)
	if err := loader.Load(ctx, s.handle); err != nil {
		r.release(name, s)
		return fmt.Errorf("load %s: %w", name, err)
	}
	s.loader = loader

	r.commit(name)
	r.Log.Info("extension process loaded", "name", name, "id", loader.ExtensionID(), "path", path, "session", s.id.String())
	return nil
}

// reserve creates the session for name; its handle accepts registrations
// before the session is committed.
func (r *Runtime) reserve(name string) (*session, error) {
	if name == "" {
		return nil, errors.New("extension name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("runtime is closed")
	}
	if _, exists := r.sessions[name]; exists {
		return nil, fmt.Errorf("extension %s already loaded", name)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	s := &session{id: id, handle: &handle{rt: r, owner: name}}
	r.sessions[name] = s
	return s, nil
}

func (r *Runtime) commit(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

// release drops a session that failed to load along with anything it registered.
func (r *Runtime) release(name string, s *session) {
	s.handle.closed.Store(true)

	r.mu.Lock()
	delete(r.sessions, name)
	r.mu.Unlock()

	r.commands.UnregisterOwner(name)
	r.events.Unsubscribe(name)
}

// Unload deactivates the extension name and removes its commands and listeners.
func (r *Runtime) Unload(ctx context.Context, name string) error {
	r.hooks.Lock()
	defer r.hooks.Unlock()

	return r.unload(ctx, name)
}

func (r *Runtime) unload(ctx context.Context, name string) error {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("extension %s is not loaded", name)
	}

	var err error
	if s.loader != nil {
		err = s.loader.Close()
	} else {
		s.ext.OnUnload(ctx, s.handle)
	}

	r.release(name, s)
	r.Log.Info("extension unloaded", "name", name, "session", s.id.String())
	return err
}

// Close unloads every extension, newest first.
func (r *Runtime) Close(ctx context.Context) error {
	r.hooks.Lock()
	defer r.hooks.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	names := append([]string(nil), r.order...)
	r.mu.Unlock()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := r.unload(ctx, names[i]); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Loaded returns the names of the loaded extensions in load order.
func (r *Runtime) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *Runtime) Dispatch(ctx context.Context, sender plugin.CommandSender, line string) (bool, error) {
	r.hooks.Lock()
	defer r.hooks.Unlock()
	return r.commands.Dispatch(ctx, sender, line)
}

func (r *Runtime) TabComplete(ctx context.Context, sender plugin.CommandSender, line string) []string {
	r.hooks.Lock()
	defer r.hooks.Unlock()
	return r.commands.TabComplete(ctx, sender, line)
}

func (r *Runtime) Join(ctx context.Context, p plugin.Player) {
	r.hooks.Lock()
	defer r.hooks.Unlock()
	r.events.FirePlayerJoin(ctx, p)
}

func (r *Runtime) Quit(ctx context.Context, p plugin.Player) {
	r.hooks.Lock()
	defer r.hooks.Unlock()
	r.events.FirePlayerQuit(ctx, p)
}

// handle is the plugin.Host one extension sees. It stops accepting
// registrations once the extension is unloaded.
type handle struct {
	rt     *Runtime
	owner  string
	closed atomic.Bool
}

func (h *handle) Name() string        { return h.rt.name }
func (h *handle) Logger() *zap.Logger { return h.rt.zap }

func (h *handle) RegisterCommand(_ context.Context, namespace string, cmd *plugin.Command) error {
	if h.closed.Load() {
		return fmt.Errorf("%w: extension %s is unloaded", plugin.ErrRegistrationUnavailable, h.owner)
	}
	return h.rt.commands.Register(h.owner, namespace, cmd)
}

func (h *handle) RegisterListener(_ context.Context, l plugin.Listener) error {
	if h.closed.Load() {
		return fmt.Errorf("%w: extension %s is unloaded", plugin.ErrRegistrationUnavailable, h.owner)
	}
	return h.rt.events.Subscribe(h.owner, l)
}
