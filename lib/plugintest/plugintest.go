// Package plugintest provides in-memory doubles of the plugin contract for
// tests.
package plugintest

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcengine/essentialskript/lib/plugin"
)

// Registration is a command recorded by Host.
type Registration struct {
	Namespace string
	Command   *plugin.Command
}

// Host records what an extension registers. Setting RegisterCommandErr or
// RegisterListenerErr makes the matching call fail; setting PanicOnRegister
// makes RegisterListener panic.
type Host struct {
	HostName string
	Log      *zap.Logger

	RegisterCommandErr  error
	RegisterListenerErr error
	PanicOnRegister     any

	mu        sync.Mutex
	commands  []Registration
	listeners []plugin.Listener
}

var _ plugin.Host = (*Host)(nil)

func NewHost(name string, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{HostName: name, Log: log}
}

func (h *Host) Name() string        { return h.HostName }
func (h *Host) Logger() *zap.Logger { return h.Log }

func (h *Host) RegisterCommand(_ context.Context, namespace string, cmd *plugin.Command) error {
	if h.RegisterCommandErr != nil {
		return h.RegisterCommandErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, Registration{Namespace: namespace, Command: cmd})
	return nil
}

func (h *Host) RegisterListener(_ context.Context, l plugin.Listener) error {
	if h.PanicOnRegister != nil {
		panic(h.PanicOnRegister)
	}
	if h.RegisterListenerErr != nil {
		return h.RegisterListenerErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
	return nil
}

// Commands returns the recorded command registrations in order.
func (h *Host) Commands() []Registration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Registration(nil), h.commands...)
}

// Command finds a recorded command by namespace and name, ignoring case.
func (h *Host) Command(namespace, name string) (*plugin.Command, bool) {
	for _, r := range h.Commands() {
		if strings.EqualFold(r.Namespace, namespace) && strings.EqualFold(r.Command.Name, name) {
			return r.Command, true
		}
	}
	return nil, false
}

// Listeners returns the recorded listeners in order.
func (h *Host) Listeners() []plugin.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]plugin.Listener(nil), h.listeners...)
}

// Sender records the messages sent to it.
type Sender struct {
	SenderName string

	mu       sync.Mutex
	messages []string
}

func NewSender(name string) *Sender {
	return &Sender{SenderName: name}
}

func (s *Sender) Name() string { return s.SenderName }

func (s *Sender) SendMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Sender) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Player is a recording Sender with an identity.
type Player struct {
	Sender
	ID uuid.UUID
}

func NewPlayer(name string) *Player {
	return &Player{Sender: Sender{SenderName: name}, ID: uuid.New()}
}

func (p *Player) UniqueID() uuid.UUID { return p.ID }
