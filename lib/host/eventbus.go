package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/mcengine/essentialskript/lib/plugin"
)

type subscription struct {
	owner    string
	listener plugin.Listener
}

// EventBus delivers player events to listeners one at a time, in
// subscription order.
type EventBus struct {
	Log logr.Logger

	fire sync.Mutex

	mu   sync.RWMutex
	subs []subscription
}

func NewEventBus(log logr.Logger) *EventBus {
	return &EventBus{Log: log}
}

func (b *EventBus) Subscribe(owner string, l plugin.Listener) error {
	if l == nil {
		return errors.New("listener is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{owner: owner, listener: l})
	return nil
}

// Unsubscribe drops every listener of owner and returns how many were dropped.
func (b *EventBus) Unsubscribe(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.owner != owner {
			kept = append(kept, s)
		}
	}
	removed := len(b.subs) - len(kept)
	clear(b.subs[len(kept):])
	b.subs = kept
	return removed
}

func (b *EventBus) snapshot() []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]subscription(nil), b.subs...)
}

func (b *EventBus) FirePlayerJoin(ctx context.Context, p plugin.Player) {
	e := &plugin.PlayerJoinEvent{Player: p}
	b.dispatch(plugin.EventPlayerJoin, func(l plugin.Listener) { l.OnPlayerJoin(ctx, e) })
}

func (b *EventBus) FirePlayerQuit(ctx context.Context, p plugin.Player) {
	e := &plugin.PlayerQuitEvent{Player: p}
	b.dispatch(plugin.EventPlayerQuit, func(l plugin.Listener) { l.OnPlayerQuit(ctx, e) })
}

func (b *EventBus) dispatch(event plugin.EventType, call func(plugin.Listener)) {
	b.fire.Lock()
	defer b.fire.Unlock()

	for _, s := range b.snapshot() {
		b.invoke(event, s, call)
	}
}

func (b *EventBus) invoke(event plugin.EventType, s subscription, call func(plugin.Listener)) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error(fmt.Errorf("%v", r), "listener panicked", "event", string(event), "owner", s.owner)
		}
	}()
	call(s.listener)
}
