package host_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcengine/essentialskript/lib/host"
	"github.com/mcengine/essentialskript/lib/plugin"
	"github.com/mcengine/essentialskript/lib/plugintest"
)

type recordingListener struct {
	tag   string
	calls *[]string
	panic bool
}

func (l *recordingListener) OnPlayerJoin(_ context.Context, e *plugin.PlayerJoinEvent) {
	*l.calls = append(*l.calls, l.tag+" join "+e.Player.Name())
	if l.panic {
		panic("boom")
	}
}

func (l *recordingListener) OnPlayerQuit(_ context.Context, e *plugin.PlayerQuitEvent) {
	*l.calls = append(*l.calls, l.tag+" quit "+e.Player.Name())
}

func TestEventBus_OrderAndUnsubscribe(t *testing.T) {
	bus := host.NewEventBus(logr.Discard())
	var calls []string

	require.NoError(t, bus.Subscribe("a", &recordingListener{tag: "a1", calls: &calls, panic: true}))
	require.NoError(t, bus.Subscribe("b", &recordingListener{tag: "b1", calls: &calls}))
	require.NoError(t, bus.Subscribe("a", &recordingListener{tag: "a2", calls: &calls}))
	assert.Error(t, bus.Subscribe("a", nil))

	steve := plugintest.NewPlayer("Steve")
	bus.FirePlayerJoin(context.Background(), steve)
	assert.Equal(t, []string{"a1 join Steve", "b1 join Steve", "a2 join Steve"}, calls)

	assert.Equal(t, 2, bus.Unsubscribe("a"))
	calls = nil
	bus.FirePlayerQuit(context.Background(), steve)
	assert.Equal(t, []string{"b1 quit Steve"}, calls)
}
