package essentialskript

import (
	"context"
	"fmt"

	"github.com/mcengine/essentialskript/lib/plugin"
)

type listener struct {
	logger *plugin.ExtensionLogger
}

func (l *listener) OnPlayerJoin(_ context.Context, e *plugin.PlayerJoinEvent) {
	e.Player.SendMessage(fmt.Sprintf("§b[Skript][essential-skript-example] Hello %s, enjoy your time!", e.Player.Name()))
}

func (l *listener) OnPlayerQuit(_ context.Context, e *plugin.PlayerQuitEvent) {
	l.logger.Info(e.Player.Name() + " has left the server.")
}
