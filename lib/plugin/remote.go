package plugin

import (
	"context"
)

// remoteCommand executes and completes a command registered by an extension
// in another process. Messages the extension sends are delivered to the real
// sender once the call returns.
type remoteCommand struct {
	loader *Loader
	name   string
}

func (c *remoteCommand) Execute(ctx context.Context, sender CommandSender, label string, args []string) bool {
	outcome, err := NewBinaryLoaderAdapter[Invocation, Outcome](c.loader).Call(ctx, MethodCommandExecute, Invocation{
		Command: c.name,
		Sender:  sender.Name(),
		Label:   label,
		Args:    args,
	})
	if err != nil {
		c.loader.Log.Error(err, "remote command failed", "command", c.name)
		return false
	}

	for _, msg := range outcome.Messages {
		sender.SendMessage(msg)
	}
	return outcome.Handled
}

func (c *remoteCommand) Complete(ctx context.Context, sender CommandSender, alias string, args []string) []string {
	completion, err := NewBinaryLoaderAdapter[Invocation, Completion](c.loader).Call(ctx, MethodCommandComplete, Invocation{
		Command: c.name,
		Sender:  sender.Name(),
		Label:   alias,
		Args:    args,
	})
	if err != nil {
		c.loader.Log.Error(err, "remote completion failed", "command", c.name)
		return []string{}
	}
	return completion
}

// remoteListener forwards player events to one listener registration of an
// extension in another process.
type remoteListener struct {
	loader *Loader
	id     string
}

func (r *remoteListener) OnPlayerJoin(ctx context.Context, e *PlayerJoinEvent) {
	r.forward(ctx, MethodPlayerJoin, e.Player)
}

func (r *remoteListener) OnPlayerQuit(ctx context.Context, e *PlayerQuitEvent) {
	r.forward(ctx, MethodPlayerQuit, e.Player)
}

func (r *remoteListener) forward(ctx context.Context, method string, p Player) {
	outcome, err := NewBinaryLoaderAdapter[PlayerRef, Outcome](r.loader).Call(ctx, method, PlayerRef{
		Listener: r.id,
		Name:     p.Name(),
		UUID:     p.UniqueID(),
	})
	if err != nil {
		r.loader.Log.Error(err, "remote listener failed", "event", method, "listener", r.id)
		return
	}

	for _, msg := range outcome.Messages {
		p.SendMessage(msg)
	}
}
