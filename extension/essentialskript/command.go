package essentialskript

import (
	"context"

	"github.com/mcengine/essentialskript/lib/plugin"
)

const executedMessage = "§aEssentialSkript example command executed!"

var subcommands = []string{"start", "stop", "status"}

func execute(_ context.Context, sender plugin.CommandSender, _ string, _ []string) bool {
	sender.SendMessage(executedMessage)
	return true
}

// complete suggests the subcommands for the first argument only.
func complete(_ context.Context, _ plugin.CommandSender, _ string, args []string) []string {
	if len(args) == 1 {
		return append([]string(nil), subcommands...)
	}
	return []string{}
}
