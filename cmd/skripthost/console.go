package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mcengine/essentialskript/lib/host"
)

// console reads commands line by line and plays them against the runtime.
type console struct {
	rt      *host.Runtime
	in      io.Reader
	out     io.Writer
	sender  *host.ConsoleSender
	players map[string]*host.Player
}

func newConsole(rt *host.Runtime, in io.Reader, out io.Writer) *console {
	return &console{
		rt:      rt,
		in:      in,
		out:     out,
		sender:  host.NewConsoleSender(out),
		players: make(map[string]*host.Player),
	}
}

// run processes input until "stop", end of input or ctx is done. Players
// still online are disconnected before it returns.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer c.disconnectAll(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if c.execute(ctx, line) {
				return nil
			}
		}
	}
}

// execute handles one console line and reports whether the host should stop.
func (c *console) execute(ctx context.Context, line string) bool {
	line = strings.TrimRight(strings.TrimLeft(line, " \t"), "\r\n")
	if strings.HasPrefix(line, "/") {
		c.dispatch(ctx, line)
		return false
	}

	word, rest, _ := strings.Cut(line, " ")
	switch word {
	case "":
	case "stop":
		return true
	case "tab":
		suggestions := c.rt.TabComplete(ctx, c.sender, rest)
		if len(suggestions) == 0 {
			c.println("(no suggestions)")
		} else {
			c.println(strings.Join(suggestions, ", "))
		}
	case "join":
		c.join(ctx, strings.TrimSpace(rest))
	case "quit":
		c.quit(ctx, strings.TrimSpace(rest))
	case "list":
		c.println(strings.Join(c.rt.Commands().Labels(), ", "))
	default:
		c.println(`Unknown console command. Commands start with "/"; also: tab, join, quit, list, stop.`)
	}
	return false
}

func (c *console) dispatch(ctx context.Context, line string) {
	_, err := c.rt.Dispatch(ctx, c.sender, line)
	if errors.Is(err, host.ErrUnknownCommand) {
		c.println(`Unknown command. Type "list" for registered commands.`)
	} else if err != nil {
		c.println("Command failed: " + err.Error())
	}
}

func (c *console) join(ctx context.Context, name string) {
	if name == "" || strings.ContainsRune(name, ' ') {
		c.println("Usage: join <name>")
		return
	}
	if _, online := c.players[name]; online {
		c.println(name + " is already online.")
		return
	}

	p := host.NewPlayer(name, c.out)
	c.players[name] = p
	c.rt.Join(ctx, p)
}

func (c *console) quit(ctx context.Context, name string) {
	p, online := c.players[name]
	if !online {
		c.println(fmt.Sprintf("%q is not online.", name))
		return
	}

	delete(c.players, name)
	c.rt.Quit(ctx, p)
}

func (c *console) disconnectAll(ctx context.Context) {
	names := make([]string, 0, len(c.players))
	for name := range c.players {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c.quit(ctx, name)
	}
}

func (c *console) println(line string) {
	c.sender.SendMessage(line)
}
