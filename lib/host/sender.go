package host

import (
	"crypto/md5"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ConsoleName is the name commands see when run from the console.
const ConsoleName = "CONSOLE"

// console output is shared by every sender writing to it.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *output) println(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.w, line)
}

// ConsoleSender prints messages with colour codes removed.
type ConsoleSender struct {
	out *output
}

func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{out: &output{w: w}}
}

func (c *ConsoleSender) Name() string { return ConsoleName }

func (c *ConsoleSender) SendMessage(msg string) {
	c.out.println(StripColor(msg))
}

// Player is a connected player whose chat is printed to a writer.
type Player struct {
	name string
	id   uuid.UUID
	out  *output
}

// NewPlayer creates a player with its offline-mode id.
func NewPlayer(name string, w io.Writer) *Player {
	return &Player{name: name, id: OfflinePlayerID(name), out: &output{w: w}}
}

func (p *Player) Name() string        { return p.name }
func (p *Player) UniqueID() uuid.UUID { return p.id }

func (p *Player) SendMessage(msg string) {
	p.out.println("[" + p.name + "] " + StripColor(msg))
}

// OfflinePlayerID derives the id an offline-mode server gives a player: a
// version 3 UUID over "OfflinePlayer:<name>" without a namespace.
func OfflinePlayerID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}

// StripColor removes "§x" formatting codes.
func StripColor(msg string) string {
	if !strings.ContainsRune(msg, '§') {
		return msg
	}

	var b strings.Builder
	b.Grow(len(msg))
	skip := false
	for _, r := range msg {
		switch {
		case skip:
			skip = false
		case r == '§':
			skip = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
