// Package multiplexer frames whole messages over a byte stream so that
// requests and responses travelling in the same direction can be correlated
// by sequence number.
package multiplexer

import (
	"context"
	"io"
)

// Multiplexer provides a unified interface for message multiplexing
type Multiplexer interface {
	// WriteMessage sends a message with automatic sequence numbering
	WriteMessage(ctx context.Context, data []byte) error

	// WriteMessageWithSequence sends a message with a specific sequence number
	WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error

	// ReadMessage reads messages and returns a channel
	ReadMessage(ctx context.Context) (chan *Message, error)

	// Close cleanly shuts down the multiplexer
	Close() error

	// GetPendingMessageCount returns the number of pending messages
	GetPendingMessageCount() int
}

var _ Multiplexer = (*Node)(nil)

// New creates a multiplexer reading from reader and writing to writer.
func New(reader io.Reader, writer io.Writer) Multiplexer {
	return NewNode(reader, writer)
}
