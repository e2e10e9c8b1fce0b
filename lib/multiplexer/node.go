package multiplexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// 1 Byte for the message type, 4 Bytes for the frame sequence, and 4 Bytes for the data length
	MessageHeaderSize         = 9
	MessageHeaderTypeStart    = uint8(0x01) // Start of a message
	MessageHeaderTypeEnd      = uint8(0x02) // End of a message
	MessageHeaderTypeData     = uint8(0x03) // Data part of a message
	MessageHeaderTypeError    = uint8(0x04) // Read side failure, Data holds the reason
	MessageHeaderTypeComplete = uint8(0x05) // Complete message (all parts received)
	MessageHeaderTypeAbort    = uint8(0x06) // Abort message
)

const (
	MessageChunkSize = 1024             // Size of each data frame
	MaxMessageSize   = 1024 * 1024 * 10 // 10 MB limit for a single message
)

// Message is a reassembled message, or a read failure when Type is MessageHeaderTypeError.
type Message struct {
	ID   uint32
	Data []byte
	Type uint8
}

// Node frames messages over a reader/writer pair.
type Node struct {
	reader io.Reader
	writer io.Writer

	writerLock sync.Mutex
	readerLock sync.RWMutex

	readBuffer map[uint32]*Message

	sequence atomic.Uint32
}

func NewNode(reader io.Reader, writer io.Writer) *Node {
	return &Node{
		reader:     reader,
		writer:     writer,
		readBuffer: make(map[uint32]*Message),
	}
}

// ReadMessage starts the read loop and returns the channel complete messages are delivered on.
// The channel is closed when the stream ends, a read fails or ctx is done.
func (n *Node) ReadMessage(ctx context.Context) (chan *Message, error) {
	if n.reader == nil {
		return nil, errors.New("reader is nil")
	}

	const defaultMaxBufferLength = 256
	ch := make(chan *Message, defaultMaxBufferLength)

	go func() {
		defer close(ch)

		header := make([]byte, MessageHeaderSize)
		buffer := make([]byte, MessageChunkSize)

		for {
			if ctx.Err() != nil {
				return
			}

			if _, err := io.ReadFull(n.reader, header); err != nil {
				if !errors.Is(err, io.EOF) {
					n.emit(ctx, ch, &Message{Type: MessageHeaderTypeError, Data: []byte(err.Error())})
				}
				return
			}

			msgType := header[0]
			frameID := uint32(header[1])<<24 | uint32(header[2])<<16 | uint32(header[3])<<8 | uint32(header[4])
			dataLength := uint32(header[5])<<24 | uint32(header[6])<<16 | uint32(header[7])<<8 | uint32(header[8])

			switch msgType {
			case MessageHeaderTypeStart:
				if dataLength > MaxMessageSize {
					n.emit(ctx, ch, &Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("data length %d exceeds maximum %d", dataLength, MaxMessageSize))})
					continue
				}

				n.readerLock.Lock()
				if _, exists := n.readBuffer[frameID]; exists {
					n.readerLock.Unlock()
					n.emit(ctx, ch, &Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("frame ID %d already exists", frameID))})
					continue
				}
				n.readBuffer[frameID] = &Message{
					ID:   frameID,
					Type: MessageHeaderTypeStart,
					Data: make([]byte, 0, dataLength),
				}
				n.readerLock.Unlock()

			case MessageHeaderTypeData:
				if dataLength > MessageChunkSize {
					n.emit(ctx, ch, &Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("chunk length %d exceeds %d", dataLength, MessageChunkSize))})
					return
				}
				if _, err := io.ReadFull(n.reader, buffer[:dataLength]); err != nil {
					if !errors.Is(err, io.EOF) {
						n.emit(ctx, ch, &Message{Type: MessageHeaderTypeError, Data: []byte(err.Error())})
					}
					return
				}

				n.readerLock.Lock()
				m, ok := n.readBuffer[frameID]
				if ok && len(m.Data)+int(dataLength) > MaxMessageSize {
					delete(n.readBuffer, frameID)
					ok = false
				}
				if ok {
					m.Data = append(m.Data, buffer[:dataLength]...)
				}
				n.readerLock.Unlock()

				if !ok {
					n.emit(ctx, ch, &Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("unknown or oversized frame ID: %d", frameID))})
				}

			case MessageHeaderTypeEnd, MessageHeaderTypeAbort:
				n.readerLock.Lock()
				m, ok := n.readBuffer[frameID]
				delete(n.readBuffer, frameID)
				n.readerLock.Unlock()

				if !ok {
					n.emit(ctx, ch, &Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("unknown frame ID: %d", frameID))})
					continue
				}
				if msgType == MessageHeaderTypeAbort {
					// aborted messages are dropped
					continue
				}
				m.Type = MessageHeaderTypeComplete
				if !n.emit(ctx, ch, m) {
					return
				}

			default:
				n.emit(ctx, ch, &Message{ID: frameID, Type: MessageHeaderTypeError, Data: []byte(fmt.Sprintf("unknown message type: %d", msgType))})
				return
			}
		}
	}()

	return ch, nil
}

func (n *Node) emit(ctx context.Context, ch chan<- *Message, m *Message) bool {
	select {
	case ch <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func (n *Node) write(mesgType uint8, frameID uint32, data []byte) error {
	header := make([]byte, MessageHeaderSize)
	header[0] = mesgType
	header[1] = byte(frameID >> 24)
	header[2] = byte(frameID >> 16)
	header[3] = byte(frameID >> 8)
	header[4] = byte(frameID)
	header[5] = byte(len(data) >> 24)
	header[6] = byte(len(data) >> 16)
	header[7] = byte(len(data) >> 8)
	header[8] = byte(len(data))
	if _, err := n.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if mesgType == MessageHeaderTypeData && len(data) > 0 {
		if _, err := n.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	}

	return nil
}

// WriteMessageWithSequence writes data as one framed message. The start frame
// announces the total length; frames of one message are never interleaved
// with another message's.
func (n *Node) WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("data length %d exceeds maximum %d", len(data), MaxMessageSize)
	}

	n.writerLock.Lock()
	defer n.writerLock.Unlock()

	if n.writer == nil {
		return errors.New("writer is nil")
	}

	header := make([]byte, MessageHeaderSize)
	header[0] = MessageHeaderTypeStart
	header[1] = byte(seq >> 24)
	header[2] = byte(seq >> 16)
	header[3] = byte(seq >> 8)
	header[4] = byte(seq)
	header[5] = byte(len(data) >> 24)
	header[6] = byte(len(data) >> 16)
	header[7] = byte(len(data) >> 8)
	header[8] = byte(len(data))
	if _, err := n.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			if abortErr := n.write(MessageHeaderTypeAbort, seq, nil); abortErr != nil {
				return fmt.Errorf("failed to write abort message: %w", abortErr)
			}
			return err
		}

		chunkSize := min(len(data), MessageChunkSize)
		if err := n.write(MessageHeaderTypeData, seq, data[:chunkSize]); err != nil {
			return fmt.Errorf("failed to write data chunk: %w", err)
		}
		data = data[chunkSize:]
	}

	if err := n.write(MessageHeaderTypeEnd, seq, nil); err != nil {
		return fmt.Errorf("failed to write end message: %w", err)
	}

	return nil
}

// WriteMessage sends a message with automatic sequence numbering
func (n *Node) WriteMessage(ctx context.Context, data []byte) error {
	seq := n.sequence.Add(1)
	return n.WriteMessageWithSequence(ctx, seq, data)
}

// Close drops partially received messages.
func (n *Node) Close() error {
	n.readerLock.Lock()
	defer n.readerLock.Unlock()

	clear(n.readBuffer)
	return nil
}

// GetPendingMessageCount returns the number of pending incomplete messages
func (n *Node) GetPendingMessageCount() int {
	n.readerLock.RLock()
	defer n.readerLock.RUnlock()
	return len(n.readBuffer)
}
