package plugin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType represents the type of message being sent
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0x01 // Request message (expects response)
	MessageTypeResponse MessageType = 0x02 // Response message (response to request)
	MessageTypeNotify   MessageType = 0x03 // Notification message (no response expected)
	MessageTypeAck      MessageType = 0x04 // Acknowledgment message
	MessageTypeError    MessageType = 0x05 // Error message
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeNotify:
		return "Notify"
	case MessageTypeAck:
		return "Ack"
	case MessageTypeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Control and method names carried in Header.Name.
const (
	NameReady        = "ready"
	NameRequestReady = "request_ready"
	NameShutdown     = "shutdown"
	NameShutdownAck  = "shutdown_ack"

	// host -> extension
	MethodLoad            = "load"
	MethodUnload          = "unload"
	MethodCommandExecute  = "command.execute"
	MethodCommandComplete = "command.complete"
	MethodPlayerJoin      = "event.player_join"
	MethodPlayerQuit      = "event.player_quit"

	// extension -> host
	MethodRegisterCommand  = "register_command"
	MethodRegisterListener = "register_listener"
)

// Header represents the message header containing service name, error status, and payload.
type Header struct {
	Name        string
	IsError     bool
	MessageType MessageType
	Payload     []byte
}

// MarshalBinary encodes the header as
// name length (u32) | name | error flag (u8) | type (u8) | payload length (u32) | payload.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.Grow(4 + len(h.Name) + 2 + 4 + len(h.Payload))

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(h.Name))); err != nil {
		return nil, fmt.Errorf("failed to write name length: %w", err)
	}
	buffer.WriteString(h.Name)

	var isErrorByte byte
	if h.IsError {
		isErrorByte = 1
	}
	buffer.WriteByte(isErrorByte)
	buffer.WriteByte(byte(h.MessageType))

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(h.Payload))); err != nil {
		return nil, fmt.Errorf("failed to write payload length: %w", err)
	}
	buffer.Write(h.Payload)

	return buffer.Bytes(), nil
}

// UnmarshalBinary decodes the header from binary format.
func (h *Header) UnmarshalBinary(data []byte) error {
	buffer := bytes.NewReader(data)

	var nameLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &nameLen); err != nil {
		return fmt.Errorf("failed to read name length: %w", err)
	}
	if int64(nameLen) > int64(buffer.Len()) {
		return fmt.Errorf("failed to read name: length %d exceeds remaining %d bytes", nameLen, buffer.Len())
	}

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(buffer, nameBytes); err != nil {
		return fmt.Errorf("failed to read name: %w", err)
	}
	h.Name = string(nameBytes)

	isErrorByte, err := buffer.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read IsError flag: %w", err)
	}
	h.IsError = isErrorByte == 1

	messageTypeByte, err := buffer.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read message type: %w", err)
	}
	h.MessageType = MessageType(messageTypeByte)

	var payloadLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &payloadLen); err != nil {
		return fmt.Errorf("failed to read payload length: %w", err)
	}
	if int64(payloadLen) > int64(buffer.Len()) {
		return fmt.Errorf("failed to read payload: length %d exceeds remaining %d bytes", payloadLen, buffer.Len())
	}

	h.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(buffer, h.Payload); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	return nil
}
