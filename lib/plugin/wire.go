package plugin

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payloads are protobuf well-known types so both sides can evolve fields
// without a generated schema.

// validString replaces invalid UTF-8, which protobuf strings cannot carry.
// Console input and player names are not guaranteed to be valid.
func validString(v string) string {
	return strings.ToValidUTF8(v, "\uFFFD")
}

func marshalStruct(fields map[string]any) ([]byte, error) {
	for k, v := range fields {
		if str, ok := v.(string); ok {
			fields[k] = validString(str)
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build payload: %w", err)
	}
	return proto.Marshal(s)
}

func unmarshalStruct(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return s, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func anyList(values []string) []any {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = validString(v)
	}
	return list
}

func stringsOf(list *structpb.ListValue) []string {
	values := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		values = append(values, v.GetStringValue())
	}
	return values
}

// LoadInfo is exchanged on MethodLoad and MethodUnload. The host sends the
// name it runs under; the extension answers with the id it settled on.
type LoadInfo struct {
	HostName    string
	ExtensionID string
}

func (r LoadInfo) MarshalBinary() ([]byte, error) {
	return marshalStruct(map[string]any{
		"host": r.HostName,
		"id":   r.ExtensionID,
	})
}

func (r *LoadInfo) UnmarshalBinary(data []byte) error {
	s, err := unmarshalStruct(data)
	if err != nil {
		return err
	}
	r.HostName = stringField(s, "host")
	r.ExtensionID = stringField(s, "id")
	return nil
}

// CommandSpec describes a command an extension asks the host to register.
type CommandSpec struct {
	Namespace   string
	Name        string
	Description string
	Usage       string
}

func (c CommandSpec) MarshalBinary() ([]byte, error) {
	return marshalStruct(map[string]any{
		"namespace":   c.Namespace,
		"name":        c.Name,
		"description": c.Description,
		"usage":       c.Usage,
	})
}

func (c *CommandSpec) UnmarshalBinary(data []byte) error {
	s, err := unmarshalStruct(data)
	if err != nil {
		return err
	}
	c.Namespace = stringField(s, "namespace")
	c.Name = stringField(s, "name")
	c.Description = stringField(s, "description")
	c.Usage = stringField(s, "usage")
	return nil
}

// Invocation is a command execution or completion forwarded to an extension.
type Invocation struct {
	Command string
	Sender  string
	Label   string
	Args    []string
}

func (i Invocation) MarshalBinary() ([]byte, error) {
	return marshalStruct(map[string]any{
		"command": i.Command,
		"sender":  i.Sender,
		"label":   i.Label,
		"args":    anyList(i.Args),
	})
}

func (i *Invocation) UnmarshalBinary(data []byte) error {
	s, err := unmarshalStruct(data)
	if err != nil {
		return err
	}
	i.Command = stringField(s, "command")
	i.Sender = stringField(s, "sender")
	i.Label = stringField(s, "label")
	i.Args = stringsOf(s.GetFields()["args"].GetListValue())
	return nil
}

// Outcome reports what a remote hook did: whether it handled the call and the
// messages it sent to the sender or player, in order.
type Outcome struct {
	Handled  bool
	Messages []string
}

func (o Outcome) MarshalBinary() ([]byte, error) {
	return marshalStruct(map[string]any{
		"handled":  o.Handled,
		"messages": anyList(o.Messages),
	})
}

func (o *Outcome) UnmarshalBinary(data []byte) error {
	s, err := unmarshalStruct(data)
	if err != nil {
		return err
	}
	o.Handled = s.GetFields()["handled"].GetBoolValue()
	o.Messages = stringsOf(s.GetFields()["messages"].GetListValue())
	return nil
}

// Completion is the ordered suggestion list of a tab completion.
type Completion []string

func (c Completion) MarshalBinary() ([]byte, error) {
	list, err := structpb.NewList(anyList(c))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion: %w", err)
	}
	return proto.Marshal(list)
}

func (c *Completion) UnmarshalBinary(data []byte) error {
	list := &structpb.ListValue{}
	if err := proto.Unmarshal(data, list); err != nil {
		return fmt.Errorf("failed to decode completion: %w", err)
	}
	*c = stringsOf(list)
	return nil
}

// PlayerRef identifies the player of a forwarded event and the listener
// registration it is addressed to.
type PlayerRef struct {
	Listener string
	Name     string
	UUID     uuid.UUID
}

func (p PlayerRef) MarshalBinary() ([]byte, error) {
	return marshalStruct(map[string]any{
		"listener": p.Listener,
		"name":     p.Name,
		"uuid":     p.UUID.String(),
	})
}

func (p *PlayerRef) UnmarshalBinary(data []byte) error {
	s, err := unmarshalStruct(data)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(stringField(s, "uuid"))
	if err != nil {
		return fmt.Errorf("invalid player uuid: %w", err)
	}
	p.Listener = stringField(s, "listener")
	p.Name = stringField(s, "name")
	p.UUID = id
	return nil
}
