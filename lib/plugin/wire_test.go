package plugin

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocation_EmptyArgsDecodeNonNil(t *testing.T) {
	data, err := Invocation{Command: "essentialskriptexample", Sender: "CONSOLE", Label: "essentialskriptexample"}.MarshalBinary()
	require.NoError(t, err)

	var got Invocation
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, "CONSOLE", got.Sender)
	assert.NotNil(t, got.Args)
	assert.Empty(t, got.Args)
}

func TestCompletion_KeepsOrderAndEmptyTokens(t *testing.T) {
	data, err := Completion{"start", "stop", "", "status"}.MarshalBinary()
	require.NoError(t, err)

	var got Completion
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, Completion{"start", "stop", "", "status"}, got)
}

func TestPlayerRef_RejectsInvalidUUID(t *testing.T) {
	data, err := marshalStruct(map[string]any{"name": "Steve", "uuid": "not-a-uuid"})
	require.NoError(t, err)

	var ref PlayerRef
	assert.ErrorContains(t, ref.UnmarshalBinary(data), "invalid player uuid")

	id := uuid.New()
	data, err = PlayerRef{Listener: "listener-1", Name: "Steve", UUID: id}.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, ref.UnmarshalBinary(data))
	assert.Equal(t, PlayerRef{Listener: "listener-1", Name: "Steve", UUID: id}, ref)
}

func TestUnmarshal_Garbage(t *testing.T) {
	var spec CommandSpec
	assert.Error(t, spec.UnmarshalBinary([]byte{0xff, 0xff, 0xff}))
}

func TestRemoteError_KeepsSentinel(t *testing.T) {
	err := remoteError(MethodRegisterCommand, []byte("register: "+ErrRegistrationUnavailable.Error()))
	assert.True(t, errors.Is(err, ErrRegistrationUnavailable))

	err = remoteError(MethodRegisterCommand, []byte("command alpha:greet already registered"))
	assert.False(t, errors.Is(err, ErrRegistrationUnavailable))
	assert.EqualError(t, err, "host error for request register_command: command alpha:greet already registered")
}

func TestPayloads_ReplaceInvalidUTF8(t *testing.T) {
	data, err := Invocation{Command: "essentialskriptexample", Sender: "Bad\xffName", Label: "essentialskriptexample", Args: []string{"\xff\xfe", "ok"}}.MarshalBinary()
	require.NoError(t, err)

	var inv Invocation
	require.NoError(t, inv.UnmarshalBinary(data))
	assert.Equal(t, "Bad�Name", inv.Sender)
	assert.Equal(t, []string{"�", "ok"}, inv.Args)

	id := uuid.New()
	data, err = PlayerRef{Listener: "listener-1", Name: "Bad\xffName", UUID: id}.MarshalBinary()
	require.NoError(t, err)

	var ref PlayerRef
	require.NoError(t, ref.UnmarshalBinary(data))
	assert.Equal(t, "Bad�Name", ref.Name)

	data, err = Outcome{Handled: true, Messages: []string{"Hello Bad\xffName"}}.MarshalBinary()
	require.NoError(t, err)

	var out Outcome
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, []string{"Hello Bad�Name"}, out.Messages)

	data, err = Completion{"st\xffart"}.MarshalBinary()
	require.NoError(t, err)

	var c Completion
	require.NoError(t, c.UnmarshalBinary(data))
	assert.Equal(t, Completion{"st�art"}, c)
}
