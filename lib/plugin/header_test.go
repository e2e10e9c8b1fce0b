package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_MarshalUnmarshal(t *testing.T) {
	testCases := []struct {
		name   string
		header Header
	}{
		{
			name:   "Request",
			header: Header{Name: MethodCommandExecute, MessageType: MessageTypeRequest, Payload: []byte("hello world")},
		},
		{
			name:   "Error",
			header: Header{Name: MethodRegisterCommand, IsError: true, MessageType: MessageTypeError, Payload: []byte("error message")},
		},
		{
			name:   "Empty payload",
			header: Header{Name: NameReady, MessageType: MessageTypeAck, Payload: []byte{}},
		},
		{
			name:   "Large payload",
			header: Header{Name: "large", MessageType: MessageTypeResponse, Payload: make([]byte, 10000)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.header.MarshalBinary()
			require.NoError(t, err)

			var header Header
			require.NoError(t, header.UnmarshalBinary(data))
			assert.Equal(t, tc.header, header)
		})
	}
}

func TestHeader_UnmarshalTruncated(t *testing.T) {
	full := Header{Name: "truncate", MessageType: MessageTypeRequest, Payload: []byte("payload")}
	data, err := full.MarshalBinary()
	require.NoError(t, err)

	for _, n := range []int{0, 3, 6, 12, 13, len(data) - 1} {
		var header Header
		assert.Error(t, header.UnmarshalBinary(data[:n]), "length %d", n)
	}
}

func TestHeader_UnmarshalOversizedName(t *testing.T) {
	var header Header
	err := header.UnmarshalBinary([]byte{0xff, 0xff, 0xff, 0xff, 'a'})
	assert.ErrorContains(t, err, "exceeds remaining")
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "Request", MessageTypeRequest.String())
	assert.Equal(t, "Ack", MessageTypeAck.String())
	assert.Equal(t, "Unknown", MessageType(0x7f).String())
}
