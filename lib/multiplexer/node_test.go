package multiplexer_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcengine/essentialskript/lib/multiplexer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		seq  uint32
		data []byte
	}{
		{name: "empty data", seq: 1, data: []byte{}},
		{name: "small data", seq: 2, data: []byte("hello world")},
		{name: "multiple chunks", seq: 3, data: bytes.Repeat([]byte("x"), 3*multiplexer.MessageChunkSize+17)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, writer := io.Pipe()
			defer reader.Close()
			defer writer.Close()

			node := multiplexer.NewNode(reader, writer)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			messageCh, err := node.ReadMessage(ctx)
			require.NoError(t, err)

			errCh := make(chan error, 1)
			go func() {
				errCh <- node.WriteMessageWithSequence(ctx, tt.seq, tt.data)
			}()

			select {
			case msg := <-messageCh:
				require.NotNil(t, msg)
				assert.Equal(t, multiplexer.MessageHeaderTypeComplete, msg.Type)
				assert.Equal(t, tt.seq, msg.ID)
				assert.Equal(t, len(tt.data), len(msg.Data))
				assert.True(t, bytes.Equal(tt.data, msg.Data))
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for message")
			}
			require.NoError(t, <-errCh)
			assert.Zero(t, node.GetPendingMessageCount())

			writer.Close()
			for range messageCh {
			}
		})
	}
}

func TestNode_ConcurrentWritersDoNotInterleave(t *testing.T) {
	reader, writer := io.Pipe()
	defer reader.Close()

	node := multiplexer.NewNode(reader, writer)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	messageCh, err := node.ReadMessage(ctx)
	require.NoError(t, err)

	const writers = 8
	payload := bytes.Repeat([]byte("abc"), multiplexer.MessageChunkSize)
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			// the same sequence on purpose: only interleaving frames could break reassembly
			errCh <- node.WriteMessageWithSequence(ctx, 7, payload)
		}()
	}

	for i := 0; i < writers; i++ {
		select {
		case msg := <-messageCh:
			require.Equal(t, multiplexer.MessageHeaderTypeComplete, msg.Type, string(msg.Data))
			assert.Equal(t, payload, msg.Data)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errCh)
	}

	writer.Close()
	for range messageCh {
	}
}

func TestNode_WriteMessageAssignsSequence(t *testing.T) {
	var buf bytes.Buffer
	node := multiplexer.NewNode(nil, &buf)

	require.NoError(t, node.WriteMessage(context.Background(), []byte("a")))
	require.NoError(t, node.WriteMessage(context.Background(), []byte("b")))

	reader := multiplexer.NewNode(&buf, nil)
	ch, err := reader.ReadMessage(context.Background())
	require.NoError(t, err)

	var ids []uint32
	for msg := range ch {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []uint32{1, 2}, ids)
}

func TestNode_CancelledWriteIsDropped(t *testing.T) {
	var buf bytes.Buffer
	node := multiplexer.NewNode(nil, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := node.WriteMessageWithSequence(ctx, 9, []byte("never delivered"))
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, node.WriteMessageWithSequence(context.Background(), 10, []byte("delivered")))

	reader := multiplexer.NewNode(&buf, nil)
	ch, err := reader.ReadMessage(context.Background())
	require.NoError(t, err)

	var got []*multiplexer.Message
	for msg := range ch {
		got = append(got, msg)
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint32(10), got[0].ID)
	assert.Equal(t, "delivered", string(got[0].Data))
}

func TestNode_UnknownFrameReportsError(t *testing.T) {
	// a data frame for a message that never started
	frame := []byte{multiplexer.MessageHeaderTypeEnd, 0, 0, 0, 42, 0, 0, 0, 0}
	reader := multiplexer.NewNode(bytes.NewReader(frame), nil)

	ch, err := reader.ReadMessage(context.Background())
	require.NoError(t, err)

	msg := <-ch
	require.NotNil(t, msg)
	assert.Equal(t, multiplexer.MessageHeaderTypeError, msg.Type)
	assert.Contains(t, string(msg.Data), "unknown frame ID: 42")

	_, open := <-ch
	assert.False(t, open)
}

func TestNode_ReadMessageWithoutReader(t *testing.T) {
	node := multiplexer.NewNode(nil, io.Discard)
	_, err := node.ReadMessage(context.Background())
	require.Error(t, err)
}
