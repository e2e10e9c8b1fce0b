package plugin

import (
	"context"
	"errors"
	"io"
	"strings"
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

// peer plays the host side of a module under test.
type peer struct {
	mux  multiplexer.Multiplexer
	recv chan *multiplexer.Message
}

func newModulePair(t *testing.T) (*Module, *peer) {
	t.Helper()

	hostReader, moduleWriter := io.Pipe()
	moduleReader, hostWriter := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	mux := multiplexer.New(hostReader, hostWriter)
	recv, err := mux.ReadMessage(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		hostWriter.Close()
		hostReader.Close()
	})

	return New(moduleReader, moduleWriter), &peer{mux: mux, recv: recv}
}

func (p *peer) next(t *testing.T) (uint32, Header) {
	t.Helper()
	select {
	case mesg, ok := <-p.recv:
		require.True(t, ok, "stream closed")
		var header Header
		require.NoError(t, header.UnmarshalBinary(mesg.Data))
		return mesg.ID, header
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for module")
		return 0, Header{}
	}
}

func (p *peer) send(t *testing.T, seq uint32, header Header) {
	t.Helper()
	data, err := header.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, p.mux.WriteMessageWithSequence(context.Background(), seq, data))
}

func listen(ctx context.Context, m *Module) chan error {
	done := make(chan error, 1)
	go func() {
		done <- m.Listen(ctx)
	}()
	return done
}

func wait(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return")
		return nil
	}
}

func TestRegisterHandler_DuplicatePanics(t *testing.T) {
	m := New(strings.NewReader(""), io.Discard)
	noop := func(context.Context, []byte) ([]byte, bool) { return nil, false }

	RegisterHandler(m, "echo", noop)
	assert.Panics(t, func() { RegisterHandler(m, "echo", noop) })
}

func TestModule_ListenDispatchesRequests(t *testing.T) {
	m, p := newModulePair(t)
	RegisterHandler(m, "echo", func(_ context.Context, payload []byte) ([]byte, bool) {
		return append([]byte("echo:"), payload...), false
	})
	RegisterHandler(m, "fail", func(context.Context, []byte) ([]byte, bool) {
		return []byte("bad input"), true
	})
	RegisterHandler(m, "boom", func(context.Context, []byte) ([]byte, bool) {
		panic("kaboom")
	})

	done := listen(context.Background(), m)

	_, ready := p.next(t)
	assert.Equal(t, NameReady, ready.Name)
	assert.Equal(t, MessageTypeAck, ready.MessageType)

	tests := []struct {
		name    string
		method  string
		isError bool
		payload string
	}{
		{name: "success", method: "echo", payload: "echo:hi"},
		{name: "application error", method: "fail", isError: true, payload: "bad input"},
		{name: "unknown method", method: "missing", isError: true, payload: "no handler registered for service: missing"},
		{name: "panic", method: "boom", isError: true, payload: "critical internal error processing request for boom: handler panicked: kaboom"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := uint32(10 + i)
			p.send(t, seq, Header{Name: tt.method, MessageType: MessageTypeRequest, Payload: []byte("hi")})

			gotSeq, resp := p.next(t)
			assert.Equal(t, seq, gotSeq)
			assert.Equal(t, tt.method, resp.Name)
			assert.Equal(t, tt.isError, resp.IsError)
			assert.Equal(t, tt.payload, string(resp.Payload))
		})
	}

	p.send(t, 99, Header{Name: NameRequestReady, MessageType: MessageTypeRequest})
	_, again := p.next(t)
	assert.Equal(t, NameReady, again.Name)

	p.send(t, 100, Header{Name: NameShutdown, MessageType: MessageTypeRequest})
	seq, ack := p.next(t)
	assert.Equal(t, uint32(100), seq)
	assert.Equal(t, NameShutdownAck, ack.Name)

	assert.NoError(t, wait(t, done))
	assert.True(t, m.IsShutdown())
}

func TestModule_SendRequestRoundTrip(t *testing.T) {
	m, p := newModulePair(t)
	RegisterHandler(m, MethodLoad, func(ctx context.Context, _ []byte) ([]byte, bool) {
		first, err := m.SendRequest(ctx, MethodRegisterCommand, []byte("payload"))
		if err != nil {
			return []byte(err.Error()), true
		}
		_, err = m.SendRequest(ctx, MethodRegisterListener, []byte("listener-1"))
		if errors.Is(err, ErrRegistrationUnavailable) {
			return append(first, " unavailable"...), false
		}
		return []byte("unexpected"), true
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := listen(ctx, m)
	p.next(t)

	p.send(t, 1, Header{Name: MethodLoad, MessageType: MessageTypeRequest})

	seq, req := p.next(t)
	assert.Equal(t, MethodRegisterCommand, req.Name)
	assert.Equal(t, MessageTypeRequest, req.MessageType)
	assert.NotZero(t, seq&moduleSequenceBit)
	p.send(t, seq, Header{Name: req.Name, MessageType: MessageTypeResponse, Payload: []byte("registered")})

	seq, req = p.next(t)
	assert.Equal(t, MethodRegisterListener, req.Name)
	assert.Equal(t, "listener-1", string(req.Payload))
	p.send(t, seq, Header{Name: req.Name, IsError: true, MessageType: MessageTypeError, Payload: []byte(ErrRegistrationUnavailable.Error())})

	seq, resp := p.next(t)
	assert.Equal(t, uint32(1), seq)
	assert.False(t, resp.IsError)
	assert.Equal(t, "registered unavailable", string(resp.Payload))

	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
}

func TestModule_SendRequestFailsWhenListenStops(t *testing.T) {
	m, p := newModulePair(t)
	errs := make(chan error, 1)
	RegisterHandler(m, MethodLoad, func(ctx context.Context, _ []byte) ([]byte, bool) {
		_, err := m.SendRequest(ctx, MethodRegisterCommand, nil)
		errs <- err
		return nil, err != nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := listen(ctx, m)
	p.next(t)

	p.send(t, 1, Header{Name: MethodLoad, MessageType: MessageTypeRequest})
	p.next(t) // the register_command request, never answered

	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
	assert.Error(t, <-errs)
}
