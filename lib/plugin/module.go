package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mcengine/essentialskript/lib/multiplexer"
)

// moduleSequenceBit marks sequence numbers of requests the module starts, so
// they never collide with the host's.
const moduleSequenceBit = uint32(1) << 31

// jobDrainTimeout bounds how long Listen waits for running handlers once the
// stream is gone.
const jobDrainTimeout = 5 * time.Second

// AppHandlerResult holds the result of an application handler execution.
type AppHandlerResult struct {
	Payload []byte // Raw payload
	IsError bool   // True if Payload is an error payload
}

// Handler defines the function signature for registered handlers.
// The error return is for failures of the wrapper itself.
type Handler func(ctx context.Context, requestPayload []byte) (AppHandlerResult, error)

// Module runs inside the extension process and dispatches host requests to registered handlers.
type Module struct {
	multiplexer multiplexer.Multiplexer
	log         *zap.Logger

	handler     map[string]Handler
	handlerLock sync.RWMutex

	requestID   atomic.Uint32
	pending     map[uint32]chan Header
	pendingLock sync.Mutex

	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
	activeJobs     sync.WaitGroup
	activeJobCount atomic.Int64
}

type ModuleOption func(*Module)

// WithLogger sets the logger handed to extensions and used for transport diagnostics.
func WithLogger(log *zap.Logger) ModuleOption {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a new Module instance with the specified reader and writer.
// If reader or writer are nil, they default to os.Stdin and os.Stdout respectively.
func New(reader io.Reader, writer io.Writer, opts ...ModuleOption) *Module {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	m := &Module{
		multiplexer:  multiplexer.New(reader, writer),
		log:          zap.NewNop(),
		handler:      make(map[string]Handler),
		pending:      make(map[uint32]chan Header),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewStd creates a new Module instance using standard input and output.
func NewStd(opts ...ModuleOption) *Module {
	return New(os.Stdin, os.Stdout, opts...)
}

// RegisterHandler registers a handler function for the given method name.
// It panics if the name is already taken.
func RegisterHandler(m *Module, name string, handler func(ctx context.Context, requestPayload []byte) (responsePayload []byte, isAppError bool)) {
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()

	if _, exists := m.handler[name]; exists {
		panic(fmt.Sprintf("handler for %s already registered", name))
	}

	m.handler[name] = func(ctx context.Context, requestPayload []byte) (AppHandlerResult, error) {
		responseBytes, isErr := handler(ctx, requestPayload)
		return AppHandlerResult{Payload: responseBytes, IsError: isErr}, nil
	}
}

// SendReady tells the host the module is ready to receive requests.
func (m *Module) SendReady(ctx context.Context) error {
	readyHeader := Header{
		Name:        NameReady,
		MessageType: MessageTypeAck,
		Payload:     []byte("ready"),
	}

	readyData, err := readyHeader.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal ready header: %w", err)
	}

	return m.multiplexer.WriteMessage(ctx, readyData)
}

// SendRequest sends a request to the host and waits for its response.
// It only makes progress while Listen is running.
func (m *Module) SendRequest(ctx context.Context, name string, payload []byte) ([]byte, error) {
	header := Header{
		Name:        name,
		MessageType: MessageTypeRequest,
		Payload:     payload,
	}

	headerData, err := header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	sequenceID := m.requestID.Add(1) | moduleSequenceBit
	responseChan := make(chan Header, 1)

	m.pendingLock.Lock()
	m.pending[sequenceID] = responseChan
	m.pendingLock.Unlock()

	defer func() {
		m.pendingLock.Lock()
		delete(m.pending, sequenceID)
		m.pendingLock.Unlock()
	}()

	if err := m.multiplexer.WriteMessageWithSequence(ctx, sequenceID, headerData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case response, ok := <-responseChan:
		if !ok {
			return nil, errors.New("module stopped before the host responded")
		}
		if response.IsError {
			return nil, remoteError(name, response.Payload)
		}
		return response.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// remoteError rebuilds a host error, keeping sentinels recognisable with errors.Is.
func remoteError(name string, payload []byte) error {
	msg := string(payload)
	if strings.Contains(msg, ErrRegistrationUnavailable.Error()) {
		return fmt.Errorf("host error for request %s: %w", name, ErrRegistrationUnavailable)
	}
	return fmt.Errorf("host error for request %s: %s", name, msg)
}

// Shutdown initiates graceful shutdown of the module.
func (m *Module) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdownChan)
	})
}

// IsShutdown returns true if the module is shutting down (gracefully).
func (m *Module) IsShutdown() bool {
	select {
	case <-m.shutdownChan:
		return true
	default:
		return false
	}
}

// ActiveJobs returns the number of requests currently being handled.
func (m *Module) ActiveJobs() int64 {
	return m.activeJobCount.Load()
}

// Listen sends the ready signal and serves host requests until the host
// shuts the module down, the stream closes or ctx is done. Each request runs
// in its own goroutine so handlers may call back into the host.
func (m *Module) Listen(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recv, err := m.multiplexer.ReadMessage(listenCtx)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}
	defer m.failPending()

	if err := m.SendReady(listenCtx); err != nil {
		return fmt.Errorf("failed to send ready signal: %w", err)
	}

	for {
		select {
		case mesg, ok := <-recv:
			if !ok {
				m.waitForJobs()
				return nil
			}
			if mesg.Type == multiplexer.MessageHeaderTypeError {
				m.log.Warn("transport error", zap.Uint32("sequence", mesg.ID), zap.ByteString("reason", mesg.Data))
				continue
			}

			var header Header
			if err := header.UnmarshalBinary(mesg.Data); err != nil {
				m.log.Warn("dropping malformed message", zap.Uint32("sequence", mesg.ID), zap.Error(err))
				continue
			}

			switch {
			case header.MessageType == MessageTypeResponse || header.MessageType == MessageTypeError:
				m.deliverResponse(mesg.ID, header)
				continue

			case header.Name == NameShutdown:
				m.Shutdown()
				m.reply(listenCtx, mesg.ID, NameShutdownAck, MessageTypeAck, []byte("graceful shutdown started, waiting for jobs to complete"))

				// no new jobs are accepted from here on
				go func() {
					m.activeJobs.Wait()
					cancel()
				}()
				continue

			case header.Name == NameRequestReady:
				if err := m.SendReady(listenCtx); err != nil {
					m.log.Warn("failed to resend ready signal", zap.Error(err))
				}
				continue
			}

			if m.IsShutdown() {
				m.reply(listenCtx, mesg.ID, header.Name, MessageTypeError, []byte("service unavailable: graceful shutdown in progress"))
				continue
			}

			m.activeJobs.Add(1)
			m.activeJobCount.Add(1)
			go func(seq uint32, hdr Header) {
				defer func() {
					m.activeJobCount.Add(-1)
					m.activeJobs.Done()
				}()
				m.processMessage(listenCtx, seq, hdr)
			}(mesg.ID, header)

		case <-listenCtx.Done():
			m.waitForJobs()
			if m.IsShutdown() {
				return nil
			}
			return listenCtx.Err()
		}
	}
}

func (m *Module) waitForJobs() {
	done := make(chan struct{})
	go func() {
		m.activeJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(jobDrainTimeout):
		m.log.Warn("shutdown timeout reached with jobs still running", zap.Int64("jobs", m.ActiveJobs()))
	}
}

func (m *Module) deliverResponse(seq uint32, header Header) {
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()

	ch, ok := m.pending[seq]
	if !ok {
		m.log.Debug("response without pending request", zap.Uint32("sequence", seq), zap.String("name", header.Name))
		return
	}
	select {
	case ch <- header:
	default:
	}
}

func (m *Module) failPending() {
	m.pendingLock.Lock()
	defer m.pendingLock.Unlock()

	for seq, ch := range m.pending {
		close(ch)
		delete(m.pending, seq)
	}
}

// processMessage runs the handler for one request and writes the response
// with the request's sequence number.
func (m *Module) processMessage(ctx context.Context, seq uint32, request Header) {
	m.handlerLock.RLock()
	targetHandler, exists := m.handler[request.Name]
	m.handlerLock.RUnlock()

	if !exists {
		m.reply(ctx, seq, request.Name, MessageTypeError, []byte(fmt.Sprintf("no handler registered for service: %s", request.Name)))
		return
	}

	result, err := m.invoke(ctx, targetHandler, request)
	if err != nil {
		m.reply(ctx, seq, request.Name, MessageTypeError, []byte(fmt.Sprintf("critical internal error processing request for %s: %v", request.Name, err)))
		return
	}

	messageType := MessageTypeResponse
	if result.IsError {
		messageType = MessageTypeError
	}
	m.reply(ctx, seq, request.Name, messageType, result.Payload)
}

func (m *Module) invoke(ctx context.Context, h Handler, request Header) (result AppHandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("handler panicked", zap.String("name", request.Name), zap.Any("panic", r))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, request.Payload)
}

func (m *Module) reply(ctx context.Context, seq uint32, name string, messageType MessageType, payload []byte) {
	header := Header{
		Name:        name,
		IsError:     messageType == MessageTypeError,
		MessageType: messageType,
		Payload:     payload,
	}

	data, err := header.MarshalBinary()
	if err != nil {
		m.log.Error("failed to marshal response", zap.String("name", name), zap.Error(err))
		return
	}

	if err := m.multiplexer.WriteMessageWithSequence(ctx, seq, data); err != nil {
		m.log.Debug("failed to write response", zap.String("name", name), zap.Uint32("sequence", seq), zap.Error(err))
	}
}
