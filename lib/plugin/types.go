package plugin

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/mcengine/essentialskript/lib/multiplexer"
)

// RequestHandler handles a request the extension process sends to the host.
type RequestHandler interface {
	HandleRequest(ctx context.Context, header Header) (responsePayload []byte, isError bool, err error)
}

// RequestHandlerFunc is a convenience type for converting functions to RequestHandler
type RequestHandlerFunc func(ctx context.Context, header Header) (responsePayload []byte, isError bool, err error)

// HandleRequest implements RequestHandler interface
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, header Header) (responsePayload []byte, isError bool, err error) {
	return f(ctx, header)
}

// Loader drives an extension running in another process. It starts the
// process, loads the extension against a Host and proxies the commands and
// listeners the extension registers.
type Loader struct {
	Path    string
	Name    string
	Version string

	Log logr.Logger

	multiplexer multiplexer.Multiplexer

	requestID atomic.Uint32

	pendingRequests map[uint32]chan []byte
	requestMutex    sync.RWMutex

	loadCtx    context.Context
	cancelLoad context.CancelFunc
	closed     atomic.Bool
	wg         sync.WaitGroup

	processExited atomic.Bool

	readySignal chan struct{}
	shutdownAck chan struct{}

	requestHandlers map[string]RequestHandler
	handlerMutex    sync.RWMutex

	options  *LoaderOptions
	provider CommunicationProvider

	host        Host
	extensionID string
}

// ExtensionID is the id the extension reported when it was loaded.
func (l *Loader) ExtensionID() string {
	return l.extensionID
}
