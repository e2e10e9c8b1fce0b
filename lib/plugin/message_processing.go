package plugin

import (
	"context"

	"github.com/mcengine/essentialskript/lib/multiplexer"
)

// handleMessages routes everything the module sends: control signals,
// responses to host calls and requests from the extension.
func (l *Loader) handleMessages() {
	defer l.wg.Done()
	defer l.failPending()

	recv, err := l.multiplexer.ReadMessage(l.loadCtx)
	if err != nil {
		l.Log.Error(err, "failed to start reading from extension")
		return
	}

	for {
		select {
		case <-l.loadCtx.Done():
			return
		case mesg, ok := <-recv:
			if !ok {
				return
			}
			if mesg.Type == multiplexer.MessageHeaderTypeError {
				l.Log.Info("transport error", "sequence", mesg.ID, "reason", string(mesg.Data))
				continue
			}

			var header Header
			if err := header.UnmarshalBinary(mesg.Data); err != nil {
				l.Log.Error(err, "dropping malformed message", "sequence", mesg.ID)
				continue
			}

			switch {
			case header.Name == NameReady:
				select {
				case l.readySignal <- struct{}{}:
				default:
				}

			case header.Name == NameShutdownAck:
				select {
				case l.shutdownAck <- struct{}{}:
				default:
				}

			case header.MessageType == MessageTypeResponse || header.MessageType == MessageTypeError:
				l.deliverResponse(mesg.ID, mesg.Data)

			case header.MessageType == MessageTypeRequest:
				l.wg.Add(1)
				go l.serveRequest(mesg.ID, header)

			default:
				l.Log.V(1).Info("ignoring message", "name", header.Name, "type", header.MessageType.String())
			}
		}
	}
}

func (l *Loader) deliverResponse(requestID uint32, data []byte) {
	l.requestMutex.RLock()
	defer l.requestMutex.RUnlock()

	responseChan, exists := l.pendingRequests[requestID]
	if !exists {
		l.Log.V(1).Info("response without pending request", "sequence", requestID)
		return
	}
	select {
	case responseChan <- data:
	default:
	}
}

// failPending wakes every caller still waiting for a response.
func (l *Loader) failPending() {
	l.requestMutex.Lock()
	defer l.requestMutex.Unlock()

	for id, ch := range l.pendingRequests {
		close(ch)
		delete(l.pendingRequests, id)
	}
}

func (l *Loader) serveRequest(seq uint32, header Header) {
	defer l.wg.Done()

	ctx, cancel := context.WithTimeout(l.loadCtx, l.options.CallTimeout)
	defer cancel()

	var (
		payload []byte
		isError bool
	)
	if handler, exists := l.getRequestHandler(header.Name); exists {
		var err error
		payload, isError, err = handler.HandleRequest(ctx, header)
		if err != nil {
			payload, isError = []byte(err.Error()), true
		}
	} else {
		payload, isError = []byte("no handler registered for request: "+header.Name), true
	}

	if err := l.respond(ctx, seq, header.Name, payload, isError); err != nil {
		l.Log.Error(err, "failed to answer extension request", "name", header.Name)
	}
}
