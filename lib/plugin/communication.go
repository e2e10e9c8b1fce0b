package plugin

import (
	"context"
	"errors"
	"fmt"
)

// Call sends a request to the loaded extension and waits for a response.
// The request and response are raw byte slices. If the extension answers
// with an error payload, it is returned as the error message.
func Call(ctx context.Context, l *Loader, name string, requestPayload []byte) ([]byte, error) {
	if l.closed.Load() || l.processExited.Load() {
		return nil, errors.New("loader is closed")
	}
	if l.multiplexer == nil {
		return nil, errors.New("loader not loaded or load failed")
	}

	return l.call(ctx, name, requestPayload)
}

func (l *Loader) call(ctx context.Context, name string, requestPayload []byte) ([]byte, error) {
	requestHeader := Header{
		Name:        name,
		MessageType: MessageTypeRequest,
		Payload:     requestPayload,
	}

	headerData, err := requestHeader.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}

	requestID := l.generateRequestID()
	responseChan := make(chan []byte, 1)

	l.requestMutex.Lock()
	l.pendingRequests[requestID] = responseChan
	l.requestMutex.Unlock()

	defer func() {
		l.requestMutex.Lock()
		delete(l.pendingRequests, requestID)
		l.requestMutex.Unlock()
	}()

	if err := l.multiplexer.WriteMessageWithSequence(ctx, requestID, headerData); err != nil {
		return nil, fmt.Errorf("failed to write request message: %w", err)
	}

	select {
	case responseData, ok := <-responseChan:
		if !ok {
			return nil, errors.New("response channel closed, loader shutting down")
		}

		var responseHeader Header
		if err := responseHeader.UnmarshalBinary(responseData); err != nil {
			return nil, fmt.Errorf("failed to decode response header: %w", err)
		}

		if responseHeader.IsError {
			return nil, fmt.Errorf("extension error for service %s: %s", name, responseHeader.Payload)
		}

		return responseHeader.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.loadCtx.Done():
		return nil, errors.New("loader is shutting down")
	}
}

// respond answers a request from the module with its sequence number.
func (l *Loader) respond(ctx context.Context, sequenceID uint32, name string, payload []byte, isError bool) error {
	messageType := MessageTypeResponse
	if isError {
		messageType = MessageTypeError
	}

	header := Header{
		Name:        name,
		IsError:     isError,
		MessageType: messageType,
		Payload:     payload,
	}

	headerData, err := header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	return l.multiplexer.WriteMessageWithSequence(ctx, sequenceID, headerData)
}
