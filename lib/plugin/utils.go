package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// generateRequestID returns an id in the host's half of the sequence space
// that no pending request is using.
func (l *Loader) generateRequestID() uint32 {
	const maxAttempts = 100

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := l.requestID.Add(1) &^ moduleSequenceBit
		if id == 0 {
			continue
		}

		l.requestMutex.RLock()
		_, exists := l.pendingRequests[id]
		l.requestMutex.RUnlock()

		if !exists {
			return id
		}
	}

	return l.requestID.Load() &^ moduleSequenceBit
}

// waitForReadySignal waits for the module's ready signal, asking for it once
// more if the first one does not arrive within ReadyTimeout.
func (l *Loader) waitForReadySignal(ctx context.Context) error {
	select {
	case <-l.readySignal:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cancelled while waiting for ready signal: %w", ctx.Err())
	case <-l.loadCtx.Done():
		return errors.New("extension stopped while waiting for ready signal")
	case <-time.After(l.options.ReadyTimeout):
		if err := l.RequestReady(ctx); err != nil {
			return fmt.Errorf("timeout waiting for ready signal and failed to request ready: %w", err)
		}
		select {
		case <-l.readySignal:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("cancelled while waiting for ready signal after request: %w", ctx.Err())
		case <-l.loadCtx.Done():
			return errors.New("extension stopped while waiting for ready signal after request")
		case <-time.After(l.options.ReadyTimeout):
			return errors.New("timeout waiting for ready signal from extension even after requesting")
		}
	}
}

// RequestReady asks the module to send its ready signal again.
func (l *Loader) RequestReady(ctx context.Context) error {
	if l.closed.Load() {
		return errors.New("loader is closed")
	}
	if l.multiplexer == nil {
		return errors.New("multiplexer not available")
	}

	requestReadyHeader := Header{
		Name:        NameRequestReady,
		MessageType: MessageTypeRequest,
		Payload:     []byte("please send ready signal"),
	}

	requestData, err := requestReadyHeader.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal request ready header: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	return l.multiplexer.WriteMessage(ctx, requestData)
}
