package plugin

import (
	"context"
	"errors"
)

// RegisterRequestHandler registers a handler for incoming requests from the module with the specified name
func (l *Loader) RegisterRequestHandler(name string, handler RequestHandler) {
	l.handlerMutex.Lock()
	defer l.handlerMutex.Unlock()
	l.requestHandlers[name] = handler
}

// UnregisterRequestHandler removes the request handler for the specified message name
func (l *Loader) UnregisterRequestHandler(name string) {
	l.handlerMutex.Lock()
	defer l.handlerMutex.Unlock()
	delete(l.requestHandlers, name)
}

// RegisterRequestHandlerFunc is a convenience method to register a function as a request handler
func (l *Loader) RegisterRequestHandlerFunc(name string, handler func(ctx context.Context, header Header) (responsePayload []byte, isError bool, err error)) {
	l.RegisterRequestHandler(name, RequestHandlerFunc(handler))
}

// getRequestHandler safely retrieves a request handler for the given name
func (l *Loader) getRequestHandler(name string) (RequestHandler, bool) {
	l.handlerMutex.RLock()
	defer l.handlerMutex.RUnlock()
	handler, exists := l.requestHandlers[name]
	return handler, exists
}

// registerHostHandlers wires the extension's registration requests to the host.
func (l *Loader) registerHostHandlers() {
	NewBinaryLoaderRequestHandlerAdapter[CommandSpec](l, MethodRegisterCommand, func(ctx context.Context, spec CommandSpec) error {
		remote := &remoteCommand{loader: l, name: spec.Name}
		cmd := &Command{
			Name:        spec.Name,
			Description: spec.Description,
			Usage:       spec.Usage,
			Executor:    remote,
			Completer:   remote,
		}
		if err := l.host.RegisterCommand(ctx, spec.Namespace, cmd); err != nil {
			return err
		}

		l.Log.V(1).Info("registered remote command", "namespace", spec.Namespace, "command", spec.Name)
		return nil
	})

	NewLoaderRequestHandlerAdapter(l, MethodRegisterListener, listenerID, func(ctx context.Context, id string) error {
		if err := l.host.RegisterListener(ctx, &remoteListener{loader: l, id: id}); err != nil {
			return err
		}

		l.Log.V(1).Info("registered remote listener", "listener", id)
		return nil
	})
}

func listenerID(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("listener registration without id")
	}
	return string(payload), nil
}
