package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcengine/essentialskript/lib/multiplexer"
)

// goroutineDrainTimeout bounds how long Close waits for the loader's goroutines.
const goroutineDrainTimeout = 2 * time.Second

// NewLoader creates a new Loader for the extension binary at path.
// A nil opts uses DefaultLoaderOptions.
func NewLoader(path, name, version string, opts *LoaderOptions) *Loader {
	opts = opts.withDefaults()

	return &Loader{
		Path:            path,
		Name:            name,
		Version:         version,
		Log:             opts.Log.WithValues("extension", name),
		pendingRequests: make(map[uint32]chan []byte),
		readySignal:     make(chan struct{}, 1),
		shutdownAck:     make(chan struct{}, 1),
		requestHandlers: make(map[string]RequestHandler),
		options:         opts,
		provider:        opts.Provider,
	}
}

// Load starts the extension, waits for it to become ready and loads it
// against host. Registrations the extension makes while loading reach host
// before Load returns. ctx bounds the load only, not the loader's lifetime.
func (l *Loader) Load(ctx context.Context, host Host) error {
	if l.closed.Load() {
		return errors.New("loader is closed")
	}
	if host == nil {
		return errors.New("host is nil")
	}
	if l.multiplexer != nil {
		return errors.New("loader already loaded")
	}
	l.host = host

	l.loadCtx, l.cancelLoad = context.WithCancel(context.WithoutCancel(ctx))

	reader, writer, err := l.provider.CreateChannel(ctx, l.Path)
	if err != nil {
		l.cancelLoad()
		return fmt.Errorf("failed to open channel to %s: %w", l.Path, err)
	}
	l.multiplexer = multiplexer.New(reader, writer)

	l.registerHostHandlers()

	if w, ok := l.provider.(processWaiter); ok {
		l.wg.Add(1)
		go l.monitorProcess(w)
	}

	l.wg.Add(1)
	go l.handleMessages()

	if err := l.waitForReadySignal(ctx); err != nil {
		l.abort()
		return err
	}

	info, err := NewBinaryLoaderAdapter[LoadInfo, LoadInfo](l).Call(ctx, MethodLoad, LoadInfo{
		HostName:    host.Name(),
		ExtensionID: l.Name,
	})
	if err != nil {
		l.abort()
		return fmt.Errorf("failed to load extension %s: %w", l.Name, err)
	}
	l.extensionID = info.ExtensionID

	l.Log.Info("extension loaded", "id", info.ExtensionID, "version", l.Version)
	return nil
}

// Close unloads the extension, asks the module to shut down and releases the
// channel. It attempts graceful shutdown first, bounded by ShutdownTimeout.
func (l *Loader) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return errors.New("loader already closed")
	}
	if l.multiplexer == nil || l.loadCtx == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(l.loadCtx, l.options.ShutdownTimeout)
	defer cancel()

	if !l.processExited.Load() {
		if err := l.unload(ctx); err != nil {
			l.Log.Error(err, "unload failed")
		}
		l.requestShutdown(ctx)
	}

	return l.release()
}

func (l *Loader) unload(ctx context.Context) error {
	payload, err := LoadInfo{HostName: l.host.Name(), ExtensionID: l.extensionID}.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = l.call(ctx, MethodUnload, payload)
	return err
}

func (l *Loader) requestShutdown(ctx context.Context) {
	shutdownHeader := Header{
		Name:        NameShutdown,
		MessageType: MessageTypeRequest,
		Payload:     []byte("graceful shutdown"),
	}

	shutdownData, err := shutdownHeader.MarshalBinary()
	if err != nil {
		return
	}
	if err := l.multiplexer.WriteMessage(ctx, shutdownData); err != nil {
		l.Log.V(1).Info("failed to send shutdown", "error", err.Error())
		return
	}

	select {
	case <-l.shutdownAck:
	case <-ctx.Done():
		l.Log.Info("no shutdown acknowledgment, closing anyway")
	}
}

// abort tears down a loader whose Load failed.
func (l *Loader) abort() {
	l.closed.Store(true)
	if err := l.release(); err != nil {
		l.Log.V(1).Info("release after failed load", "error", err.Error())
	}
}

func (l *Loader) release() error {
	if l.cancelLoad != nil {
		l.cancelLoad()
	}

	closeErr := l.provider.Close()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(goroutineDrainTimeout):
		l.Log.Info("close timed out, some goroutines may still be running")
	}

	return closeErr
}

// monitorProcess stops the loader once the extension process exits. Close
// still has to be called to release the channel.
func (l *Loader) monitorProcess(w processWaiter) {
	defer l.wg.Done()

	err := w.Wait()
	l.processExited.Store(true)

	if !l.closed.Load() {
		l.Log.Info("extension process exited", "error", fmt.Sprint(err))
	}
	l.cancelLoad()
}

// IsProcessAlive returns true if the extension process is still running
func (l *Loader) IsProcessAlive() bool {
	return !l.processExited.Load() && !l.closed.Load()
}
