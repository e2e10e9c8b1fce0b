package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// UnixSocketProvider lets an extension process started elsewhere connect to
// the host over a Unix domain socket. The host listens; the extension dials
// with DialUnix.
type UnixSocketProvider struct {
	SocketPath string
	// AcceptTimeout bounds the wait for the extension to connect.
	AcceptTimeout time.Duration

	listener net.Listener
	conn     net.Conn
}

// CreateChannel implements CommunicationProvider for Unix domain sockets
func (u *UnixSocketProvider) CreateChannel(ctx context.Context, _ string) (io.Reader, io.Writer, error) {
	if u.SocketPath == "" {
		return nil, nil, errors.New("socket path is empty")
	}

	// a stale socket file from an earlier run would make Listen fail
	os.Remove(u.SocketPath)

	listener, err := net.Listen("unix", u.SocketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Unix socket listener: %w", err)
	}
	u.listener = listener

	timeout := u.AcceptTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	connChan := make(chan net.Conn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		u.conn = conn
		return conn, conn, nil
	case err := <-errChan:
		u.Close()
		return nil, nil, fmt.Errorf("failed to accept connection: %w", err)
	case <-time.After(timeout):
		u.Close()
		return nil, nil, errors.New("timeout waiting for extension to connect")
	case <-ctx.Done():
		u.Close()
		return nil, nil, ctx.Err()
	}
}

// Close implements CommunicationProvider for Unix domain sockets
func (u *UnixSocketProvider) Close() error {
	var errs []error

	if u.conn != nil {
		errs = append(errs, u.conn.Close())
		u.conn = nil
	}
	if u.listener != nil {
		// closing the listener removes the socket file
		if err := u.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		u.listener = nil
	}

	return errors.Join(errs...)
}

// WithUnixSocket creates loader options that wait for the extension on socketPath.
func WithUnixSocket(socketPath string) *LoaderOptions {
	return WithCustomProvider(&UnixSocketProvider{SocketPath: socketPath})
}

// DialUnix connects an extension process to a host listening on socketPath,
// retrying until the socket exists or ctx is done.
func DialUnix(ctx context.Context, socketPath string) (net.Conn, error) {
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "unix", socketPath)
		if err == nil {
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to Unix socket %s: %w (last error: %v)", socketPath, ctx.Err(), err)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
