package plugin

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-logr/logr"

	"github.com/mcengine/essentialskript/lib/process"
)

// CommunicationProvider is an interface for creating communication channels
type CommunicationProvider interface {
	// CreateChannel creates a communication channel and returns reader/writer
	CreateChannel(ctx context.Context, path string) (io.Reader, io.Writer, error)
	// Close cleans up any resources
	Close() error
}

// processWaiter is implemented by providers backed by a child process.
type processWaiter interface {
	Wait() error
}

// StdioProvider runs the extension binary as a child process and talks to it
// over its stdin and stdout.
type StdioProvider struct {
	Args []string

	process *process.Process
}

// CreateChannel implements CommunicationProvider for stdio
func (s *StdioProvider) CreateChannel(ctx context.Context, path string) (io.Reader, io.Writer, error) {
	if s.process != nil {
		return nil, nil, errors.New("process already started")
	}
	p, err := process.Fork(path, s.Args...)
	if err != nil {
		return nil, nil, err
	}
	s.process = p
	return p.Stdout(), p.Stdin(), nil
}

// Wait blocks until the child process exits.
func (s *StdioProvider) Wait() error {
	if s.process == nil {
		return nil
	}
	return s.process.Wait()
}

// Close implements CommunicationProvider for stdio
func (s *StdioProvider) Close() error {
	if s.process == nil {
		return nil
	}
	return s.process.Close()
}

// CustomProvider allows using custom io.Reader/Writer
type CustomProvider struct {
	Reader io.Reader
	Writer io.Writer
}

// CreateChannel implements CommunicationProvider for custom IO
func (c *CustomProvider) CreateChannel(ctx context.Context, path string) (io.Reader, io.Writer, error) {
	if c.Reader == nil || c.Writer == nil {
		return nil, nil, errors.New("custom provider needs both a reader and a writer")
	}
	return c.Reader, c.Writer, nil
}

// Close closes the reader and writer when they are closers.
func (c *CustomProvider) Close() error {
	var errs []error
	if closer, ok := c.Writer.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if closer, ok := c.Reader.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// LoaderOptions defines options for creating a Loader
type LoaderOptions struct {
	// Provider specifies the communication provider
	Provider CommunicationProvider

	Log logr.Logger

	// ReadyTimeout bounds the wait for the first ready signal; the loader asks
	// once more before giving up.
	ReadyTimeout time.Duration
	// CallTimeout bounds the host's handling of a request from the extension.
	CallTimeout time.Duration
	// ShutdownTimeout bounds unload and the shutdown handshake on Close.
	ShutdownTimeout time.Duration
}

// DefaultLoaderOptions returns default options using stdio communication
func DefaultLoaderOptions() *LoaderOptions {
	return &LoaderOptions{
		Provider:        &StdioProvider{},
		Log:             logr.Discard(),
		ReadyTimeout:    5 * time.Second,
		CallTimeout:     30 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

// WithCustomProvider creates loader options with custom communication provider
func WithCustomProvider(provider CommunicationProvider) *LoaderOptions {
	opts := DefaultLoaderOptions()
	opts.Provider = provider
	return opts
}

func (o *LoaderOptions) withDefaults() *LoaderOptions {
	def := DefaultLoaderOptions()
	if o == nil {
		return def
	}
	out := *o
	if out.Provider == nil {
		out.Provider = def.Provider
	}
	if out.Log.GetSink() == nil {
		out.Log = def.Log
	}
	if out.ReadyTimeout <= 0 {
		out.ReadyTimeout = def.ReadyTimeout
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = def.CallTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = def.ShutdownTimeout
	}
	return &out
}
