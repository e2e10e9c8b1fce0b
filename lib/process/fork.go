// Package process starts extension binaries and exposes their stdio as pipes.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a running child whose stdin/stdout carry the plugin wire protocol.
type Process struct {
	cmd          *exec.Cmd
	stdinWriter  *io.PipeWriter
	stdoutReader *io.PipeReader
	stdoutWriter *io.PipeWriter

	waitOnce sync.Once
	waitErr  error
}

// Fork starts path with args. Stderr is inherited so the child's logs reach
// the host's terminal; stdout is reserved for framed messages.
func Fork(path string, args ...string) (*Process, error) {
	cmd := exec.Command(path, args...)
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	cmd.Stdin = stdinReader
	cmd.Stdout = stdoutWriter
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return &Process{
		cmd:          cmd,
		stdinWriter:  stdinWriter,
		stdoutReader: stdoutReader,
		stdoutWriter: stdoutWriter,
	}, nil
}

func (p *Process) Stdin() *io.PipeWriter {
	return p.stdinWriter
}

func (p *Process) Stdout() *io.PipeReader {
	return p.stdoutReader
}

// Wait blocks until the child exits. It is safe to call more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		// unblock readers still waiting on the child's output
		p.stdoutWriter.Close()
		if err != nil {
			p.waitErr = fmt.Errorf("process exited with error: %w", err)
		}
	})
	return p.waitErr
}

// Close closes the pipes and kills the child if it is still running.
func (p *Process) Close() error {
	if err := p.stdinWriter.Close(); err != nil {
		return fmt.Errorf("failed to close stdin writer: %w", err)
	}
	if err := p.stdoutReader.Close(); err != nil {
		return fmt.Errorf("failed to close stdout reader: %w", err)
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	return nil
}
