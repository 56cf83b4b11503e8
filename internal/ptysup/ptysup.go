// Package ptysup owns the one component with unavoidable OS specifics
// (spec §9): spawning an agent under a pseudo-terminal and exposing
// write/resize/kill plus a read loop. It is kept behind this narrow
// interface so the rest of the daemon never imports creack/pty directly.
//
// Grounded on other_examples/wandb-catnip__pty.go (resize-on-message) and
// other_examples/ehrlich-b-wingthing__server.go (graceful-termination via
// cmd.Cancel, done channel, exit-code capture).
package ptysup

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/amux-dev/amux/internal/amuxerr"
)

// KillGrace is how long Kill waits after SIGTERM before escalating to
// SIGKILL (spec §4.2).
const KillGrace = 2 * time.Second

// ReadChunkSize is the maximum size of a single PTY read (spec §4.2).
const ReadChunkSize = 64 * 1024

// Spec is the input to Spawn.
type Spec struct {
	Command []string
	Env     []string
	Dir     string
	Cols    int
	Rows    int
}

// Supervisor owns a single PTY-backed child process.
type Supervisor struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu       sync.Mutex
	cols     int
	rows     int
	closed   bool
	exitCode int

	done chan struct{} // closed once the read loop has reaped the child
}

// Spawn wraps exec/pty start errors in amuxerr.ErrSpawnFailed; an empty
// command is returned as a plain error.

// Spawn starts the command under a new PTY sized cols x rows.
func Spawn(spec Spec) (*Supervisor, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("ptysup: empty command")
	}
	cmd := exec.CommandContext(context.Background(), spec.Command[0], spec.Command[1:]...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = KillGrace

	cols, rows := spec.Cols, spec.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", amuxerr.ErrSpawnFailed, err)
	}

	return &Supervisor{
		cmd:  cmd,
		ptmx: ptmx,
		cols: cols,
		rows: rows,
		done: make(chan struct{}),
	}, nil
}

// PID returns the child process id.
func (s *Supervisor) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Write pushes bytes to the PTY master, retrying partial writes until all
// bytes are consumed or the PTY is closed.
func (s *Supervisor) Write(p []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return amuxerr.ErrWriteClosed
	}
	for len(p) > 0 {
		n, err := s.ptmx.Write(p)
		if err != nil {
			return fmt.Errorf("pty write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// Resize issues the terminal window-size control. A no-op if dimensions
// are unchanged (spec B2).
func (s *Supervisor) Resize(cols, rows int) error {
	s.mu.Lock()
	if cols == s.cols && rows == s.rows {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("%w: %v", amuxerr.ErrResizeFailed, err)
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Dimensions returns the last-known cols, rows.
func (s *Supervisor) Dimensions() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Kill sends SIGTERM, then SIGKILL after KillGrace. Idempotent.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	proc := s.cmd.Process
	s.mu.Unlock()
	if proc == nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
	go func() {
		select {
		case <-s.done:
		case <-time.After(KillGrace):
			_ = proc.Kill()
		}
	}()
}

// Done returns a channel closed once the read loop has reaped the child.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// ExitCode returns the process exit code; only meaningful after Done() is
// closed.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Run executes the read loop: blocks on the master, reads up to
// ReadChunkSize, invokes onChunk for each read, until EOF or error, then
// reaps the child and closes Done(). onChunk must not block significantly;
// it is expected to append to scrollback and publish to the broadcaster.
//
// Run returns once the loop has fully finished; callers run it in its own
// goroutine (spec §5: "each session owns one long-lived read-loop task").
func (s *Supervisor) Run(onChunk func([]byte)) {
	buf := make([]byte, ReadChunkSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunkCopy := make([]byte, n)
			copy(chunkCopy, buf[:n])
			onChunk(chunkCopy)
		}
		if err != nil {
			if err != io.EOF {
				// Treat any PTY read error as session termination (spec §7:
				// transient read errors never propagate to the runtime).
			}
			break
		}
	}
	s.finish()
}

func (s *Supervisor) finish() {
	_ = s.ptmx.Close()
	_ = s.cmd.Wait()
	code := -1
	if s.cmd.ProcessState != nil {
		code = s.cmd.ProcessState.ExitCode()
	}
	s.mu.Lock()
	s.closed = true
	s.exitCode = code
	s.mu.Unlock()
	close(s.done)
}
