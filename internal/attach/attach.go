// Package attach implements the per-connection state machine of spec
// §4.5: AwaitingOpen -> Replaying -> Streaming -> {Closed | Exited}.
//
// It is transport-agnostic: it reads/writes protocol.Envelope frames over
// any io.ReadWriter. internal/daemon wires it to a hijacked Unix socket
// connection (grounded on internal/daemon/tty_v2.go's
// ttyV2SessionHandler).
package attach

import (
	"fmt"
	"io"
	"sync"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/broadcaster"
	"github.com/amux-dev/amux/internal/protocol"
	"github.com/amux-dev/amux/internal/registry"
	"github.com/amux-dev/amux/internal/session"
)

// Phase is the per-attach state machine stage.
type Phase string

const (
	PhaseAwaitingOpen Phase = "awaiting_open"
	PhaseReplaying    Phase = "replaying"
	PhaseStreaming    Phase = "streaming"
	PhaseClosed       Phase = "closed"
	PhaseExited       Phase = "exited"
)

// replayChunkSize bounds how large a single Replay frame's payload is, so
// a multi-megabyte scrollback doesn't produce one huge frame.
//
// Replay runs synchronously before the client's reader goroutine starts in
// stream: a well-behaved client has nothing legitimate to send between Open
// and the first Live/Resync frame, so there is no window in which Data
// needs buffering. A client that writes early simply blocks on its own send
// buffer until Streaming begins.
const replayChunkSize = 32 * 1024

// Session drives one attach connection end to end: SessionID must already
// exist in the registry.
type Session struct {
	SessionID string
	reg       *registry.Registry

	mu    sync.Mutex
	phase Phase
	seq   uint64
}

// New creates an attach Session bound to the given registry.
func New(sessionID string, reg *registry.Registry) *Session {
	return &Session{SessionID: sessionID, reg: reg, phase: PhaseAwaitingOpen}
}

// Phase returns the current state (test/metrics hook).
func (a *Session) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Session) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *Session) nextSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return a.seq
}

// Run drives the full attach lifecycle against rw until the client closes,
// the session exits, or a protocol violation occurs. It blocks until one
// of those terminal conditions.
//
// B3: if SessionID does not exist in the registry, Run returns ErrNotFound
// before writing any frame (not even having read Open yet is fine — the
// caller is expected to resolve the session before constructing the attach
// Session in the daemon handler; Run re-validates defensively).
func (a *Session) Run(rw io.ReadWriter) error {
	sess, ok := a.reg.Get(a.SessionID)
	if !ok {
		return fmt.Errorf("%w: session %s", amuxerr.ErrNotFound, a.SessionID)
	}

	open, err := a.awaitOpen(rw)
	if err != nil {
		return err
	}
	if open.InitialCols > 0 && open.InitialRows > 0 {
		_ = sess.Resize(open.InitialCols, open.InitialRows)
	}

	// Subscribe before snapshotting (not the other way around) so the
	// snapshot and the live feed can never both miss, or both carry, the
	// same chunk of PTY output (see session.SubscribeForReplay).
	sub, snap := sess.SubscribeForReplay()
	defer sess.Broadcaster.Unsubscribe(sub)

	if err := a.replay(rw, snap); err != nil {
		return err
	}

	return a.stream(rw, sess, sub)
}

func (a *Session) awaitOpen(rw io.ReadWriter) (protocol.OpenPayload, error) {
	env, err := protocol.ReadFrame(rw, 0)
	if err != nil {
		return protocol.OpenPayload{}, fmt.Errorf("%w: %v", amuxerr.ErrProtocol, err)
	}
	if env.Type != protocol.TypeOpen {
		a.setPhase(PhaseClosed)
		return protocol.OpenPayload{}, fmt.Errorf("%w: expected open, got %s", amuxerr.ErrProtocol, env.Type)
	}
	var open protocol.OpenPayload
	if err := env.DecodePayload(&open); err != nil {
		return protocol.OpenPayload{}, fmt.Errorf("%w: %v", amuxerr.ErrProtocol, err)
	}
	a.setPhase(PhaseReplaying)
	return open, nil
}

// replay emits snap (the scrollback snapshot captured by SubscribeForReplay,
// already ordered against the broadcaster subscription it came with) as one
// or more Replay frames, then atomically transitions to Streaming. P2: all
// Replay frames precede all Live frames.
func (a *Session) replay(rw io.ReadWriter, snap []byte) error {
	for len(snap) > 0 {
		n := replayChunkSize
		if n > len(snap) {
			n = len(snap)
		}
		env, err := protocol.NewEnvelope(protocol.TypeReplay, a.nextSeq(), protocol.OutputPayload{Bytes: snap[:n]})
		if err != nil {
			return err
		}
		if err := protocol.WriteFrame(rw, env); err != nil {
			return fmt.Errorf("%w: %v", amuxerr.ErrIO, err)
		}
		snap = snap[n:]
	}
	a.setPhase(PhaseStreaming)
	return nil
}

// stream runs the Streaming phase: a reader goroutine forwards client
// Data/Resize/Close, and the main goroutine drains sub (subscribed back in
// Run, before replay) and the PTY exit signal, emitting Live/Resync/Exit
// frames.
func (a *Session) stream(rw io.ReadWriter, sess *session.Session, sub *broadcaster.Subscriber) error {
	type inboundMsg struct {
		env protocol.Envelope
		err error
	}
	inbound := make(chan inboundMsg)
	go func() {
		for {
			env, err := protocol.ReadFrame(rw, 0)
			inbound <- inboundMsg{env, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-inbound:
			if msg.err != nil {
				a.setPhase(PhaseClosed)
				return nil // client disconnected; not a protocol error
			}
			switch msg.env.Type {
			case protocol.TypeData:
				var p protocol.DataPayload
				if err := msg.env.DecodePayload(&p); err != nil {
					return fmt.Errorf("%w: %v", amuxerr.ErrProtocol, err)
				}
				_ = sess.Write(p.Bytes)
			case protocol.TypeResize:
				var p protocol.ResizePayload
				if err := msg.env.DecodePayload(&p); err != nil {
					return fmt.Errorf("%w: %v", amuxerr.ErrProtocol, err)
				}
				_ = sess.Resize(p.Cols, p.Rows)
			case protocol.TypeClose:
				a.setPhase(PhaseClosed)
				return nil
			default:
				return fmt.Errorf("%w: unexpected frame %s in streaming phase", amuxerr.ErrProtocol, msg.env.Type)
			}

		case chunk, ok := <-sub.Chunks():
			if !ok {
				// Broadcaster closed: the session was destroyed out from under us.
				return a.emitExit(rw, sess)
			}
			frameType := protocol.TypeLive
			if chunk.Resync {
				frameType = protocol.TypeResync
			}
			env, err := protocol.NewEnvelope(frameType, a.nextSeq(), protocol.OutputPayload{Bytes: chunk.Data})
			if err != nil {
				return err
			}
			if err := protocol.WriteFrame(rw, env); err != nil {
				return fmt.Errorf("%w: %v", amuxerr.ErrIO, err)
			}

		case <-sess.Done():
			return a.emitExit(rw, sess)
		}
	}
}

func (a *Session) emitExit(rw io.ReadWriter, sess *session.Session) error {
	code := 0
	if info := sess.Info(); info.ExitCode != nil {
		code = *info.ExitCode
	}
	a.setPhase(PhaseExited)
	env, err := protocol.NewEnvelope(protocol.TypeExit, a.nextSeq(), protocol.ExitPayload{Code: code})
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(rw, env); err != nil {
		return fmt.Errorf("%w: %v", amuxerr.ErrIO, err)
	}
	return nil
}
