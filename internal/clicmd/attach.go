package clicmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/amux-dev/amux/internal/config"
	"github.com/amux-dev/amux/internal/protocol"
)

// newAttachCmd drives the attach protocol (spec §4.5) directly against the
// controlling terminal: raw mode, a SIGWINCH-driven resize loop, one
// goroutine forwarding stdin as Data frames, the main goroutine rendering
// Replay/Live/Resync frames to stdout.
//
// Raw-mode-plus-SIGWINCH-plus-blocking-stdin-reader is the shape every
// PTY-attached CLI in the pack uses (other_examples/dcosson-h2's
// RunInteractive: term.GetSize, a dedicated raw-mode setup, a SIGWINCH
// listener, a blocking input-reading goroutine); amux's version drives
// internal/protocol frames over the daemon socket instead of writing
// straight to a local PTY.
func newAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <session-id>",
		Short: "attach to a running session's terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context(), args[0])
		},
	}
}

func runAttach(ctx context.Context, sessionID string) error {
	path := socketPath
	if path == "" {
		cfg, err := config.Load(config.DefaultConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.SocketPath
	}

	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return fmt.Errorf("get terminal size (is this a terminal?): %w", err)
	}

	c, err := client()
	if err != nil {
		return err
	}
	conn, err := c.AttachSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	openEnv, err := protocol.NewEnvelope(protocol.TypeOpen, 1, protocol.OpenPayload{
		SessionID: sessionID, InitialCols: cols, InitialRows: rows,
	})
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(conn, openEnv); err != nil {
		return fmt.Errorf("send open frame: %w", err)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	resized := make(chan os.Signal, 1)
	notifySizeChange(resized)
	defer signal.Stop(resized)

	done := make(chan struct{})
	go forwardStdin(conn, done)
	go forwardResizes(conn, fd, resized, done)

	return renderFrames(conn, done)
}

func forwardStdin(conn io.Writer, done chan struct{}) {
	var seq uint64 = 2
	buf := make([]byte, 32*1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			seq++
			env, envErr := protocol.NewEnvelope(protocol.TypeData, seq, protocol.DataPayload{Bytes: append([]byte(nil), buf[:n]...)})
			if envErr == nil {
				_ = protocol.WriteFrame(conn, env)
			}
		}
		if err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func forwardResizes(conn io.Writer, fd int, resized <-chan os.Signal, done chan struct{}) {
	var seq uint64 = 1_000_000
	for {
		select {
		case <-done:
			return
		case <-resized:
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			seq++
			env, err := protocol.NewEnvelope(protocol.TypeResize, seq, protocol.ResizePayload{Cols: cols, Rows: rows})
			if err == nil {
				_ = protocol.WriteFrame(conn, env)
			}
		}
	}
}

func renderFrames(conn io.Reader, done chan struct{}) error {
	defer close(done)
	for {
		env, err := protocol.ReadFrame(conn, 0)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		switch env.Type {
		case protocol.TypeReplay, protocol.TypeLive, protocol.TypeResync:
			var p protocol.OutputPayload
			if err := env.DecodePayload(&p); err != nil {
				return err
			}
			if _, err := os.Stdout.Write(p.Bytes); err != nil {
				return err
			}
		case protocol.TypeExit:
			var p protocol.ExitPayload
			if err := env.DecodePayload(&p); err == nil && p.Code != 0 {
				fmt.Fprintf(os.Stderr, "\r\nsession exited with code %d\r\n", p.Code)
			}
			return nil
		}
	}
}
