package attach

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/protocol"
	"github.com/amux-dev/amux/internal/ptysup"
	"github.com/amux-dev/amux/internal/registry"
)

func spawnCat(cols, rows int) (*ptysup.Supervisor, error) {
	return ptysup.Spawn(ptysup.Spec{Command: []string{"/bin/cat"}, Cols: cols, Rows: rows})
}

// S2/S3: open an attach, expect Replay frames covering the scrollback
// before any Live frame, then live echoed bytes.
func TestAttachReplaysThenStreams(t *testing.T) {
	bus := eventbus.New(0)
	reg := registry.New(bus)
	sess, err := reg.CreateSession(registry.CreateSessionParams{
		RepoID: "r1", Branch: "main", Cols: 80, Rows: 24, Spawn: spawnCat,
	})
	require.NoError(t, err)
	require.NoError(t, sess.Write([]byte("AAAAA")))
	time.Sleep(100 * time.Millisecond) // let the read loop append to scrollback

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	a := New(sess.ID, reg)
	done := make(chan error, 1)
	go func() { done <- a.Run(serverConn) }()

	openEnv, err := protocol.NewEnvelope(protocol.TypeOpen, 0, protocol.OpenPayload{InitialCols: 80, InitialRows: 24})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(clientConn, openEnv))

	// Type one byte; it is read once streaming begins, and its echo is the
	// Live frame the loop below waits for.
	go func() {
		dataEnv, err := protocol.NewEnvelope(protocol.TypeData, 1, protocol.DataPayload{Bytes: []byte("B")})
		if err == nil {
			_ = protocol.WriteFrame(clientConn, dataEnv)
		}
	}()

	replayed := []byte{}
	var gotLive bool
	for i := 0; i < 10 && !gotLive; i++ {
		env, err := protocol.ReadFrame(clientConn, 0)
		require.NoError(t, err)
		var p protocol.OutputPayload
		require.NoError(t, env.DecodePayload(&p))
		switch env.Type {
		case protocol.TypeReplay:
			replayed = append(replayed, p.Bytes...)
		case protocol.TypeLive:
			gotLive = true
		default:
			t.Fatalf("unexpected frame type %s", env.Type)
		}
	}
	require.Contains(t, string(replayed), "AAAAA")
	require.True(t, gotLive)

	closeEnv, err := protocol.NewEnvelope(protocol.TypeClose, 99, struct{}{})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(clientConn, closeEnv))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("attach did not end after Close")
	}
	require.Equal(t, PhaseClosed, a.Phase())
	require.NoError(t, reg.DestroySession(sess.ID))
}

// B3: attach to a non-existent session fails with NotFound before any
// Replay frame.
func TestAttachToMissingSessionFailsFast(t *testing.T) {
	bus := eventbus.New(0)
	reg := registry.New(bus)
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	a := New("does-not-exist", reg)
	err := a.Run(serverConn)
	require.Error(t, err)
}

// AwaitingOpen: anything other than Open as the first message closes the
// stream with a protocol error.
func TestNonOpenFirstFrameIsProtocolError(t *testing.T) {
	bus := eventbus.New(0)
	reg := registry.New(bus)
	sess, err := reg.CreateSession(registry.CreateSessionParams{RepoID: "r1", Branch: "main", Cols: 80, Rows: 24, Spawn: spawnCat})
	require.NoError(t, err)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	a := New(sess.ID, reg)
	done := make(chan error, 1)
	go func() { done <- a.Run(serverConn) }()

	badEnv, err := protocol.NewEnvelope(protocol.TypeData, 0, protocol.DataPayload{Bytes: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(clientConn, badEnv))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected protocol error")
	}
	require.NoError(t, reg.DestroySession(sess.ID))
}
