package daemon

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/amux-dev/amux/internal/attach"
)

// attachUpgradeToken is the value of the Upgrade header a client must send
// to open an AttachSession stream (spec §6, §4.5).
const attachUpgradeToken = "amux-attach-v1"

// attachHandler implements GET /v1/attach/{id}: an HTTP-Upgrade-then-hijack
// handshake, a same-uid peer-credential check, then handing the raw
// connection to internal/attach.Session.Run.
//
// Grounded on the teacher's ttyV2SessionHandler/verifyTTYV2PeerConn: same
// Upgrade-header check, same Hijack/101-response/peer-credential sequence.
// The peer-credential syscall itself is adapted for Linux (SO_PEERCRED via
// unix.GetsockoptUcred) rather than the teacher's LOCAL_PEERCRED/Xucred,
// which is BSD/Darwin-specific.
func (s *Server) attachHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/attach/")
	id = strings.Trim(id, "/")
	if id == "" {
		s.writeError(w, fmt.Errorf("session id required"))
		return
	}
	if !strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), attachUpgradeToken) {
		s.writeError(w, fmt.Errorf("upgrade header %q required", attachUpgradeToken))
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		s.writeError(w, fmt.Errorf("hijack not supported"))
		return
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		s.writeError(w, fmt.Errorf("hijack failed: %w", err))
		return
	}
	defer conn.Close() //nolint:errcheck

	if err := verifyPeerUID(conn); err != nil {
		_, _ = rw.WriteString("HTTP/1.1 403 Forbidden\r\nConnection: close\r\n\r\n")
		_ = rw.Flush()
		s.log.WithError(err).WithField("session_id", id).Warn("attach peer credential check failed")
		return
	}

	if _, err := rw.WriteString("HTTP/1.1 101 Switching Protocols\r\nUpgrade: " + attachUpgradeToken + "\r\nConnection: Upgrade\r\n\r\n"); err != nil {
		return
	}
	if err := rw.Flush(); err != nil {
		return
	}

	a := attach.New(id, s.reg)
	if err := a.Run(rw); err != nil {
		s.log.WithError(err).WithField("session_id", id).Warn("attach session ended with error")
	}
}

// verifyPeerUID rejects a connection from a Unix-domain-socket peer whose
// effective UID doesn't match this process's, so one user's daemon can
// never be attached to by another's client.
func verifyPeerUID(conn net.Conn) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("attach requires a unix domain socket connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return fmt.Errorf("peer syscall conn: %w", err)
	}
	var peerUID uint32
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			credErr = err
			return
		}
		peerUID = cred.Uid
	}); err != nil {
		return fmt.Errorf("peer control: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("peer credentials: %w", credErr)
	}
	if expected := uint32(os.Getuid()); peerUID != expected {
		return fmt.Errorf("peer uid %d does not match daemon uid %d", peerUID, expected)
	}
	return nil
}
