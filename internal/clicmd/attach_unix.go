package clicmd

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySizeChange arranges for SIGWINCH to arrive on ch. The terminal's
// initial size is already sent in the Open frame; this only covers size
// changes after attach.
func notifySizeChange(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGWINCH)
}
