package launcher

import (
	"syscall"
	"time"
)

// killTree terminates the process and all its descendants: SIGTERM to the
// process group, a grace period, then SIGKILL if it is still running.
// Termination errors are logged and swallowed; killing an already-dead
// process must never fail the attempt. The wait channel is drained so the
// child is reaped before the next attempt can start.
func (l *Launcher) killTree(pid int, waitCh <-chan error) {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		l.log.Warn("failed to resolve process group", map[string]interface{}{"pid": pid, "error": err.Error()})
		pgid = pid
	}

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		l.log.Warn("failed to send SIGTERM to process group", map[string]interface{}{"pgid": pgid, "error": err.Error()})
	}

	select {
	case <-waitCh:
		return
	case <-time.After(l.killGrace):
	}

	l.log.Warn("process did not terminate gracefully, sending SIGKILL", map[string]interface{}{"pgid": pgid})
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		l.log.Warn("failed to send SIGKILL to process group", map[string]interface{}{"pgid": pgid, "error": err.Error()})
	}

	<-waitCh
}
