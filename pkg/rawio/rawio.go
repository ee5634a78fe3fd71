// Package rawio is the thin "raw I/O" boundary the core TLS bridge invokes
// instead of touching sockets directly — §6's raw_recv/raw_send contract.
// It operates on already non-blocking file descriptors (see pkg/sys) and
// classifies every outcome into exactly the categories §7 requires:
// NotReady (never surfaced, always triggers arming), Disconnected (peer
// EOF/reset), or Fatal.
package rawio

import (
	"syscall"

	"github.com/brickingsoft/errors"
)

type Outcome uint8

const (
	// Progressed means n bytes were actually moved; n may be 0 for Send
	// only in the documented "not progressing" case (§9 open question).
	Progressed Outcome = iota
	// NotReady means EAGAIN/EWOULDBLOCK: the direction must be armed and
	// the caller must stop draining for this wake-up.
	NotReady
	// Disconnected means the peer closed (recv: n==0 or ECONNRESET; send:
	// EPIPE/ECONNRESET).
	Disconnected
	// Fatal is any other I/O error.
	Fatal
)

type Result struct {
	N       int
	Outcome Outcome
	Err     error
}

var ErrZeroLengthBuffer = errors.Define("rawio: zero-length buffer")

// Recv performs one non-blocking read. A zero-byte result with Progressed
// outcome on a stream socket denotes peer EOF and is reported as
// Disconnected instead, so callers never have to special-case n==0.
func Recv(fd int, buf []byte) Result {
	if len(buf) == 0 {
		return Result{Outcome: Fatal, Err: ErrZeroLengthBuffer}
	}
	n, err := syscall.Read(fd, buf)
	if err != nil {
		return classify(0, err)
	}
	if n == 0 {
		return Result{Outcome: Disconnected}
	}
	return Result{N: n, Outcome: Progressed}
}

// Send performs one non-blocking write.
func Send(fd int, buf []byte) Result {
	if len(buf) == 0 {
		return Result{Outcome: Progressed}
	}
	n, err := syscall.Write(fd, buf)
	if err != nil {
		return classify(n, err)
	}
	return Result{N: n, Outcome: Progressed}
}

func classify(n int, err error) Result {
	switch err {
	case syscall.EAGAIN, syscall.EINTR:
		return Result{N: n, Outcome: NotReady}
	case syscall.ECONNRESET, syscall.EPIPE, syscall.ENOTCONN, syscall.ESHUTDOWN:
		return Result{N: n, Outcome: Disconnected, Err: err}
	default:
		return Result{N: n, Outcome: Fatal, Err: err}
	}
}
