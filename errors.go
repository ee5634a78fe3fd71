package tlsbridge

import (
	"net"

	"github.com/brickingsoft/errors"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

var (
	ErrClosed     = errors.Define("tlsbridge: closed")
	ErrEmptyBytes = errors.Define("tlsbridge: empty bytes")
)

// IsClosed reports whether err denotes a socket that is already closed or
// whose peer has performed a clean TLS shutdown — both are terminal,
// non-retryable outcomes for a caller driving a Socket.
func IsClosed(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		err = opErr.Err
	}
	return errors.Is(err, ErrClosed) || errors.Is(err, tlsengine.ErrPeerClosed)
}

// IsPeerClosed reports whether err is specifically the peer-initiated
// close §7 maps peer-close-on-send/handshake to.
func IsPeerClosed(err error) bool {
	return errors.Is(err, tlsengine.ErrPeerClosed)
}

const (
	opHandshake = "handshake"
	opRecv      = "recv"
	opSend      = "send"
	opShutdown  = "shutdown"
	opConnect   = "dial"
	opAccept    = "accept"
	opListen    = "listen"
	opClose     = "close"
)

func newOpErr(op string, addr net.Addr, err error) *net.OpError {
	return &net.OpError{Op: op, Net: "tcp", Addr: addr, Err: err}
}
