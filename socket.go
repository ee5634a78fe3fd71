// Package tlsbridge glues a synchronous, memory-buffered TLS engine
// (pkg/tlsengine, itself a crypto/tls wrapper) to a cooperative I/O
// reactor (pkg/reactor) via the four awaitable state machines in
// pkg/awaitable. Socket is the façade a coroutine scheduler actually
// calls — §4.4's TlsSocket.
package tlsbridge

import (
	"crypto/x509"
	"log/slog"
	"net"

	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/awaitable"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// Socket is movable, not copyable: it owns the fd, the IOController's
// registration, and the Engine's ciphertext queues, so copying a Socket
// value would duplicate ownership of all three. Callers must pass *Socket.
type Socket struct {
	fd          int
	addr        net.Addr
	ctrl        *reactor.IOController
	engine      *tlsengine.Engine
	log         *slog.Logger
	closed      bool
	handshakeFn func() async.Future[struct{}]
}

func newSocket(fd int, addr net.Addr, ctrl *reactor.IOController, cfg *tlsengine.ConfigHandle, opts ...Option) (*Socket, error) {
	options := &Options{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return &Socket{
		fd:     fd,
		addr:   addr,
		ctrl:   ctrl,
		engine: tlsengine.New(cfg),
		log:    options.Logger,
	}, nil
}

// wrapOp attaches op/addr context to a future's error, matching the
// net.OpError shape net/http and friends already expect from a net.Conn-like
// type.
func wrapOp[R any](op string, addr net.Addr, future async.Future[R]) async.Future[R] {
	p := async.New[R]()
	future.OnComplete(func(r R, err error) {
		if err != nil {
			err = newOpErr(op, addr, err)
		}
		p.Complete(r, err)
	})
	return p.Future()
}

func (s *Socket) Addr() net.Addr { return s.addr }

func (s *Socket) Fd() int { return s.fd }

// Handshake is §4.4's "handshake" operation. It dispatches through
// handshakeFn, set by TLSClient/TLSServer to clientHandshake/
// serverHandshake respectively — both drive the same role-agnostic
// Engine.Handshake underneath, since the role was already fixed at
// construction, but the split mirrors the teacher module's own
// client/server handshake dispatch.
func (s *Socket) Handshake() async.Future[struct{}] {
	if s.handshakeFn != nil {
		return wrapOp(opHandshake, s.addr, s.handshakeFn())
	}
	return wrapOp(opHandshake, s.addr, awaitable.NewHandshake(s.ctrl, s.fd, s.engine).Start())
}

// Recv is §4.4's "recv" operation. An empty (nil) result with a nil
// error denotes a clean peer-initiated close on read, per §7.
func (s *Socket) Recv(buf []byte) async.Future[[]byte] {
	if len(buf) == 0 {
		return async.FailedFuture[[]byte](ErrEmptyBytes)
	}
	return wrapOp(opRecv, s.addr, awaitable.NewRecv(s.ctrl, s.fd, s.engine).Start(buf))
}

// Send is §4.4's "send" operation.
func (s *Socket) Send(buf []byte) async.Future[int] {
	if len(buf) == 0 {
		return async.FailedFuture[int](ErrEmptyBytes)
	}
	return wrapOp(opSend, s.addr, awaitable.NewSend(s.ctrl, s.fd, s.engine).Start(buf))
}

// Shutdown is §4.4's "shutdown" operation — never fails, per §9, but is
// still wrapped for symmetry with the other three operations.
func (s *Socket) Shutdown() async.Future[struct{}] {
	return wrapOp(opShutdown, s.addr, awaitable.NewShutdown(s.ctrl, s.fd, s.engine, s.log).Start())
}

// Close is §4.4's "close": it releases the reactor registration, the
// engine's ciphertext queues and its ConfigHandle reference, and the fd
// itself. It does not perform a TLS shutdown first — callers that want a
// graceful close_notify must call Shutdown before Close.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	ctrlErr := s.ctrl.Close()
	engineErr := s.engine.Close()
	fdErr := closeFd(s.fd)
	switch {
	case ctrlErr != nil:
		return newOpErr(opClose, s.addr, ctrlErr)
	case engineErr != nil:
		return newOpErr(opClose, s.addr, engineErr)
	case fdErr != nil:
		return newOpErr(opClose, s.addr, fdErr)
	}
	return nil
}

// PeerCertificate, NegotiatedProtocol and NegotiatedVersion surface
// galay-ssl's certificate/ALPN/version accessors through the façade —
// SPEC_FULL.md §10's "HandleOption accessors".
func (s *Socket) PeerCertificate() (*x509.Certificate, bool) { return s.engine.PeerCertificate() }
func (s *Socket) NegotiatedProtocol() (string, bool)         { return s.engine.NegotiatedProtocol() }
func (s *Socket) TLSVersion() uint16                         { return s.engine.NegotiatedVersion() }
