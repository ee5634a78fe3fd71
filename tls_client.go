package tlsbridge

import (
	"net"

	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/awaitable"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// TLSClient wraps an already-connected plaintext fd (from Dial) as a
// client-role Socket, configuring SNI from hostname when non-empty.
func TLSClient(fd int, addr net.Addr, ctrl *reactor.IOController, cfg *tlsengine.ConfigHandle, hostname string, opts ...Option) (*Socket, error) {
	s, err := newSocket(fd, addr, ctrl, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if hostname != "" {
		if err := s.engine.SetHostname(hostname); err != nil {
			return nil, err
		}
	}
	s.handshakeFn = s.clientHandshake
	return s, nil
}

func (s *Socket) clientHandshake() async.Future[struct{}] {
	return awaitable.NewHandshake(s.ctrl, s.fd, s.engine).Start()
}
