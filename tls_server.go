package tlsbridge

import (
	"net"

	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/awaitable"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// TLSServer wraps an accepted plaintext fd as a server-role Socket. cfg
// must have been built with WithRole(RoleServer).
func TLSServer(fd int, addr net.Addr, ctrl *reactor.IOController, cfg *tlsengine.ConfigHandle, opts ...Option) (*Socket, error) {
	s, err := newSocket(fd, addr, ctrl, cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.handshakeFn = s.serverHandshake
	return s, nil
}

func (s *Socket) serverHandshake() async.Future[struct{}] {
	return awaitable.NewHandshake(s.ctrl, s.fd, s.engine).Start()
}
