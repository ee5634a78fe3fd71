package tlsbridge

import (
	"net"
	"os"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/sys"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
	"golang.org/x/sys/unix"
)

// Listener accepts plaintext TCP connections and wraps each one as a
// Socket — the "bind"/"listen"/"accept" third of §4.4's TlsSocket
// operation list. It delegates the actual syscalls to pkg/sys, the
// teacher module's own socket plumbing.
type Listener struct {
	network string
	fd      *sys.Fd
	reactor reactor.Reactor
}

// Listen binds and listens on address, per §4.4 bind+listen.
func Listen(network, address string, r reactor.Reactor) (*Listener, error) {
	ln, err := sys.NewListener(network, address)
	if err != nil {
		return nil, errors.New("tlsbridge: listen failed", errors.WithWrap(err))
	}
	fd, err := ln.Listen(sys.ListenOptions{})
	if err != nil {
		return nil, newOpErr(opListen, nil, err)
	}
	return &Listener{network: network, fd: fd, reactor: r}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.fd.LocalAddr()
}

// Accept performs one non-blocking accept4. Callers that need to await
// readiness should register the listener's fd with their own reactor and
// retry on EAGAIN — accept itself has no awaitable wrapper in this module
// since accept-queue draining is Non-goal-adjacent connection-pool policy,
// not a TLS bridge concern (§1).
func (l *Listener) Accept(cfg *tlsengine.ConfigHandle, opts ...Option) (*Socket, error) {
	nfd, sa, err := syscall.Accept4(l.fd.Socket(), syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
	if err != nil {
		return nil, newOpErr(opAccept, l.Addr(), os.NewSyscallError("accept4", err))
	}
	addr := sys.SockaddrToAddr(l.network, sa)
	ctrl, err := reactor.NewIOController(l.reactor, nfd)
	if err != nil {
		_ = syscall.Close(nfd)
		return nil, err
	}
	sock, err := TLSServer(nfd, addr, ctrl, cfg, opts...)
	if err != nil {
		_ = ctrl.Close()
		_ = syscall.Close(nfd)
		return nil, err
	}
	return sock, nil
}

func (l *Listener) Close() error {
	return l.fd.Close()
}

func closeFd(fd int) error {
	return syscall.Close(fd)
}

// Dial performs a non-blocking TCP connect, waits up to timeout for it to
// settle, and returns the connected plaintext fd and the resolved address,
// ready to be wrapped by TLSClient, per §4.4's "connect".
func Dial(network, address string, timeout time.Duration, r reactor.Reactor) (fd *sys.Fd, addr net.Addr, err error) {
	resolved, family, ipv6only, resolveErr := sys.ResolveAddr(network, address)
	if resolveErr != nil {
		return nil, nil, errors.New("tlsbridge: resolve failed", errors.WithWrap(resolveErr))
	}
	sock, sockErr := sys.NewSocket(family, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if sockErr != nil {
		return nil, nil, newOpErr(opConnect, resolved, sockErr)
	}
	f := sys.NewFd(network, sock, family, syscall.SOCK_STREAM)
	if ipv6only {
		_ = f.SetIpv6only(true)
	}
	sa, saErr := sys.AddrToSockaddr(resolved)
	if saErr != nil {
		_ = f.Close()
		return nil, nil, newOpErr(opConnect, resolved, saErr)
	}
	if connErr := syscall.Connect(sock, sa); connErr != nil && connErr != syscall.EINPROGRESS {
		_ = f.Close()
		return nil, nil, newOpErr(opConnect, resolved, os.NewSyscallError("connect", connErr))
	}
	deadline := time.Now().Add(timeout)
	for {
		writable, pollErr := pollWritable(sock, deadline)
		if pollErr != nil {
			_ = f.Close()
			return nil, nil, newOpErr(opConnect, resolved, pollErr)
		}
		if writable {
			break
		}
	}
	if errno, getErr := syscall.GetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_ERROR); getErr == nil && errno != 0 {
		_ = f.Close()
		return nil, nil, newOpErr(opConnect, resolved, syscall.Errno(errno))
	}
	f.SetRemoteAddr(resolved)
	return f, resolved, nil
}

// pollWritable blocks this goroutine (not a coroutine) until sock is
// writable or timeout; only used to settle the connect() handshake before
// handing the fd to an IOController, which is otherwise never blocking.
func pollWritable(sock int, deadline time.Time) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(sock), Events: unix.POLLOUT}}
	remaining := int(time.Until(deadline).Milliseconds())
	if remaining < 0 {
		remaining = 0
	}
	n, err := unix.Poll(fds, remaining)
	if err != nil {
		if err == syscall.EINTR {
			return false, nil
		}
		return false, os.NewSyscallError("poll", err)
	}
	if n == 0 {
		return false, errors.Define("tlsbridge: connect timed out")
	}
	return true, nil
}
