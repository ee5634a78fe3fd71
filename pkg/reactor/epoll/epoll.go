//go:build linux

// Package epoll is the reference edge-triggered Reactor implementation used
// by this module's own tests and examples. Production callers may supply
// any Reactor; the core TLS bridge never imports this package.
package epoll

import (
	"os"
	"sync"
	"syscall"
	"unsafe"

	"github.com/kelsonware/tlsbridge/pkg/reactor"
)

// epollET is syscall.EPOLLET's bit (the high bit of the ABI's 32-bit events
// field) expressed directly as uint32 — the type EpollEvent.Events requires.
// syscall.EPOLLET is a negative int constant with that same bit pattern, which
// the compiler refuses to convert to uint32 as a constant expression.
const epollET uint32 = 1 << 31

// Poller is an edge-triggered epoll Reactor, adapted from the teacher
// module's level-triggered pkg/sys.EPoll by adding EPOLLET to every
// registration — required by §4.3's edge-triggered draining discipline.
type Poller struct {
	fd  int
	wfd int

	mu          sync.Mutex
	controllers map[int]*reactor.IOController
}

func Open() (*Poller, error) {
	fd, err := syscall.EpollCreate1(0)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	r0, _, e0 := syscall.Syscall(syscall.SYS_EVENTFD2, 0, 0, 0)
	if e0 != 0 {
		_ = syscall.Close(fd)
		return nil, os.NewSyscallError("eventfd2", e0)
	}
	p := &Poller{fd: fd, wfd: int(r0), controllers: make(map[int]*reactor.IOController)}
	if err = syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, p.wfd, &syscall.EpollEvent{
		Fd:     int32(p.wfd),
		Events: syscall.EPOLLIN,
	}); err != nil {
		_ = p.Close()
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	return p, nil
}

// Register subscribes fd with the kernel epoll instance and associates it
// with c so Run can find the controller to Dispatch to on wake-up.
func (p *Poller) Register(fd int, c *reactor.IOController) error {
	if err := syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, fd, &syscall.EpollEvent{
		Fd:     int32(fd),
		Events: epollET,
	}); err != nil {
		return err
	}
	p.mu.Lock()
	p.controllers[fd] = c
	p.mu.Unlock()
	return nil
}

// ArmRead and ArmWrite replace the fd's whole interest mask, so each keeps
// the other direction's interest when the controller has a task armed there.
func (p *Poller) ArmRead(fd int) error {
	events := uint32(syscall.EPOLLIN) | epollET
	p.mu.Lock()
	c := p.controllers[fd]
	p.mu.Unlock()
	if c != nil && c.HasWriteArmed() {
		events |= uint32(syscall.EPOLLOUT)
	}
	return syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_MOD, fd, &syscall.EpollEvent{
		Fd:     int32(fd),
		Events: events,
	})
}

func (p *Poller) ArmWrite(fd int) error {
	events := uint32(syscall.EPOLLOUT) | epollET
	p.mu.Lock()
	c := p.controllers[fd]
	p.mu.Unlock()
	if c != nil && c.HasReadArmed() {
		events |= uint32(syscall.EPOLLIN)
	}
	return syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_MOD, fd, &syscall.EpollEvent{
		Fd:     int32(fd),
		Events: events,
	})
}

// Disarm is a no-op on the kernel side: the interest mask stays set, so a
// later edge in that direction is still reported, and IOController.Dispatch
// drops it when no task is armed there. The next ArmRead/ArmWrite MOD makes
// the kernel re-report any readiness that is already present.
// It exists to satisfy the Reactor interface and to let richer reactors
// (level-triggered ones) actually unsubscribe.
func (p *Poller) Disarm(fd int, _ reactor.Direction) error {
	return nil
}

func (p *Poller) Deregister(fd int) error {
	p.mu.Lock()
	delete(p.controllers, fd)
	p.mu.Unlock()
	return syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, fd, nil)
}

func (p *Poller) Wakeup() error {
	var x uint64 = 1
	_, err := syscall.Write(p.wfd, (*(*[8]byte)(unsafe.Pointer(&x)))[:])
	return err
}

// Run blocks, dispatching readiness events to their bound IOControllers,
// until stop is closed.
func (p *Poller) Run(stop <-chan struct{}) error {
	events := make([]syscall.EpollEvent, 128)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		n, err := syscall.EpollWait(p.fd, events, 100)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.wfd {
				var data [8]byte
				_, _ = syscall.Read(p.wfd, data[:])
				continue
			}
			p.mu.Lock()
			c := p.controllers[fd]
			p.mu.Unlock()
			if c == nil {
				continue
			}
			ev := events[i].Events
			if ev&(syscall.EPOLLIN|syscall.EPOLLHUP|syscall.EPOLLERR) != 0 {
				c.Dispatch(reactor.Read)
			}
			if ev&(syscall.EPOLLOUT|syscall.EPOLLHUP|syscall.EPOLLERR) != 0 {
				c.Dispatch(reactor.Write)
			}
		}
	}
}

func (p *Poller) Close() error {
	if err := syscall.Close(p.wfd); err != nil {
		return err
	}
	return syscall.Close(p.fd)
}
