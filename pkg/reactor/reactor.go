// Package reactor defines the minimal interest-registration contract the
// TLS bridge requires from whatever event loop drives it, and the two-slot
// IOController every TlsSocket owns. The reactor itself (epoll, kqueue,
// io_uring) is an external collaborator; this package only fixes the shape
// of the boundary.
package reactor

import (
	"sync"

	"github.com/brickingsoft/errors"
)

// Direction is which half of a connection an awaitable is waiting on.
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Task is resumed by the reactor when its registered direction becomes
// ready. Implementations live in pkg/awaitable; handleReady must drain the
// kernel socket to NotReady before returning, per the edge-triggered
// draining discipline.
type Task interface {
	HandleReady(dir Direction)
}

// Reactor is the capability set a concrete event loop must expose. Arming a
// direction that is already armed, or disarming one that isn't, are no-ops
// from the caller's perspective — concrete reactors decide how to represent
// that internally (resubscribe vs. leave alone).
type Reactor interface {
	// Register subscribes fd with the reactor and associates it with c, so
	// the reactor's wake loop can find the right IOController to Dispatch
	// to without a separate binding step.
	Register(fd int, c *IOController) error
	ArmRead(fd int) error
	ArmWrite(fd int) error
	Disarm(fd int, dir Direction) error
	Deregister(fd int) error
}

var (
	// ErrAlreadyArmed signals a programming error: IoController invariant
	// §4.2 forbids more than one pending task per direction.
	ErrAlreadyArmed = errors.Define("reactor: direction already armed")
)

// IOController is the per-connection registration described in §4.2/§5: a
// socket handle plus at most one pending read task and one pending write
// task. It is exclusively owned by its TlsSocket and carries no locks of
// its own beyond what is needed to protect the two task slots from a
// concurrent reactor wake-up racing a same-goroutine arm call.
type IOController struct {
	reactor Reactor
	fd      int

	mu        sync.Mutex
	readTask  Task
	writeTask Task
}

func NewIOController(r Reactor, fd int) (*IOController, error) {
	c := &IOController{reactor: r, fd: fd}
	if err := r.Register(fd, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *IOController) Fd() int {
	return c.fd
}

// ArmRead registers task to be resumed on the next readable event. Arming
// while a read task is already pending is a programming error per §4.2.
func (c *IOController) ArmRead(task Task) error {
	c.mu.Lock()
	if c.readTask != nil {
		c.mu.Unlock()
		return ErrAlreadyArmed
	}
	c.readTask = task
	c.mu.Unlock()
	return c.reactor.ArmRead(c.fd)
}

// ArmWrite is the write-direction counterpart of ArmRead.
func (c *IOController) ArmWrite(task Task) error {
	c.mu.Lock()
	if c.writeTask != nil {
		c.mu.Unlock()
		return ErrAlreadyArmed
	}
	c.writeTask = task
	c.mu.Unlock()
	return c.reactor.ArmWrite(c.fd)
}

// DisarmRead clears the read slot, regardless of whether a task was armed.
// Every terminal awaitable path must call this (and/or DisarmWrite) before
// its result becomes observable — §4.3 step 5, §7.
func (c *IOController) DisarmRead() error {
	c.mu.Lock()
	had := c.readTask != nil
	c.readTask = nil
	c.mu.Unlock()
	if !had {
		return nil
	}
	return c.reactor.Disarm(c.fd, Read)
}

func (c *IOController) DisarmWrite() error {
	c.mu.Lock()
	had := c.writeTask != nil
	c.writeTask = nil
	c.mu.Unlock()
	if !had {
		return nil
	}
	return c.reactor.Disarm(c.fd, Write)
}

// DisarmBoth clears both slots unconditionally — the common terminal path.
func (c *IOController) DisarmBoth() error {
	rErr := c.DisarmRead()
	wErr := c.DisarmWrite()
	if rErr != nil {
		return rErr
	}
	return wErr
}

func (c *IOController) HasReadArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readTask != nil
}

func (c *IOController) HasWriteArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeTask != nil
}

// Dispatch is invoked by the reactor's wake loop when fd becomes ready in
// dir. It hands off to whichever task is currently armed for that
// direction, clearing the slot first so a task that re-arms itself
// (handshake cross-arming) does not collide with ErrAlreadyArmed.
func (c *IOController) Dispatch(dir Direction) {
	c.mu.Lock()
	var task Task
	if dir == Read {
		task, c.readTask = c.readTask, nil
	} else {
		task, c.writeTask = c.writeTask, nil
	}
	c.mu.Unlock()
	if task != nil {
		task.HandleReady(dir)
	}
}

// Close deregisters the controller's fd from its reactor. It does not close
// the fd itself — ownership of the socket handle belongs to the Socket, per
// §4.4 ("close does not auto-run shutdown").
func (c *IOController) Close() error {
	_ = c.DisarmBoth()
	return c.reactor.Deregister(c.fd)
}
