package awaitable

import (
	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// hsPhase tracks why a write is currently armed, so driveWrite knows what
// to do once the outbound queue drains — §4.3.1.
type hsPhase uint8

const (
	hsAttempt       hsPhase = iota // no write pending; call Handshake() directly
	hsFlushOnly                    // flushing ciphertext produced alongside a WantRead; a concurrently-armed read will re-drive the handshake
	hsFlushThenGo                  // flushing a WantWrite's ciphertext; re-drive the handshake once drained
	hsFlushThenDone                // flushing the final flight after Success; complete once drained
)

// Handshake drives tlsengine.Engine.Handshake to completion — §4.3.1.
type Handshake struct {
	taskBase
	flusher  outboundFlusher
	phase    hsPhase
	promise  async.Promise[struct{}]
	resolved bool
}

func NewHandshake(ctrl *reactor.IOController, fd int, engine *tlsengine.Engine) *Handshake {
	return &Handshake{taskBase: newTaskBase(ctrl, fd, engine)}
}

func (h *Handshake) Start() async.Future[struct{}] {
	h.promise = async.New[struct{}]()
	h.phase = hsAttempt
	h.resolved = false
	h.step()
	return h.promise.Future()
}

func (h *Handshake) step() {
	res := h.engine.Handshake()
	switch {
	case res.Err != nil:
		h.fail(res.Err)
	case res.Zero:
		h.fail(tlsengine.ErrPeerClosed)
	case res.Want == tlsengine.WantRead:
		if h.engine.PendingCiphertext() > 0 {
			h.phase = hsFlushOnly
			h.driveWrite()
			if h.resolved {
				return
			}
		}
		if err := h.ctrl.ArmRead(h); err != nil {
			h.fail(err)
		}
	case res.Want == tlsengine.WantWrite:
		h.phase = hsFlushThenGo
		h.driveWrite()
	default:
		if h.engine.PendingCiphertext() > 0 {
			h.phase = hsFlushThenDone
			h.driveWrite()
			return
		}
		h.succeed()
	}
}

// driveWrite attempts to flush the outbound ciphertext queue synchronously
// (the attempt-first step applied to the write direction); if the kernel
// blocks mid-flush it arms the write direction, otherwise it advances
// immediately according to why the flush was started.
func (h *Handshake) driveWrite() {
	blocked, err := h.flusher.flush(h.fd, h.engine, &h.taskBase)
	if err != nil {
		h.fail(err)
		return
	}
	if blocked {
		if err := h.ctrl.ArmWrite(h); err != nil {
			h.fail(err)
		}
		return
	}
	switch h.phase {
	case hsFlushThenGo:
		h.phase = hsAttempt
		h.step()
	case hsFlushThenDone:
		h.succeed()
	case hsFlushOnly:
		// nothing further: the armed read task re-drives the handshake.
	}
}

func (h *Handshake) HandleReady(dir reactor.Direction) {
	switch dir {
	case reactor.Write:
		h.driveWrite()
	case reactor.Read:
		disconnected, err := fillInbound(h.fd, h.engine, h.scratch)
		if err != nil {
			h.fail(err)
			return
		}
		if disconnected {
			h.fail(tlsengine.ErrPeerClosed)
			return
		}
		h.phase = hsAttempt
		h.step()
	}
}

func (h *Handshake) succeed() {
	if h.resolved {
		return
	}
	h.resolved = true
	_ = h.ctrl.DisarmBoth()
	h.promise.Succeed(struct{}{})
}

func (h *Handshake) fail(err error) {
	if h.resolved {
		return
	}
	h.resolved = true
	_ = h.ctrl.DisarmBoth()
	h.promise.Fail(err)
}
