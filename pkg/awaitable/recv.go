package awaitable

import (
	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/rawio"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// Recv drives a single plaintext read to completion — §4.3.2. Every wake on
// the read direction drains the kernel socket fully to NotReady regardless
// of whether a decode already succeeded mid-drain, so edge-triggered
// readiness is never lost; once a terminal outcome is reached the loop
// stops re-invoking the engine but keeps feeding ciphertext it already
// pulled off the kernel into the inbound queue for the next Recv.
type Recv struct {
	taskBase
	buf      []byte
	flusher  outboundFlusher
	promise  async.Promise[[]byte]
	resolved bool
	// deferred holds a read outcome whose delivery is blocked on flushing
	// ciphertext the engine queued while producing it (see handleReadOutcome).
	deferred *tlsengine.OpResult
}

func NewRecv(ctrl *reactor.IOController, fd int, engine *tlsengine.Engine) *Recv {
	return &Recv{taskBase: newTaskBase(ctrl, fd, engine)}
}

func (r *Recv) Start(buf []byte) async.Future[[]byte] {
	r.buf = buf
	r.promise = async.New[[]byte]()
	r.resolved = false
	r.attempt()
	return r.promise.Future()
}

// attempt is the attempt-first step: call Engine.Read directly, without
// touching the kernel, before ever suspending.
func (r *Recv) attempt() {
	r.handleReadOutcome(r.engine.Read(r.buf))
}

// handleReadOutcome reacts to one Engine.Read call. A read can make the
// engine queue ciphertext of its own — a post-handshake KeyUpdate or
// renegotiation reply — that must reach the peer before anything else
// progresses (§4.3.5's cross-arm). Engine.Read only ever reports WantRead
// for this, never a distinct WantWrite, so the flush is driven off
// PendingCiphertext directly rather than off res.Want.
func (r *Recv) handleReadOutcome(res tlsengine.OpResult) {
	if res.Err != nil {
		r.fail(res.Err)
		return
	}
	if r.engine.PendingCiphertext() > 0 {
		r.deferred = &res
		r.driveWrite()
		return
	}
	r.deliver(res)
}

// deliver acts on a read outcome that has no ciphertext left stranded
// behind it.
func (r *Recv) deliver(res tlsengine.OpResult) {
	switch {
	case res.Zero:
		r.succeed(nil)
	case res.Want == tlsengine.WantRead:
		if err := r.ctrl.ArmRead(r); err != nil {
			r.fail(err)
		}
	default:
		r.succeed(r.buf[:res.N])
	}
}

// driveWrite flushes the cross-arm ciphertext queued by handleReadOutcome.
// Once the queue is empty it either delivers the outcome that triggered the
// flush, or — if nothing was deferred, meaning this call arrived via
// HandleReady(Write) after an earlier ArmWrite — resumes the read.
func (r *Recv) driveWrite() {
	blocked, err := r.flusher.flush(r.fd, r.engine, &r.taskBase)
	if err != nil {
		r.fail(err)
		return
	}
	if blocked {
		if err := r.ctrl.ArmWrite(r); err != nil {
			r.fail(err)
		}
		return
	}
	if r.deferred != nil {
		res := *r.deferred
		r.deferred = nil
		r.deliver(res)
		return
	}
	r.attempt()
}

// tryEngineRead calls Engine.Read once during a read-direction drain and
// resolves the awaitable if the outcome is terminal. It returns true once
// the awaitable should stop calling the engine for the rest of this wake.
func (r *Recv) tryEngineRead() bool {
	res := r.engine.Read(r.buf)
	if res.Err != nil {
		r.fail(res.Err)
		return true
	}
	if r.engine.PendingCiphertext() > 0 {
		r.deferred = &res
		r.driveWrite()
		return true
	}
	switch {
	case res.Zero:
		r.succeed(nil)
		return true
	case res.Want == tlsengine.WantRead:
		return false
	default:
		r.succeed(r.buf[:res.N])
		return true
	}
}

func (r *Recv) HandleReady(dir reactor.Direction) {
	switch dir {
	case reactor.Read:
		resolved := false
		for {
			res := rawio.Recv(r.fd, r.scratch)
			switch res.Outcome {
			case rawio.Progressed:
				r.engine.FeedCiphertext(r.scratch[:res.N])
				if !resolved && r.tryEngineRead() {
					resolved = true
				}
				continue
			case rawio.Disconnected:
				if !resolved {
					r.succeed(nil)
				}
				return
			case rawio.Fatal:
				if !resolved {
					r.fail(res.Err)
				}
				return
			}
			break // NotReady
		}
		if !resolved {
			r.attempt()
		}
	case reactor.Write:
		r.driveWrite()
	}
}

func (r *Recv) succeed(b []byte) {
	if r.resolved {
		return
	}
	r.resolved = true
	_ = r.ctrl.DisarmBoth()
	r.promise.Succeed(b)
}

func (r *Recv) fail(err error) {
	if r.resolved {
		return
	}
	r.resolved = true
	_ = r.ctrl.DisarmBoth()
	r.promise.Fail(err)
}
