package awaitable

import (
	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/rawio"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// Send drives a single plaintext write to completion — §4.3.3. It
// interleaves three cursors: plainOffset (how much of the caller's buffer
// the engine has accepted), the outbound ciphertext queue (what the engine
// has produced but the kernel hasn't taken yet), and the flusher's own
// chunk cursor (the remainder of the current drain-quantum chunk, which
// must survive across wake-ups since it has already left the engine's
// queue).
type Send struct {
	taskBase
	plain       []byte
	plainOffset int
	flusher     outboundFlusher
	promise     async.Promise[int]
	resolved    bool
}

func NewSend(ctrl *reactor.IOController, fd int, engine *tlsengine.Engine) *Send {
	return &Send{taskBase: newTaskBase(ctrl, fd, engine)}
}

func (s *Send) Start(plain []byte) async.Future[int] {
	s.plain = plain
	s.plainOffset = 0
	s.promise = async.New[int]()
	s.resolved = false
	s.fillAndSend()
	return s.promise.Future()
}

// fillAndSend is both the attempt-first step and the wake-resumption step:
// it alternates between draining the current ciphertext chunk to the
// kernel and feeding the engine more plaintext, until the whole buffer has
// been accepted and flushed, or it must suspend.
func (s *Send) fillAndSend() {
	for {
		if len(s.flusher.chunk) > 0 {
			if !s.trySendChunk() {
				return
			}
			continue
		}
		if s.engine.PendingCiphertext() > 0 {
			s.growScratch(s.engine.PendingCiphertext())
			n := s.engine.DrainCiphertext(s.scratch)
			if n == 0 {
				return
			}
			s.flusher.chunk = s.scratch[:n]
			continue
		}
		if s.plainOffset < len(s.plain) {
			res := s.engine.Write(s.plain[s.plainOffset:])
			switch {
			case res.Err != nil:
				s.fail(res.Err)
				return
			case res.Want == tlsengine.WantRead:
				// Renegotiation needs inbound data before the engine can
				// accept more plaintext — §4.3.5 cross-arm.
				if err := s.ctrl.ArmRead(s); err != nil {
					s.fail(err)
				}
				return
			case res.Zero || res.N == 0:
				s.fail(tlsengine.ErrWriteFailed)
				return
			default:
				s.plainOffset += res.N
				continue
			}
		}
		s.succeed(len(s.plain))
		return
	}
}

// trySendChunk pushes the flusher's current chunk to the kernel, returning
// true if the caller should keep looping (chunk fully drained this call,
// or partially drained and still progressing) and false if it suspended —
// either by arming a write (NotReady) or by resolving the awaitable.
func (s *Send) trySendChunk() bool {
	res := rawio.Send(s.fd, s.flusher.chunk)
	switch res.Outcome {
	case rawio.Progressed:
		if res.N == 0 {
			// §9 open question: a Write task's sent==0 is never retried
			// inline; treat it as a stall and wait for the next writable
			// edge instead, matching outboundFlusher.flush's handling.
			if err := s.ctrl.ArmWrite(s); err != nil {
				s.fail(err)
			}
			return false
		}
		s.flusher.chunk = s.flusher.chunk[res.N:]
		return true
	case rawio.NotReady:
		if err := s.ctrl.ArmWrite(s); err != nil {
			s.fail(err)
		}
		return false
	default:
		s.fail(res.Err)
		return false
	}
}

func (s *Send) HandleReady(dir reactor.Direction) {
	switch dir {
	case reactor.Write:
		s.fillAndSend()
	case reactor.Read:
		disconnected, err := fillInbound(s.fd, s.engine, s.scratch)
		if err != nil {
			s.fail(err)
			return
		}
		if disconnected {
			s.fail(tlsengine.ErrPeerClosed)
			return
		}
		s.fillAndSend()
	}
}

func (s *Send) succeed(n int) {
	if s.resolved {
		return
	}
	s.resolved = true
	_ = s.ctrl.DisarmBoth()
	s.promise.Succeed(n)
}

func (s *Send) fail(err error) {
	if s.resolved {
		return
	}
	s.resolved = true
	_ = s.ctrl.DisarmBoth()
	s.promise.Fail(err)
}
