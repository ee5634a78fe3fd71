// Package awaitable is the heart of the bridge: the four state machines —
// Handshake, Recv, Send, Shutdown — that compose a tlsengine.Engine, a
// reactor.IOController and rawio into coroutine-awaitable operations, per
// §4.3. Every type here implements reactor.Task and is driven by the
// common attempt-first / arm / drain-to-NotReady / re-drive / terminal
// skeleton described there.
package awaitable

import (
	"github.com/kelsonware/tlsbridge/pkg/rawio"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

const (
	minScratch = 16 * 1024
	maxScratch = 64 * 1024
)

func newScratch() []byte {
	return make([]byte, minScratch)
}

// taskBase is the shared state every awaitable needs: the controller and
// fd to arm/drain against, the engine it drives, and its own ciphertext
// scratch buffer (§3 "TlsAwaitable" — owned for the awaitable's lifetime,
// grown by doubling, never shrunk, capped at maxScratch).
type taskBase struct {
	ctrl    *reactor.IOController
	fd      int
	engine  *tlsengine.Engine
	scratch []byte
}

func newTaskBase(ctrl *reactor.IOController, fd int, engine *tlsengine.Engine) taskBase {
	return taskBase{ctrl: ctrl, fd: fd, engine: engine, scratch: newScratch()}
}

func (t *taskBase) growScratch(want int) {
	if want <= len(t.scratch) || len(t.scratch) >= maxScratch {
		return
	}
	n := len(t.scratch)
	for n < want && n < maxScratch {
		n *= 2
	}
	if n > maxScratch {
		n = maxScratch
	}
	t.scratch = make([]byte, n)
}

// fillInbound drains the kernel socket into the engine's inbound
// ciphertext queue until the kernel reports NotReady, the peer
// disconnects, or a fatal error occurs — the mandatory edge-triggered
// drain discipline from §4.3 step 3 / §9.
func fillInbound(fd int, engine *tlsengine.Engine, scratch []byte) (disconnected bool, err error) {
	for {
		res := rawio.Recv(fd, scratch)
		switch res.Outcome {
		case rawio.Progressed:
			engine.FeedCiphertext(scratch[:res.N])
		case rawio.NotReady:
			return false, nil
		case rawio.Disconnected:
			return true, nil
		default:
			return false, res.Err
		}
	}
}

// outboundFlusher drains the engine's outbound ciphertext queue to the
// kernel, one drain-quantum chunk at a time, retaining any unsent
// remainder of the current chunk across wake-ups (§4.3.3 "chunk cursor").
type outboundFlusher struct {
	chunk []byte
}

// flush returns blocked=true if the kernel went NotReady (or a terminal
// condition occurred) before the outbound queue was fully drained; the
// caller must (re-)arm the write direction in that case. err is non-nil
// only on a fatal raw I/O error or peer disconnect.
func (f *outboundFlusher) flush(fd int, engine *tlsengine.Engine, t *taskBase) (blocked bool, err error) {
	for {
		if len(f.chunk) == 0 {
			if engine.PendingCiphertext() == 0 {
				return false, nil
			}
			t.growScratch(engine.PendingCiphertext())
			n := engine.DrainCiphertext(t.scratch)
			if n == 0 {
				return false, nil
			}
			f.chunk = t.scratch[:n]
		}
		res := rawio.Send(fd, f.chunk)
		switch res.Outcome {
		case rawio.Progressed:
			if res.N == 0 {
				// §9 open question: a Write task's sent==0 is never
				// retried; treat it as a stall, not fatal, but stop here.
				return true, nil
			}
			f.chunk = f.chunk[res.N:]
		case rawio.NotReady:
			return true, nil
		default:
			return true, res.Err
		}
	}
}
