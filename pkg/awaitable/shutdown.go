package awaitable

import (
	"log/slog"

	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

// Shutdown drives tlsengine.Engine.Shutdown to completion — §4.3.4. Unlike
// the other three awaitables it never resolves with an error: a swallowed
// fatal close-notify failure is logged (if a logger is attached) and
// treated as success, per §9's open question — a socket that cannot close
// gracefully must still be releasable.
type Shutdown struct {
	taskBase
	flusher  outboundFlusher
	promise  async.Promise[struct{}]
	recall   bool
	resolved bool
	log      *slog.Logger
}

func NewShutdown(ctrl *reactor.IOController, fd int, engine *tlsengine.Engine, log *slog.Logger) *Shutdown {
	return &Shutdown{taskBase: newTaskBase(ctrl, fd, engine), log: log}
}

func (s *Shutdown) Start() async.Future[struct{}] {
	s.promise = async.New[struct{}]()
	s.resolved = false
	s.step()
	return s.promise.Future()
}

func (s *Shutdown) step() {
	res := s.engine.Shutdown()
	switch {
	case res.Want == tlsengine.WantRead:
		if err := s.ctrl.ArmRead(s); err != nil {
			s.warn(err)
			s.succeed()
		}
	case res.Want == tlsengine.WantWrite:
		s.recall = true
		s.driveWrite()
	default:
		if s.engine.PendingCiphertext() > 0 {
			s.recall = false
			s.driveWrite()
			return
		}
		s.succeed()
	}
}

// driveWrite is the attempt-first flush, mirroring Handshake.driveWrite:
// try to drain the outbound queue synchronously before arming.
func (s *Shutdown) driveWrite() {
	blocked, err := s.flusher.flush(s.fd, s.engine, &s.taskBase)
	if err != nil {
		s.warn(err)
		s.succeed()
		return
	}
	if blocked {
		if err := s.ctrl.ArmWrite(s); err != nil {
			s.warn(err)
			s.succeed()
		}
		return
	}
	if s.recall {
		s.step()
	} else {
		s.succeed()
	}
}

func (s *Shutdown) HandleReady(dir reactor.Direction) {
	switch dir {
	case reactor.Write:
		s.driveWrite()
	case reactor.Read:
		_, err := fillInbound(s.fd, s.engine, s.scratch)
		if err != nil {
			s.warn(err)
		}
		s.step()
	}
}

func (s *Shutdown) warn(err error) {
	if s.log == nil {
		return
	}
	s.log.Warn("tlsbridge: shutdown close_notify swallowed", "error", err)
}

func (s *Shutdown) succeed() {
	if s.resolved {
		return
	}
	s.resolved = true
	_ = s.ctrl.DisarmBoth()
	s.promise.Succeed(struct{}{})
}
