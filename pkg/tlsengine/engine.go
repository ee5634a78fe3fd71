// Package tlsengine implements §4.1's TlsEngine: a purely synchronous,
// non-blocking wrapper around crypto/tls driven entirely through in-memory
// ciphertext queues. It never touches a socket; pkg/awaitable is the only
// caller, and it is responsible for moving bytes between this engine's
// queues and the kernel.
package tlsengine

import (
	"crypto/tls"
	"crypto/x509"
	"io"

	"github.com/brickingsoft/errors"
)

type Phase uint8

const (
	NotStarted Phase = iota
	InProgress
	Completed
	Failed
)

type WantState uint8

const (
	WantNone WantState = iota
	WantRead
	WantWrite
)

// OpResult is the uniform outcome of every Engine operation: at most one of
// Want/Zero/Err is set, matching §4.1's Success|WantRead|WantWrite|
// ZeroReturn|Fatal outcome set. N is meaningful only for Read/Write Success.
type OpResult struct {
	N    int
	Want WantState
	Zero bool
	Err  error
}

func (r OpResult) Success() bool {
	return r.Want == WantNone && !r.Zero && r.Err == nil
}

// Engine is a per-connection TlsEngine. Exactly one goroutine may call into
// it at a time, per §3's concurrency invariant — it holds no internal
// locking of its own. Handshake/Read/Write each drive crypto/tls through a
// single background asyncCall per logical operation (see bio.go) so a
// blocked bioConn.Read never wedges crypto/tls's sticky handshake error;
// the caller only ever observes the poll-style OpResult contract.
type Engine struct {
	cfg       *ConfigHandle
	hostname  string
	bio       *bioConn
	conn      *tls.Conn
	phase     Phase
	closeSent bool

	hsCall *asyncCall
	rdCall *asyncCall
	wrCall *asyncCall
}

// New creates an Engine bound to cfg. The underlying *tls.Conn is not built
// until Init (called lazily by Handshake and the other engine operations,
// or explicitly by the caller).
func New(cfg *ConfigHandle) *Engine {
	return &Engine{cfg: cfg}
}

// Init allocates the inbound/outbound ciphertext queues and binds the TLS
// object to them — §4.1 init_memory_bio. Idempotent after first success.
func (e *Engine) Init() error {
	if e.conn != nil {
		return nil
	}
	tlsCfg := e.cfg.derive()
	if e.hostname != "" && e.hostname != tlsCfg.ServerName {
		cloned := tlsCfg.Clone()
		cloned.ServerName = e.hostname
		tlsCfg = cloned
	}
	e.bio = newBioConn()
	switch e.cfg.Role() {
	case RoleServer:
		e.conn = tls.Server(e.bio, tlsCfg)
	default:
		e.conn = tls.Client(e.bio, tlsCfg)
	}
	return nil
}

// SetHostname is §4.1's set_hostname: SNI for the client role, enabling
// peer-name verification. Must precede the first Handshake call.
func (e *Engine) SetHostname(name string) error {
	if e.conn != nil {
		return errors.New("tlsengine: hostname must be set before the handshake starts")
	}
	if name == "" {
		return ErrSniFailed
	}
	e.hostname = name
	return nil
}

func (e *Engine) Phase() Phase { return e.phase }

func (e *Engine) Role() Role { return e.cfg.Role() }

// FeedCiphertext writes ciphertext read off the kernel socket into the
// inbound queue — §4.1 feed_encrypted_input.
func (e *Engine) FeedCiphertext(b []byte) int {
	_ = e.Init()
	return e.bio.feed(b)
}

// DrainCiphertext copies queued outbound ciphertext into buf for the
// caller to hand to RawIo.Send — §4.1 extract_encrypted_output.
func (e *Engine) DrainCiphertext(buf []byte) int {
	_ = e.Init()
	return e.bio.drain(buf)
}

// PendingCiphertext is §4.1 pending_encrypted_output.
func (e *Engine) PendingCiphertext() int {
	if e.bio == nil {
		return 0
	}
	return e.bio.pending()
}

// Handshake is §4.1 do_handshake / §4.3.1. Completed/Failed are sticky
// terminal phases; calling Handshake again once Completed is a success
// no-op, matching the handshake phase state machine in §4.1.
//
// conn.Handshake() is started at most once, in a background goroutine:
// crypto/tls latches the first error a Handshake call returns into a
// sticky field it never clears, so calling it a second time to "resume"
// after WantRead (as a poll-and-retry engine would) just replays that
// first error forever. Subsequent calls to this method poll the same
// in-flight asyncCall instead of invoking conn.Handshake again.
func (e *Engine) Handshake() OpResult {
	if e.phase == Completed {
		return OpResult{}
	}
	if e.phase == Failed {
		return OpResult{Err: ErrHandshakeFailed}
	}
	if err := e.Init(); err != nil {
		return OpResult{Err: errors.From(ErrContextCreationFailed, errors.WithWrap(err))}
	}
	if e.hsCall == nil {
		e.phase = InProgress
		e.hsCall = newAsyncCall(e.bio, func() (int, error) { return 0, e.conn.Handshake() })
	}
	_, err, parked := e.hsCall.poll()
	if parked {
		return OpResult{Want: WantRead}
	}
	e.hsCall = nil
	if err == nil {
		e.phase = Completed
		return OpResult{}
	}
	if err == io.EOF {
		e.phase = Failed
		return OpResult{Zero: true}
	}
	e.phase = Failed
	return OpResult{Err: errors.From(ErrHandshakeFailed, errors.WithWrap(err))}
}

// Read is §4.1 read. A successful zero-byte read is impossible — the
// engine reports ZeroReturn instead, per the operation table. Like
// Handshake, a single logical Read is driven by one background asyncCall
// regardless of how many times this method is polled while it's parked.
func (e *Engine) Read(buf []byte) OpResult {
	if err := e.Init(); err != nil {
		return OpResult{Err: errors.From(ErrReadFailed, errors.WithWrap(err))}
	}
	if e.rdCall == nil {
		e.rdCall = newAsyncCall(e.bio, func() (int, error) { return e.conn.Read(buf) })
	}
	n, err, parked := e.rdCall.poll()
	if parked {
		return OpResult{Want: WantRead}
	}
	e.rdCall = nil
	if err == nil {
		if n == 0 {
			return OpResult{Zero: true}
		}
		return OpResult{N: n}
	}
	if err == io.EOF {
		return OpResult{Zero: true}
	}
	return OpResult{Err: errors.From(ErrReadFailed, errors.WithWrap(err))}
}

// Write is §4.1 write. Partial writes are legal; n may be less than
// len(buf). A WantRead return happens only on the cross-arm renegotiation
// path, where conn.Write must itself read more ciphertext before it can
// finish — ordinary writes to the non-blocking outbound queue never park.
func (e *Engine) Write(buf []byte) OpResult {
	if err := e.Init(); err != nil {
		return OpResult{Err: errors.From(ErrWriteFailed, errors.WithWrap(err))}
	}
	if e.wrCall == nil {
		e.wrCall = newAsyncCall(e.bio, func() (int, error) { return e.conn.Write(buf) })
	}
	n, err, parked := e.wrCall.poll()
	if parked {
		return OpResult{Want: WantRead}
	}
	e.wrCall = nil
	if err != nil {
		return OpResult{Err: errors.From(ErrWriteFailed, errors.WithWrap(err))}
	}
	return OpResult{N: n}
}

// Shutdown is §4.1 shutdown / §4.3.4. It queues a close_notify on first
// call and is idempotent thereafter; any error sending it is swallowed to
// success per §9's open question (a socket that cannot close gracefully
// must still be releasable). conn.CloseWrite() never reads from the bio —
// it only writes the close_notify alert into the outbound queue and leaves
// the bio open — so it is called directly rather than through an asyncCall.
// Before the handshake has completed no alert is queued.
func (e *Engine) Shutdown() OpResult {
	if e.closeSent {
		return OpResult{}
	}
	if err := e.Init(); err != nil {
		e.closeSent = true
		return OpResult{}
	}
	_ = e.conn.CloseWrite()
	e.closeSent = true
	return OpResult{}
}

// Close releases the engine's ciphertext queues and the ConfigHandle
// reference taken by Init; an engine that was never initialised holds
// neither. It does not perform a TLS shutdown — callers must
// call Shutdown first if a graceful close-notify is desired (§4.4).
func (e *Engine) Close() error {
	var bioErr, cfgErr error
	if e.bio != nil {
		bioErr = e.bio.Close()
		cfgErr = e.cfg.release()
	}
	if bioErr != nil {
		return bioErr
	}
	return cfgErr
}

// PeerCertificate supplements the distilled spec with galay-ssl's
// certificate accessor (SPEC_FULL.md §10).
func (e *Engine) PeerCertificate() (*x509.Certificate, bool) {
	if e.conn == nil {
		return nil, false
	}
	state := e.conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, false
	}
	return state.PeerCertificates[0], true
}

// NegotiatedProtocol supplements the distilled spec with galay-ssl's ALPN
// accessor.
func (e *Engine) NegotiatedProtocol() (string, bool) {
	if e.conn == nil {
		return "", false
	}
	state := e.conn.ConnectionState()
	return state.NegotiatedProtocol, state.NegotiatedProtocol != ""
}

// NegotiatedVersion supplements the distilled spec with galay-ssl's version
// accessor.
func (e *Engine) NegotiatedVersion() uint16 {
	if e.conn == nil {
		return 0
	}
	return e.conn.ConnectionState().Version
}
