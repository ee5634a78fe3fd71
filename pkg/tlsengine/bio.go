package tlsengine

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelsonware/tlsbridge/pkg/bytebufferpool"
)

// memAddr satisfies net.Addr for the memory-BIO connection; it names
// nothing real since no socket is involved at this layer.
type memAddr struct{}

func (memAddr) Network() string { return "memory-bio" }
func (memAddr) String() string  { return "memory-bio" }

// bioConn is the fake net.Conn crypto/tls.Conn is driven over. Read blocks
// the calling goroutine until ciphertext is fed or the bio is closed — a
// genuine blocking net.Conn, not a poll-and-retry stub. This matters
// because crypto/tls.Conn latches the *first* error any call to Handshake
// returns into c.handshakeErr and replays it forever afterwards
// (conn.go's handshakeContext/handshakeErr), unlike the record layer's
// post-handshake Read/Write path, which tolerates a retryable net.Error
// and is happy to be called again. A Read that returns a "come back later"
// error — however Temporary() it claims to be — permanently wedges the
// handshake the moment it is used during Handshake(); see
// morbidsteve-netbird's bioPair and ooni-minivpn's tlsBio for the same
// bridge built the correct way, with a goroutine blocked on a channel
// standing in for the network. Engine drives conn.Handshake/Read/Write in
// a background goroutine per operation and polls bioConn's parked state
// instead of ever letting crypto/tls retry a call itself.
type bioConn struct {
	mu       sync.Mutex
	inbound  bytebufferpool.Buffer
	outbound bytebufferpool.Buffer

	parked  atomic.Bool
	changed chan struct{}
	feedCh  chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newBioConn() *bioConn {
	return &bioConn{
		inbound:  bytebufferpool.Get(),
		outbound: bytebufferpool.Get(),
		changed:  make(chan struct{}, 1),
		feedCh:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func (c *bioConn) setParked(v bool) {
	c.parked.Store(v)
	notify(c.changed)
}

// notify is a non-blocking, level-triggered wake: it never blocks the
// sender, and a pending token is never lost, only coalesced — the
// receiver always re-checks the real state after waking rather than
// trusting the notification count.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (c *bioConn) Read(p []byte) (int, error) {
	for {
		c.mu.Lock()
		if !c.inbound.Empty() {
			n, _ := c.inbound.Read(p)
			c.mu.Unlock()
			return n, nil
		}
		c.parked.Store(true)
		c.mu.Unlock()
		notify(c.changed)

		select {
		case <-c.feedCh:
		case <-c.closed:
			c.setParked(false)
			return 0, io.EOF
		}
	}
}

func (c *bioConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	n, err := c.outbound.Write(p)
	c.mu.Unlock()
	return n, err
}

func (c *bioConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	c.mu.Lock()
	bytebufferpool.Put(c.inbound)
	bytebufferpool.Put(c.outbound)
	c.mu.Unlock()
	return nil
}

func (c *bioConn) LocalAddr() net.Addr                { return memAddr{} }
func (c *bioConn) RemoteAddr() net.Addr               { return memAddr{} }
func (c *bioConn) SetDeadline(_ time.Time) error      { return nil }
func (c *bioConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *bioConn) SetWriteDeadline(_ time.Time) error { return nil }

// feed appends ciphertext bytes read off the kernel socket to the inbound
// queue and wakes a Read parked waiting for it — §4.1 feed_encrypted_input.
// The parked flag is cleared here, under the same lock Read uses to set it,
// so a poll that follows a feed waits for the reader to consume the new bytes
// instead of seeing the stale parked state.
func (c *bioConn) feed(b []byte) int {
	c.mu.Lock()
	n, _ := c.inbound.Write(b)
	c.parked.Store(false)
	c.mu.Unlock()
	notify(c.feedCh)
	return n
}

// drain copies up to len(buf) queued outbound ciphertext bytes into buf —
// §4.1 extract_encrypted_output.
func (c *bioConn) drain(buf []byte) int {
	c.mu.Lock()
	n, _ := c.outbound.Read(buf)
	c.mu.Unlock()
	return n
}

func (c *bioConn) pending() int {
	c.mu.Lock()
	n := c.outbound.Len()
	c.mu.Unlock()
	return n
}

// asyncCall runs a single blocking crypto/tls call (Handshake/Read/Write) in
// its own goroutine, so the goroutine — not this package's caller — is the
// one parked inside bioConn.Read. poll reports the call's externally
// observable state (terminal, or parked waiting on ciphertext) without ever
// calling back into crypto/tls a second time for the same logical
// operation.
type asyncCall struct {
	bio  *bioConn
	done chan struct{}
	n    int
	err  error
}

func newAsyncCall(bio *bioConn, fn func() (int, error)) *asyncCall {
	c := &asyncCall{bio: bio, done: make(chan struct{})}
	go func() {
		c.n, c.err = fn()
		close(c.done)
	}()
	return c
}

// poll blocks only long enough to learn whether the call has finished or is
// currently parked on bio's inbound queue; it never calls fn again.
func (c *asyncCall) poll() (n int, err error, parked bool) {
	for {
		select {
		case <-c.done:
			return c.n, c.err, false
		default:
		}
		if c.bio.parked.Load() {
			return 0, nil, true
		}
		select {
		case <-c.done:
			return c.n, c.err, false
		case <-c.bio.changed:
		}
	}
}
