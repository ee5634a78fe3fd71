package awaitable_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/awaitable"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/reactor/epoll"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// harness wires up a real edge-triggered epoll reactor plus a pair of
// connected non-blocking UNIX-domain socket fds, so the awaitable state
// machines exercise genuine NotReady/re-arm cycles rather than mocked I/O.
type harness struct {
	t       *testing.T
	poller  *epoll.Poller
	stop    chan struct{}
	clientA int
	clientB int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	poller, err := epoll.Open()
	require.NoError(t, err)
	h := &harness{t: t, poller: poller, stop: make(chan struct{}), clientA: fds[0], clientB: fds[1]}
	go func() {
		_ = poller.Run(h.stop)
	}()
	t.Cleanup(func() {
		close(h.stop)
		_ = poller.Close()
		_ = syscall.Close(h.clientA)
		_ = syscall.Close(h.clientB)
	})
	return h
}

func (h *harness) controller(fd int) *reactor.IOController {
	ctrl, err := reactor.NewIOController(h.poller, fd)
	require.NoError(h.t, err)
	return ctrl
}

func newEngines(t *testing.T, cert tls.Certificate) (client, server *tlsengine.Engine) {
	t.Helper()
	serverCfg, err := tlsengine.NewConfigHandle(
		tlsengine.WithRole(tlsengine.RoleServer),
		tlsengine.WithCertificate(cert),
	)
	require.NoError(t, err)
	clientCfg, err := tlsengine.NewConfigHandle(
		tlsengine.WithRole(tlsengine.RoleClient),
		tlsengine.WithVerifyMode(tlsengine.VerifyNone),
		tlsengine.WithHostname("localhost"),
	)
	require.NoError(t, err)
	return tlsengine.New(clientCfg), tlsengine.New(serverCfg)
}

func handshakeBoth(t *testing.T, h *harness) (clientSock, serverSock *reactor.IOController, clientEngine, serverEngine *tlsengine.Engine) {
	t.Helper()
	cert := selfSignedCert(t)
	clientEngine, serverEngine = newEngines(t, cert)
	clientSock = h.controller(h.clientA)
	serverSock = h.controller(h.clientB)

	clientFuture := awaitable.NewHandshake(clientSock, h.clientA, clientEngine).Start()
	serverFuture := awaitable.NewHandshake(serverSock, h.clientB, serverEngine).Start()

	_, cErr := async.Await(clientFuture)
	require.NoError(t, cErr)
	_, sErr := async.Await(serverFuture)
	require.NoError(t, sErr)
	return
}

func TestHandshakeCompletes(t *testing.T) {
	h := newHarness(t)
	_, _, clientEngine, serverEngine := handshakeBoth(t, h)
	require.Equal(t, tlsengine.Completed, clientEngine.Phase())
	require.Equal(t, tlsengine.Completed, serverEngine.Phase())
}

func TestSendRecvRoundTrip(t *testing.T) {
	h := newHarness(t)
	clientCtrl, serverCtrl, clientEngine, serverEngine := handshakeBoth(t, h)

	payload := []byte("hello over the tls bridge")
	sendFuture := awaitable.NewSend(clientCtrl, h.clientA, clientEngine).Start(payload)

	recvBuf := make([]byte, 64)
	recvFuture := awaitable.NewRecv(serverCtrl, h.clientB, serverEngine).Start(recvBuf)

	n, sErr := async.Await(sendFuture)
	require.NoError(t, sErr)
	require.Equal(t, len(payload), n)

	got, rErr := async.Await(recvFuture)
	require.NoError(t, rErr)
	require.Equal(t, payload, got)
}

// TestRecvFlushesPendingCiphertextCrossArm is the §4.3.5/§8 cross-arm test:
// a Recv must flush ciphertext the engine is holding in its outbound queue
// before it can deliver anything, regardless of what Engine.Read's Want
// reports — Engine.Read only ever reports WantRead, never a distinct
// WantWrite, so Recv cannot rely on the Want tag to notice this. The
// server's direct Engine.Write call stands in for what a real post-
// handshake KeyUpdate reply would do: queue ciphertext into the outbound
// buffer without ever calling Send. Before the fix this ciphertext would
// be stranded forever — the test fails by timing out on clientFuture if
// the flush regresses.
func TestRecvFlushesPendingCiphertextCrossArm(t *testing.T) {
	h := newHarness(t)
	clientCtrl, serverCtrl, clientEngine, serverEngine := handshakeBoth(t, h)

	wRes := serverEngine.Write([]byte("crossarm"))
	require.NoError(t, wRes.Err)
	require.Equal(t, 8, wRes.N)
	require.Greater(t, serverEngine.PendingCiphertext(), 0)

	serverRecvBuf := make([]byte, 64)
	serverRecvFuture := awaitable.NewRecv(serverCtrl, h.clientB, serverEngine).Start(serverRecvBuf)

	clientRecvBuf := make([]byte, 64)
	clientRecvFuture := awaitable.NewRecv(clientCtrl, h.clientA, clientEngine).Start(clientRecvBuf)
	crossArmed, cErr := async.Await(clientRecvFuture)
	require.NoError(t, cErr)
	require.Equal(t, []byte("crossarm"), crossArmed)
	require.Zero(t, serverEngine.PendingCiphertext())

	sendFuture := awaitable.NewSend(clientCtrl, h.clientA, clientEngine).Start([]byte("ping"))
	sn, sErr := async.Await(sendFuture)
	require.NoError(t, sErr)
	require.Equal(t, 4, sn)

	got, rErr := async.Await(serverRecvFuture)
	require.NoError(t, rErr)
	require.Equal(t, []byte("ping"), got)
}

func TestRecvReportsPeerClose(t *testing.T) {
	h := newHarness(t)
	clientCtrl, serverCtrl, clientEngine, serverEngine := handshakeBoth(t, h)

	shutdownFuture := awaitable.NewShutdown(clientCtrl, h.clientA, clientEngine, nil).Start()
	_, err := async.Await(shutdownFuture)
	require.NoError(t, err)

	recvBuf := make([]byte, 64)
	recvFuture := awaitable.NewRecv(serverCtrl, h.clientB, serverEngine).Start(recvBuf)
	got, rErr := async.Await(recvFuture)
	require.NoError(t, rErr)
	require.Empty(t, got)
}
