package tlsbridge

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kelsonware/tlsbridge/pkg/async"
	"github.com/kelsonware/tlsbridge/pkg/reactor"
	"github.com/kelsonware/tlsbridge/pkg/reactor/epoll"
	"github.com/kelsonware/tlsbridge/pkg/tlsengine"
)

func selfSignedLoopbackCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
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

func TestListenDialHandshakeSendRecvShutdown(t *testing.T) {
	poller, err := epoll.Open()
	require.NoError(t, err)
	stop := make(chan struct{})
	go func() { _ = poller.Run(stop) }()
	t.Cleanup(func() {
		close(stop)
		_ = poller.Close()
	})

	ln, err := Listen("tcp", "127.0.0.1:0", poller)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	serverCfg, err := tlsengine.NewConfigHandle(
		tlsengine.WithRole(tlsengine.RoleServer),
		tlsengine.WithCertificate(selfSignedLoopbackCert(t)),
	)
	require.NoError(t, err)

	accepted := make(chan *Socket, 1)
	acceptErr := make(chan error, 1)
	go func() {
		// Accept is a single non-blocking accept4; retry until a connection
		// is queued.
		srv, err := ln.Accept(serverCfg)
		for errors.Is(err, syscall.EAGAIN) {
			time.Sleep(10 * time.Millisecond)
			srv, err = ln.Accept(serverCfg)
		}
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- srv
	}()

	clientCfg, err := tlsengine.NewConfigHandle(
		tlsengine.WithRole(tlsengine.RoleClient),
		tlsengine.WithVerifyMode(tlsengine.VerifyNone),
	)
	require.NoError(t, err)

	fd, addr, err := Dial("tcp", ln.Addr().String(), 2*time.Second, poller)
	require.NoError(t, err)
	clientCtrl, err := reactor.NewIOController(poller, fd.Socket())
	require.NoError(t, err)
	client, err := TLSClient(fd.Socket(), addr, clientCtrl, clientCfg, "127.0.0.1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var server *Socket
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
	t.Cleanup(func() { _ = server.Close() })

	clientDone := make(chan error, 1)
	go func() { _, err := async.Await(client.Handshake()); clientDone <- err }()
	_, err = async.Await(server.Handshake())
	require.NoError(t, err)
	require.NoError(t, <-clientDone)

	payload := []byte("hello over the tls bridge")
	sendDone := make(chan error, 1)
	go func() {
		_, err := async.Await(client.Send(payload))
		sendDone <- err
	}()

	buf := make([]byte, 256)
	got, err := async.Await(server.Recv(buf))
	require.NoError(t, err)
	require.NoError(t, <-sendDone)
	require.Equal(t, payload, got)

	cert, ok := server.PeerCertificate()
	_ = cert
	require.False(t, ok) // client presented no certificate.

	shutdownDone := make(chan error, 1)
	go func() { _, err := async.Await(client.Shutdown()); shutdownDone <- err }()
	_, err = async.Await(server.Shutdown())
	require.NoError(t, err)
	require.NoError(t, <-shutdownDone)
}
