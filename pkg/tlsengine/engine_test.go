package tlsengine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedForTest(t *testing.T) tls.Certificate {
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

func TestEngineAccessorsBeforeInit(t *testing.T) {
	cfg, err := NewConfigHandle(WithRole(RoleClient))
	require.NoError(t, err)
	e := New(cfg)

	_, ok := e.PeerCertificate()
	require.False(t, ok)
	_, ok = e.NegotiatedProtocol()
	require.False(t, ok)
	require.Zero(t, e.NegotiatedVersion())
	require.Equal(t, NotStarted, e.Phase())

	require.NoError(t, e.Close())
}

func TestEngineFeedAndDrainCiphertext(t *testing.T) {
	cfg, err := NewConfigHandle(WithRole(RoleClient))
	require.NoError(t, err)
	e := New(cfg)
	require.NoError(t, e.Init())

	n := e.FeedCiphertext([]byte("not-a-real-tls-record"))
	require.Equal(t, 21, n)
	require.Equal(t, 0, e.PendingCiphertext())

	require.NoError(t, e.Close())
}

func TestEngineServerHandshakeWaitsForClientHello(t *testing.T) {
	cfg, err := NewConfigHandle(WithRole(RoleServer), WithCertificate(selfSignedForTest(t)))
	require.NoError(t, err)
	e := New(cfg)
	res := e.Handshake()
	// No ciphertext fed yet: the server side waits for the ClientHello.
	require.Equal(t, WantRead, res.Want)
	require.NoError(t, e.Close())
}

// TestEngineHandshakeRoundTripCompletes shuttles a real handshake flight
// between two Engines with no socket or awaitable involved, driving each
// side's Handshake() repeatedly the way pkg/awaitable does on every wake.
// This is the regression test for the sticky handshakeErr bug: a poll
// loop that re-invokes conn.Handshake() after feeding it ServerHello bytes
// would fail here (a replayed handshake error, or no progress within
// maxRounds) instead of reaching Completed.
func TestEngineHandshakeRoundTripCompletes(t *testing.T) {
	serverCfg, err := NewConfigHandle(WithRole(RoleServer), WithCertificate(selfSignedForTest(t)))
	require.NoError(t, err)
	clientCfg, err := NewConfigHandle(WithRole(RoleClient), WithVerifyMode(VerifyNone))
	require.NoError(t, err)

	client := New(clientCfg)
	server := New(serverCfg)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	shuttle := func(from, to *Engine) bool {
		buf := make([]byte, 16*1024)
		moved := false
		for {
			n := from.DrainCiphertext(buf)
			if n == 0 {
				break
			}
			to.FeedCiphertext(buf[:n])
			moved = true
		}
		return moved
	}

	const maxRounds = 50
	for i := 0; i < maxRounds; i++ {
		clientRes := client.Handshake()
		serverRes := server.Handshake()

		if client.Phase() == Completed && server.Phase() == Completed {
			break
		}
		require.Nil(t, clientRes.Err)
		require.Nil(t, serverRes.Err)

		movedToServer := shuttle(client, server)
		movedToClient := shuttle(server, client)
		if !movedToServer && !movedToClient &&
			client.Phase() != Completed && server.Phase() != Completed {
			t.Fatalf("handshake stalled at round %d with nothing to shuttle (client=%v server=%v)",
				i, client.Phase(), server.Phase())
		}
	}

	require.Equal(t, Completed, client.Phase())
	require.Equal(t, Completed, server.Phase())
}
