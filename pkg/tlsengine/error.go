package tlsengine

import "github.com/brickingsoft/errors"

// TlsError is the tagged-union error kind from §3 ("TlsError"). Every
// sentinel below is a distinct errors.Define value; callers use errors.Is
// against these to classify a failure, and the underlying TLS-library
// error (if any) is attached with errors.WithWrap.
var (
	ErrContextCreationFailed = errors.Define("tlsengine: context creation failed")
	ErrCertLoadFailed        = errors.Define("tlsengine: certificate load failed")
	ErrKeyLoadFailed         = errors.Define("tlsengine: key load failed")
	ErrKeyMismatch           = errors.Define("tlsengine: certificate/key mismatch")
	ErrCaLoadFailed          = errors.Define("tlsengine: CA load failed")
	ErrHandshakeFailed       = errors.Define("tlsengine: handshake failed")
	ErrReadFailed            = errors.Define("tlsengine: read failed")
	ErrWriteFailed           = errors.Define("tlsengine: write failed")
	ErrShutdownFailed        = errors.Define("tlsengine: shutdown failed")
	ErrPeerClosed            = errors.Define("tlsengine: peer closed")
	ErrVerificationFailed    = errors.Define("tlsengine: verification failed")
	ErrSniFailed             = errors.Define("tlsengine: SNI configuration failed")
	ErrAlpnFailed            = errors.Define("tlsengine: ALPN negotiation failed")
	ErrTimeout               = errors.Define("tlsengine: timeout")
	ErrUnknown               = errors.Define("tlsengine: unknown error")
)
