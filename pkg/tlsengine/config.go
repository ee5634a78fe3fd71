package tlsengine

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/errors"
)

type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// VerifyMode mirrors §6's configuration surface table.
type VerifyMode uint8

const (
	VerifyNone VerifyMode = iota
	VerifyPeer
	VerifyRequirePeerCert
	VerifyClientOnce
)

// SessionCacheMode is §6 "session_cache_mode". SessionCacheClient and
// SessionCacheBoth give the handle a client-side session cache; no mode
// changes server-side ticket issuance, which stays at crypto/tls's default.
type SessionCacheMode uint8

const (
	SessionCacheOff SessionCacheMode = iota
	SessionCacheClient
	SessionCacheServer
	SessionCacheBoth
)

// Options is the configuration a ConfigHandle is built from. It is mutated
// only during construction, by Option functions, matching the functional
// options shape the teacher module uses for its own root Options type.
type Options struct {
	Role             Role
	Certificates     []tls.Certificate
	RootCAs          *x509.CertPool
	ClientCAs        *x509.CertPool
	VerifyMode       VerifyMode
	ALPNProtocols    []string
	MinVersion       uint16
	MaxVersion       uint16
	SessionCacheMode SessionCacheMode
	SessionTimeout   time.Duration
	SessionTicket    []byte
	Hostname         string
	Rand             io.Reader
}

type Option func(*Options) error

func WithRole(role Role) Option {
	return func(o *Options) error {
		o.Role = role
		return nil
	}
}

func WithHostname(name string) Option {
	return func(o *Options) error {
		if name == "" {
			return errors.New("tlsengine: empty SNI hostname", errors.WithWrap(ErrSniFailed))
		}
		o.Hostname = name
		return nil
	}
}

func WithVerifyMode(mode VerifyMode) Option {
	return func(o *Options) error {
		o.VerifyMode = mode
		return nil
	}
}

func WithCertificate(cert tls.Certificate) Option {
	return func(o *Options) error {
		o.Certificates = append(o.Certificates, cert)
		return nil
	}
}

func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *Options) error {
		o.RootCAs = pool
		return nil
	}
}

func WithClientCAs(pool *x509.CertPool) Option {
	return func(o *Options) error {
		o.ClientCAs = pool
		return nil
	}
}

func WithALPNProtocols(protocols ...string) Option {
	return func(o *Options) error {
		o.ALPNProtocols = protocols
		return nil
	}
}

func WithVersionRange(min, max uint16) Option {
	return func(o *Options) error {
		if min != 0 && max != 0 && min > max {
			return errors.New("tlsengine: min version greater than max version")
		}
		o.MinVersion, o.MaxVersion = min, max
		return nil
	}
}

func WithSessionCacheMode(mode SessionCacheMode) Option {
	return func(o *Options) error {
		o.SessionCacheMode = mode
		return nil
	}
}

func WithSessionTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.SessionTimeout = d
		return nil
	}
}

// WithSessionTicket records an opaque resumption handle on the ConfigHandle,
// supplementing §6's session_handle entry — grounded on galay-ssl's
// pre-connect session installation (SPEC_FULL.md §10). The handle is not
// passed to crypto/tls, so it has no effect on the handshake.
func WithSessionTicket(ticket []byte) Option {
	return func(o *Options) error {
		o.SessionTicket = append([]byte(nil), ticket...)
		return nil
	}
}

// ConfigHandle is the immutable, shareable TLS configuration of §3/§5: once
// built it never mutates, and it may be shared by many Engines concurrently
// (read-only access only). configRef counts the Engines currently holding
// its *tls.Config (Engine.Init adds one, Engine.Close removes it); the count
// is bookkeeping only, and nothing is released or checked when it reaches
// zero.
type ConfigHandle struct {
	role       Role
	verifyMode VerifyMode
	hostname   string
	sessionTkt []byte
	ref        *configRef
}

// configRef is ConfigHandle's own refcounted lifetime, shaped for the one
// ConfigHandle-to-many-Engines relationship rather than a generic shared
// pointer: derive() bumps the count each time an Engine borrows the
// *tls.Config, release() drops it, and the count reaching zero is the
// signal that the last Engine let go. crypto/tls.Config owns no OS
// resources, so there is nothing to actually close yet — count is what
// future resource ownership (e.g. a session ticket key rotation handle)
// would hang off.
type configRef struct {
	cfg   *tls.Config
	count atomic.Int64
}

func newConfigRef(cfg *tls.Config) *configRef {
	return &configRef{cfg: cfg}
}

func (r *configRef) derive() *tls.Config {
	r.count.Add(1)
	return r.cfg
}

func (r *configRef) release() error {
	r.count.Add(-1)
	return nil
}

// NewConfigHandle builds an immutable, refcounted TLS configuration.
func NewConfigHandle(opts ...Option) (*ConfigHandle, error) {
	options := &Options{MinVersion: tls.VersionTLS12}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	cfg := &tls.Config{
		MinVersion:   options.MinVersion,
		MaxVersion:   options.MaxVersion,
		Certificates: options.Certificates,
		RootCAs:      options.RootCAs,
		ClientCAs:    options.ClientCAs,
		NextProtos:   options.ALPNProtocols,
		ServerName:   options.Hostname,
		Rand:         options.Rand,
	}
	if options.Role == RoleServer && len(options.Certificates) == 0 {
		return nil, errors.New("tlsengine: server role requires at least one certificate", errors.WithWrap(ErrCertLoadFailed))
	}
	switch options.VerifyMode {
	case VerifyNone:
		cfg.InsecureSkipVerify = true
	case VerifyPeer:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case VerifyRequirePeerCert:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	case VerifyClientOnce:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientSessionCache = nil
	}
	if options.SessionCacheMode == SessionCacheClient || options.SessionCacheMode == SessionCacheBoth {
		cfg.ClientSessionCache = tls.NewLRUClientSessionCache(0)
	}

	return &ConfigHandle{
		role:       options.Role,
		verifyMode: options.VerifyMode,
		hostname:   options.Hostname,
		sessionTkt: options.SessionTicket,
		ref:        newConfigRef(cfg),
	}, nil
}

// derive returns a borrowed, owned-by-caller *tls.Config and bumps the
// refcount; the matching Engine.Close releases it.
func (h *ConfigHandle) derive() *tls.Config {
	return h.ref.derive()
}

func (h *ConfigHandle) release() error {
	return h.ref.release()
}

func (h *ConfigHandle) Role() Role { return h.role }
