package tlsbridge

import "log/slog"

// Options configures a Socket. It follows the same functional-options
// shape as the teacher module's own root Options type and pkg/tlsengine's
// Option — mutated only during construction.
type Options struct {
	Logger *slog.Logger
}

type Option func(*Options) error

// WithLogger attaches a logger for the one sanctioned log line in this
// module: a WARN on a swallowed fatal close_notify error during Shutdown
// (§9's open question). Nil (the default) means silent.
func WithLogger(log *slog.Logger) Option {
	return func(o *Options) error {
		o.Logger = log
		return nil
	}
}
