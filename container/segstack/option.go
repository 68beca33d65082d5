package segstack

import (
	"log/slog"

	"github.com/chenjie199234/segstack/smr"
)

type Option func(*options)

type options struct {
	domain  smr.Domain
	counter ItemCounter
	stat    Stat
	logger  *slog.Logger
}

// WithDomain sets the reclaimer for removed segments.
// The domain's handles must carry at least 3 guards.
// Default: a private smr.HP domain per stack.
func WithDomain(d smr.Domain) Option {
	return func(o *options) {
		o.domain = d
	}
}

// WithItemCounter replaces the default AtomicCounter
func WithItemCounter(c ItemCounter) Option {
	return func(o *options) {
		o.counter = c
	}
}

// WithStat replaces the default EmptyStat
func WithStat(s Stat) Option {
	return func(o *options) {
		o.stat = s
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
