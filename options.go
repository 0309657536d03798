package aom

import (
	"log/slog"

	"github.com/thesyncim/aom/internal/logging"
	"github.com/thesyncim/aom/internal/native"
)

// Option configures an Encoder, Decoder or OwnedImage.
type Option func(*options)

type options struct {
	logger   logging.Logger
	observer Observer
	lib      native.Library
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:   logging.Discard(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithLogger logs lifecycle events and native failures to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = logging.New(l)
		}
	}
}

// WithObserver reports events to obs, typically a *metrics.Collector.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// withLibrary swaps the native library, for tests.
func withLibrary(lib native.Library) Option {
	return func(o *options) { o.lib = lib }
}
