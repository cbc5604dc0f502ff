package syncbridge

import (
	"github.com/joeycumines/go-syncbridge/config"
	"github.com/joeycumines/go-syncbridge/eventloop"
	"github.com/joeycumines/logiface"
)

// Option configures a [Bridge].
type Option interface {
	applyBridge(*bridgeOptions) error
}

type bridgeOptions struct {
	logger            *logiface.Logger[logiface.Event]
	settings          *config.Store
	loopOptions       []eventloop.LoopOption
	perGoroutine      bool
	alternateStrategy bool
}

type bridgeOptionImpl struct {
	applyBridgeFunc func(*bridgeOptions) error
}

func (x *bridgeOptionImpl) applyBridge(opts *bridgeOptions) error {
	return x.applyBridgeFunc(opts)
}

// WithLogger configures structured logging, for the bridge and every loop it
// creates. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &bridgeOptionImpl{func(opts *bridgeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSettings sets the source of default settings, e.g. the batch size.
// Defaults to [config.Global].
func WithSettings(settings *config.Store) Option {
	return &bridgeOptionImpl{func(opts *bridgeOptions) error {
		opts.settings = settings
		return nil
	}}
}

// WithLoopPerGoroutine gives each calling goroutine its own loop, instead of
// sharing one. Each loop holds an OS thread and a wake-up fd until it is
// released, via [Bridge.ReleaseLoop] or [Bridge.Close], so goroutines that
// call in must release their loop before exiting.
func WithLoopPerGoroutine() Option {
	return &bridgeOptionImpl{func(opts *bridgeOptions) error {
		opts.perGoroutine = true
		return nil
	}}
}

// WithForcedAlternateStrategy creates every loop via [WithAlternateStrategy],
// as is always done on platforms without poll(2).
func WithForcedAlternateStrategy() Option {
	return &bridgeOptionImpl{func(opts *bridgeOptions) error {
		opts.alternateStrategy = true
		return nil
	}}
}

// WithLoopOptions passes options through to every loop the bridge creates.
func WithLoopOptions(options ...eventloop.LoopOption) Option {
	return &bridgeOptionImpl{func(opts *bridgeOptions) error {
		opts.loopOptions = append(opts.loopOptions, options...)
		return nil
	}}
}

func resolveBridgeOptions(opts []Option) (*bridgeOptions, error) {
	cfg := new(bridgeOptions)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBridge(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.settings == nil {
		// load errors are reported by config.Global, the store is still usable
		cfg.settings, _ = config.Global()
	}
	return cfg, nil
}
