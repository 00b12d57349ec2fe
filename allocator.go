package novaslab

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/multierr"

	"github.com/tuannm99/novaslab/internal/backing"
	"github.com/tuannm99/novaslab/internal/slab"
)

var (
	ErrAllocatorClosed = errors.New("novaslab: allocator is closed")
	ErrUnknownBacking  = errors.New("novaslab: unknown backing kind")
)

// Allocator owns one slab allocator context and its page source.
type Allocator struct {
	ctx    *slab.Context
	src    backing.PageSource
	closed bool
}

type options struct {
	src    backing.PageSource
	logger *slog.Logger
}

type Option func(*options)

// WithSource uses the given page source instead of the platform default.
func WithSource(src backing.PageSource) Option {
	return func(o *options) { o.src = src }
}

// WithLogger routes engine logging through the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New bootstraps an allocator. With no options it uses the platform's
// default page source and slog.Default().
func New(opts ...Option) (*Allocator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		src, err := backing.NewDefaultSource()
		if err != nil {
			return nil, err
		}
		o.src = src
	}
	ctx, err := slab.NewContext(o.src, o.logger)
	if err != nil {
		return nil, err
	}
	return &Allocator{ctx: ctx, src: o.src}, nil
}

// Open bootstraps an allocator from a YAML config file.
func Open(path string) (*Allocator, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	var opts []Option
	switch cfg.Backing.Kind {
	case "", "mmap":
		// Platform default.
	case "heap":
		ps := cfg.Backing.PageSize
		if ps == 0 {
			ps = os.Getpagesize()
		}
		src, err := backing.NewHeapSource(ps)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSource(src))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBacking, cfg.Backing.Kind)
	}

	if cfg.Debug {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		opts = append(opts, WithLogger(logger))
	}

	return New(opts...)
}

// NewCache creates an object cache. size must be positive; align must
// be zero or a power of two.
func (a *Allocator) NewCache(name string, size, align int) (*Cache, error) {
	if a.closed {
		return nil, ErrAllocatorClosed
	}
	return a.ctx.NewCache(name, size, align)
}

// PageSize reports the page size of the backing source.
func (a *Allocator) PageSize() int { return a.ctx.PageSize() }

// Close tears down the allocator. Every cache must be destroyed first.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.ctx.Close()
	if c, ok := a.src.(interface{ Close() error }); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}
