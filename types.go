package novaslab

import "github.com/tuannm99/novaslab/internal/slab"

// Package novaslab is the top-level facade for the slab allocator engine.
type (
	Cache     = slab.Cache
	AllocFlag = slab.AllocFlag
	Layout    = slab.Layout
)

const (
	Sleep   = slab.Sleep
	NoSleep = slab.NoSleep

	SmallLayout = slab.SmallLayout
	LargeLayout = slab.LargeLayout
)

var (
	ErrNoMemory       = slab.ErrNoMemory
	ErrInvalidSize    = slab.ErrInvalidSize
	ErrInvalidAlign   = slab.ErrInvalidAlign
	ErrObjectTooLarge = slab.ErrObjectTooLarge
)
