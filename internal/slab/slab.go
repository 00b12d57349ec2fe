package slab

import "unsafe"

// slabRec describes one page carved into equally sized buffers. In the
// small layout the record itself sits at the tail of the page it
// describes; in the large layout it comes from the internal slab cache.
//
// first/last chain the slab's freelist: buffer addresses in the small
// layout, bufctl addresses in the large layout. prev/next link the slab
// into its cache's circular list.
type slabRec struct {
	start    uintptr
	size     int
	refcount int
	first    uintptr
	last     uintptr
	prev     uintptr
	next     uintptr
}

const slabRecSize = unsafe.Sizeof(slabRec{})

func (s *slabRec) full() bool  { return s.refcount == s.size }
func (s *slabRec) empty() bool { return s.refcount == 0 }

// initSmallSlab lays a slab over a page: buffers from the page base up
// to the tail record, each free buffer's first word pointing at the
// next. offset reserves that many leading buffers; the bootstrap uses
// it to park the cache-of-caches record inside its own slab.
func (ctx *Context) initSmallSlab(objSize uintptr, page uintptr, offset int) uintptr {
	sa := page + ctx.tailOff
	s := slabAt(sa)
	n := int(ctx.tailOff / objSize)

	*s = slabRec{
		start: page,
		size:  n - offset,
	}
	for i := offset; i < n; i++ {
		b := page + uintptr(i)*objSize
		if i+1 < n {
			*wordAt(b) = b + objSize
		} else {
			*wordAt(b) = 0
		}
	}
	if s.size > 0 {
		s.first = page + uintptr(offset)*objSize
		s.last = page + uintptr(n-1)*objSize
	}
	return sa
}

// smallCapacity is the buffer count of a small-layout slab with no
// reserved slots.
func (ctx *Context) smallCapacity(objSize uintptr) int {
	return int(ctx.tailOff / objSize)
}

// smallSlabOf recovers the slab owning a small-layout buffer by masking
// the address down to its page base and stepping to the tail record.
func (ctx *Context) smallSlabOf(b uintptr) uintptr {
	return (b &^ ctx.pageMask) + ctx.tailOff
}

func smallTake(s *slabRec) uintptr {
	b := s.first
	s.first = *wordAt(b)
	if s.first == 0 {
		s.last = 0
	}
	s.refcount++
	return b
}

func smallReturn(s *slabRec, b uintptr) {
	*wordAt(b) = 0
	if s.last != 0 {
		*wordAt(s.last) = b
	} else {
		s.first = b
	}
	s.last = b
	s.refcount--
}

func largeTake(s *slabRec) uintptr {
	ctl := bufctlAt(s.first)
	s.first = ctl.next
	if s.first == 0 {
		s.last = 0
	}
	s.refcount++
	return ctl.buf
}

func largeReturn(s *slabRec, ctlAddr uintptr) {
	ctl := bufctlAt(ctlAddr)
	ctl.next = 0
	if s.last != 0 {
		bufctlAt(s.last).next = ctlAddr
	} else {
		s.first = ctlAddr
	}
	s.last = ctlAddr
	s.refcount--
}
