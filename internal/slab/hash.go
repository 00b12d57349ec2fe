package slab

import "unsafe"

// hashRec is the buffer -> bufctl index of a large-layout cache: a
// fixed array of singly linked buckets. Records and nodes both live in
// internal caches, so the index is self-hosting like everything else.
type hashRec struct {
	buckets [hashBuckets]uintptr
}

type hashNode struct {
	key  uintptr
	val  uintptr
	next uintptr
}

const (
	hashRecSize  = unsafe.Sizeof(hashRec{})
	hashNodeSize = unsafe.Sizeof(hashNode{})
)

// hashBucket mixes a buffer address with the 64-bit murmur finalizer
// before masking to the bucket count, so page-aligned keys do not all
// land in bucket zero.
func hashBucket(key uintptr) int {
	x := uint64(key)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return int(x & (hashBuckets - 1))
}

// newHash allocates and zeroes a hash record.
func (ctx *Context) newHash(flags AllocFlag) (uintptr, error) {
	ha, err := ctx.cacheAlloc(ctx.hashes, flags)
	if err != nil {
		return 0, err
	}
	h := hashAt(ha)
	*h = hashRec{}
	return ha, nil
}

// hashInsert adds key -> val. Inserting a key that is already present
// is a caller bug; the duplicate would shadow the old entry.
func (ctx *Context) hashInsert(ha, key, val uintptr, flags AllocFlag) error {
	na, err := ctx.cacheAlloc(ctx.nodes, flags)
	if err != nil {
		return err
	}
	h := hashAt(ha)
	i := hashBucket(key)
	n := nodeAt(na)
	*n = hashNode{key: key, val: val, next: h.buckets[i]}
	h.buckets[i] = na
	return nil
}

// hashGet returns the value stored under key, or zero.
func (ctx *Context) hashGet(ha, key uintptr) uintptr {
	h := hashAt(ha)
	for na := h.buckets[hashBucket(key)]; na != 0; na = nodeAt(na).next {
		if n := nodeAt(na); n.key == key {
			return n.val
		}
	}
	return 0
}

// hashRemove deletes key if present and returns its node to the node
// cache. Removing an absent key is a no-op.
func (ctx *Context) hashRemove(ha, key uintptr) {
	h := hashAt(ha)
	i := hashBucket(key)
	var prev uintptr
	for na := h.buckets[i]; na != 0; na = nodeAt(na).next {
		n := nodeAt(na)
		if n.key != key {
			prev = na
			continue
		}
		if prev == 0 {
			h.buckets[i] = n.next
		} else {
			nodeAt(prev).next = n.next
		}
		ctx.cacheFree(ctx.nodes, na)
		return
	}
}

// releaseHash frees every node and the record itself. Used on destroy
// and during context teardown.
func (ctx *Context) releaseHash(ha uintptr) {
	h := hashAt(ha)
	for i := range h.buckets {
		for na := h.buckets[i]; na != 0; {
			next := nodeAt(na).next
			ctx.cacheFree(ctx.nodes, na)
			na = next
		}
		h.buckets[i] = 0
	}
	ctx.cacheFree(ctx.hashes, ha)
}

// hashEntries counts live entries; only invariant checks use it.
func (ctx *Context) hashEntries(ha uintptr) int {
	h := hashAt(ha)
	total := 0
	for i := range h.buckets {
		for na := h.buckets[i]; na != 0; na = nodeAt(na).next {
			total++
		}
	}
	return total
}
