package bptree

import (
	"unsafe"

	"bptree/internal/base"
)

// leafEntry is the on-page layout of one leaf slot.
type leafEntry[K any, V any] struct {
	key   K
	value V
}

// internalEntry is the on-page layout of one internal slot. Slot 0's key
// is a sentinel and is never consulted; child i covers keys in
// [key[i], key[i+1]).
type internalEntry[K any] struct {
	key   K
	child base.PageID
}

// leafCapacity is the number of leaf slots a page can physically hold.
// MaxSize must stay below it: one slot of headroom lets a leaf hold the
// overflowing entry while a split is in progress.
func leafCapacity[K any, V any]() int {
	var e leafEntry[K, V]
	return (base.PageSize - base.LeafEntriesOffset) / int(unsafe.Sizeof(e))
}

func internalCapacity[K any]() int {
	var e internalEntry[K]
	return (base.PageSize - base.InternalEntriesOffset) / int(unsafe.Sizeof(e))
}

// leafPage is a typed view over a latched leaf page.
type leafPage[K any, V any] struct {
	p *base.Page
}

func asLeaf[K any, V any](p *base.Page) leafPage[K, V] {
	return leafPage[K, V]{p: p}
}

func initLeaf[K any, V any](p *base.Page, id base.PageID, maxSize int) leafPage[K, V] {
	p.Reset(id, base.LeafPageFlag, maxSize)
	return leafPage[K, V]{p: p}
}

func (l leafPage[K, V]) size() int       { return int(l.p.Header().Size) }
func (l leafPage[K, V]) setSize(n int)   { l.p.Header().Size = uint32(n) }
func (l leafPage[K, V]) maxSize() int    { return int(l.p.Header().MaxSize) }
func (l leafPage[K, V]) id() base.PageID { return l.p.Header().PageID }

func (l leafPage[K, V]) next() base.PageID      { return l.p.NextPageID() }
func (l leafPage[K, V]) setNext(id base.PageID) { l.p.SetNextPageID(id) }

// entries returns the slot array, including the transient overflow slot.
func (l leafPage[K, V]) entries() []leafEntry[K, V] {
	ptr := unsafe.Pointer(&l.p.Data[base.LeafEntriesOffset])
	return unsafe.Slice((*leafEntry[K, V])(ptr), l.maxSize()+1)
}

func (l leafPage[K, V]) keyAt(i int) K   { return l.entries()[i].key }
func (l leafPage[K, V]) valueAt(i int) V { return l.entries()[i].value }

// insertAt shifts slots i and above one to the right and writes the new
// entry at slot i.
func (l leafPage[K, V]) insertAt(i int, key K, value V) {
	e := l.entries()
	n := l.size()
	copy(e[i+1:n+1], e[i:n])
	e[i] = leafEntry[K, V]{key: key, value: value}
	l.setSize(n + 1)
}

// removeAt deletes slot i and shifts the tail left.
func (l leafPage[K, V]) removeAt(i int) {
	e := l.entries()
	n := l.size()
	copy(e[i:n-1], e[i+1:n])
	l.setSize(n - 1)
}

// keys copies out the occupied keys, for diagnostics.
func (l leafPage[K, V]) keys() []K {
	out := make([]K, l.size())
	for i := range out {
		out[i] = l.keyAt(i)
	}
	return out
}

// findKey returns the greatest slot whose key is <= key, or -1 when every
// key is greater (or the leaf is empty).
func (l leafPage[K, V]) findKey(cmp Compare[K], key K) int {
	lo, hi := 0, l.size()-1
	for lo < hi {
		mid := (lo + hi + 1) >> 1
		if cmp(l.keyAt(mid), key) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if hi >= 0 && cmp(l.keyAt(hi), key) > 0 {
		hi = -1
	}
	return hi
}

// internalPage is a typed view over a latched internal page.
type internalPage[K any] struct {
	p *base.Page
}

func asInternal[K any](p *base.Page) internalPage[K] {
	return internalPage[K]{p: p}
}

func initInternal[K any](p *base.Page, id base.PageID, maxSize int) internalPage[K] {
	p.Reset(id, base.InternalPageFlag, maxSize)
	return internalPage[K]{p: p}
}

func (n internalPage[K]) size() int       { return int(n.p.Header().Size) }
func (n internalPage[K]) setSize(m int)   { n.p.Header().Size = uint32(m) }
func (n internalPage[K]) maxSize() int    { return int(n.p.Header().MaxSize) }
func (n internalPage[K]) id() base.PageID { return n.p.Header().PageID }

func (n internalPage[K]) entries() []internalEntry[K] {
	ptr := unsafe.Pointer(&n.p.Data[base.InternalEntriesOffset])
	return unsafe.Slice((*internalEntry[K])(ptr), n.maxSize()+1)
}

func (n internalPage[K]) keyAt(i int) K         { return n.entries()[i].key }
func (n internalPage[K]) setKeyAt(i int, key K) { n.entries()[i].key = key }

func (n internalPage[K]) childAt(i int) base.PageID        { return n.entries()[i].child }
func (n internalPage[K]) setChildAt(i int, id base.PageID) { n.entries()[i].child = id }

// insertAt shifts slots i and above one to the right and writes the new
// separator and child at slot i.
func (n internalPage[K]) insertAt(i int, key K, child base.PageID) {
	e := n.entries()
	m := n.size()
	copy(e[i+1:m+1], e[i:m])
	e[i] = internalEntry[K]{key: key, child: child}
	n.setSize(m + 1)
}

// removeAt deletes slot i (separator and child together) and shifts the
// tail left.
func (n internalPage[K]) removeAt(i int) {
	e := n.entries()
	m := n.size()
	copy(e[i:m-1], e[i+1:m])
	n.setSize(m - 1)
}

// separators copies out the defined separator keys (slot 0 is skipped),
// for diagnostics.
func (n internalPage[K]) separators() []K {
	if n.size() < 2 {
		return nil
	}
	out := make([]K, n.size()-1)
	for i := range out {
		out[i] = n.keyAt(i + 1)
	}
	return out
}

// findChild returns the slot of the child covering key: the greatest
// slot >= 1 whose key is <= key, or 0 when key sorts before every
// separator.
func (n internalPage[K]) findChild(cmp Compare[K], key K) int {
	lo, hi := 1, n.size()-1
	for lo < hi {
		mid := (lo + hi + 1) >> 1
		if cmp(n.keyAt(mid), key) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if hi < 1 || cmp(n.keyAt(hi), key) > 0 {
		return 0
	}
	return hi
}

// indexOfChild returns the slot pointing at child, or -1. Linear scan:
// separators can have shifted since the descent located this child.
func (n internalPage[K]) indexOfChild(child base.PageID) int {
	e := n.entries()
	for i := 0; i < n.size(); i++ {
		if e[i].child == child {
			return i
		}
	}
	return -1
}
