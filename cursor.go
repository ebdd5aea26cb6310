package bptree

import (
	"bptree/internal/base"
	"bptree/internal/bufpool"
)

// Cursor iterates leaf entries in ascending key order. It holds no
// latch between calls: every advance re-fetches its leaf under a fresh
// read guard and never more than one leaf guard at a time, so cursors
// cannot deadlock against writers. A cursor does not isolate against
// concurrent mutation; it observes whatever state each advance finds,
// and a scan whose leaf was merged away simply ends early.
type Cursor[K any, V any] struct {
	tree  *Tree[K, V]
	page  base.PageID
	slot  int
	key   K
	value V
}

// IsEnd reports whether the cursor moved past the last entry.
func (c *Cursor[K, V]) IsEnd() bool {
	return c.page == InvalidPageID && c.slot == -1
}

// Key returns the key the cursor was last positioned on.
func (c *Cursor[K, V]) Key() K { return c.key }

// Value returns the value the cursor was last positioned on.
func (c *Cursor[K, V]) Value() V { return c.value }

func (c *Cursor[K, V]) setEnd() {
	c.page = InvalidPageID
	c.slot = -1
}

// Next advances to the next entry, following the leaf chain across page
// boundaries. Advancing an end cursor is a no-op.
func (c *Cursor[K, V]) Next() error {
	if c.IsEnd() {
		return nil
	}
	if c.tree.closed.Load() {
		return ErrTreeClosed
	}

	guard, err := c.tree.pool.FetchPageRead(c.page)
	if err != nil {
		return err
	}
	if !guard.Page().IsLeaf() {
		// The leaf was merged away and its page reused.
		guard.Drop()
		c.setEnd()
		return nil
	}

	leaf := asLeaf[K, V](guard.Page())
	c.slot++
	for c.slot >= leaf.size() {
		next := leaf.next()
		guard.Drop()
		if next == InvalidPageID {
			c.setEnd()
			return nil
		}
		guard, err = c.tree.pool.FetchPageRead(next)
		if err != nil {
			return err
		}
		if !guard.Page().IsLeaf() {
			guard.Drop()
			c.setEnd()
			return nil
		}
		leaf = asLeaf[K, V](guard.Page())
		c.page = next
		c.slot = 0
	}

	c.key = leaf.keyAt(c.slot)
	c.value = leaf.valueAt(c.slot)
	guard.Drop()
	return nil
}

// Begin returns a cursor on the smallest key, or an end cursor for an
// empty tree.
func (t *Tree[K, V]) Begin() (*Cursor[K, V], error) {
	if t.closed.Load() {
		return nil, ErrTreeClosed
	}

	c := &Cursor[K, V]{tree: t}

	guard, err := t.descendRead(func(internalPage[K]) int { return 0 })
	if err != nil {
		return nil, err
	}
	if guard == nil {
		c.setEnd()
		return c, nil
	}
	defer guard.Drop()

	leaf := asLeaf[K, V](guard.Page())
	if leaf.size() == 0 {
		c.setEnd()
		return c, nil
	}
	c.page = guard.PageID()
	c.slot = 0
	c.key = leaf.keyAt(0)
	c.value = leaf.valueAt(0)
	return c, nil
}

// BeginAt returns a cursor positioned exactly on key, or an end cursor
// when the key is absent.
func (t *Tree[K, V]) BeginAt(key K) (*Cursor[K, V], error) {
	if t.closed.Load() {
		return nil, ErrTreeClosed
	}

	c := &Cursor[K, V]{tree: t}

	guard, err := t.descendRead(func(node internalPage[K]) int {
		return node.findChild(t.cmp, key)
	})
	if err != nil {
		return nil, err
	}
	if guard == nil {
		c.setEnd()
		return c, nil
	}
	defer guard.Drop()

	leaf := asLeaf[K, V](guard.Page())
	pos := leaf.findKey(t.cmp, key)
	if pos < 0 || t.cmp(leaf.keyAt(pos), key) != 0 {
		c.setEnd()
		return c, nil
	}
	c.page = guard.PageID()
	c.slot = pos
	c.key = leaf.keyAt(pos)
	c.value = leaf.valueAt(pos)
	return c, nil
}

// descendRead crabs read latches from the header page down to a leaf,
// choosing the child slot with pick at each internal node. Returns nil
// for an empty tree.
func (t *Tree[K, V]) descendRead(pick func(internalPage[K]) int) (*bufpool.ReadGuard, error) {
	header, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}

	root := header.Page().RootPageID()
	if root == InvalidPageID {
		header.Drop()
		return nil, nil
	}

	guard, err := t.pool.FetchPageRead(root)
	header.Drop()
	if err != nil {
		return nil, err
	}

	for !guard.Page().IsLeaf() {
		node := asInternal[K](guard.Page())
		child, err := t.pool.FetchPageRead(node.childAt(pick(node)))
		guard.Drop()
		if err != nil {
			return nil, err
		}
		guard = child
	}
	return guard, nil
}
