package bptree

import (
	"bptree/internal/base"
	"bptree/internal/bufpool"
)

// opContext tracks the guards a mutating operation holds: the header
// page guard and the chain of write-latched pages from the shallowest
// unsafe ancestor down to the current node. Guards drop in two ways:
// releaseAncestors when a node proves no change can propagate above it,
// and the deferred releaseAll that covers every exit path.
type opContext struct {
	header   *bufpool.WriteGuard
	writeSet []*bufpool.WriteGuard
}

func (ctx *opContext) push(g *bufpool.WriteGuard) {
	ctx.writeSet = append(ctx.writeSet, g)
}

func (ctx *opContext) top() *bufpool.WriteGuard {
	return ctx.writeSet[len(ctx.writeSet)-1]
}

// pop drops the deepest guard and forgets it.
func (ctx *opContext) pop() {
	n := len(ctx.writeSet)
	ctx.writeSet[n-1].Drop()
	ctx.writeSet = ctx.writeSet[:n-1]
}

// releaseAncestors keeps only the deepest guard, dropping the header and
// everything above the current node.
func (ctx *opContext) releaseAncestors() {
	if ctx.header != nil {
		ctx.header.Drop()
		ctx.header = nil
	}
	n := len(ctx.writeSet)
	if n == 0 {
		return
	}
	for i := 0; i < n-1; i++ {
		ctx.writeSet[i].Drop()
	}
	ctx.writeSet[0] = ctx.writeSet[n-1]
	ctx.writeSet = ctx.writeSet[:1]
}

// releaseAll drops every guard still held. Drop is idempotent, so this
// is safe as a deferred catch-all.
func (ctx *opContext) releaseAll() {
	if ctx.header != nil {
		ctx.header.Drop()
		ctx.header = nil
	}
	for _, g := range ctx.writeSet {
		g.Drop()
	}
	ctx.writeSet = ctx.writeSet[:0]
}

// GetValue looks up the value stored under key. Read latches crab down
// from the header page: each child is latched before its parent is
// released, so the descent always follows a consistent path.
func (t *Tree[K, V]) GetValue(key K) (V, error) {
	var zero V
	if t.closed.Load() {
		return zero, ErrTreeClosed
	}

	guard, err := t.descendRead(func(node internalPage[K]) int {
		return node.findChild(t.cmp, key)
	})
	if err != nil {
		return zero, err
	}
	if guard == nil {
		return zero, ErrKeyNotFound
	}
	defer guard.Drop()

	leaf := asLeaf[K, V](guard.Page())
	pos := leaf.findKey(t.cmp, key)
	if pos < 0 || t.cmp(leaf.keyAt(pos), key) != 0 {
		return zero, ErrKeyNotFound
	}
	return leaf.valueAt(pos), nil
}

// Insert stores value under key, failing with ErrDuplicateKey when the
// key already exists. The descent holds write latches only while an
// ancestor might still split: an internal node with room for one more
// separator releases everything above it.
func (t *Tree[K, V]) Insert(key K, value V) error {
	if t.closed.Load() {
		return ErrTreeClosed
	}

	ctx := &opContext{}
	defer ctx.releaseAll()

	header, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	ctx.header = header

	root := header.Page().RootPageID()
	if root == InvalidPageID {
		// First entry: a one-leaf tree.
		guard, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		wg := guard.UpgradeWrite()
		leaf := initLeaf[K, V](wg.Page(), wg.PageID(), t.leafMaxSize)
		leaf.insertAt(0, key, value)
		header.Page().SetRootPageID(wg.PageID())
		wg.Drop()
		return nil
	}

	pageID := root
	for {
		wg, err := t.pool.FetchPageWrite(pageID)
		if err != nil {
			return err
		}
		ctx.push(wg)

		if wg.Page().IsLeaf() {
			if asLeaf[K, V](wg.Page()).size() < t.leafMaxSize-1 {
				ctx.releaseAncestors()
			}
			break
		}

		node := asInternal[K](wg.Page())
		if node.size() < node.maxSize() {
			ctx.releaseAncestors()
		}
		pageID = node.childAt(node.findChild(t.cmp, key))
	}

	leaf := asLeaf[K, V](ctx.top().Page())
	pos := leaf.findKey(t.cmp, key)
	if pos >= 0 && t.cmp(leaf.keyAt(pos), key) == 0 {
		return ErrDuplicateKey
	}
	leaf.insertAt(pos+1, key, value)

	// Unwind: split every overflowing node, pushing separators upward.
	for len(ctx.writeSet) > 1 {
		child := ctx.top()
		if !t.overfull(child.Page()) {
			return nil
		}

		sep, rightID, err := t.splitPage(child)
		if err != nil {
			return err
		}
		ctx.pop()

		parent := asInternal[K](ctx.top().Page())
		parent.insertAt(parent.findChild(t.cmp, sep)+1, sep, rightID)
	}

	// The shallowest retained node overflowed as well. If it is the
	// root, grow the tree by one level; the header guard is necessarily
	// still held, since a safe root would have kept the overflow below.
	last := ctx.writeSet[0]
	if t.overfull(last.Page()) {
		sep, rightID, err := t.splitPage(last)
		if err != nil {
			return err
		}

		guard, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		wg := guard.UpgradeWrite()
		newRoot := initInternal[K](wg.Page(), wg.PageID(), t.internalMaxSize)
		newRoot.setSize(2)
		newRoot.setChildAt(0, last.PageID())
		newRoot.setKeyAt(1, sep)
		newRoot.setChildAt(1, rightID)
		ctx.header.Page().SetRootPageID(wg.PageID())
		wg.Drop()
	}
	return nil
}

// Remove deletes key, failing with ErrKeyNotFound when it is absent.
// Underflowing pages borrow from a sibling when one is above minimum
// occupancy, and merge otherwise; merges propagate the lost separator
// up the retained chain and can shrink the tree's height.
func (t *Tree[K, V]) Remove(key K) error {
	if t.closed.Load() {
		return ErrTreeClosed
	}

	ctx := &opContext{}
	defer ctx.releaseAll()

	header, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	ctx.header = header

	root := header.Page().RootPageID()
	if root == InvalidPageID {
		return ErrKeyNotFound
	}

	pageID := root
	for {
		wg, err := t.pool.FetchPageWrite(pageID)
		if err != nil {
			return err
		}
		ctx.push(wg)

		if t.deleteSafe(wg.Page(), pageID == root) {
			ctx.releaseAncestors()
		}
		if wg.Page().IsLeaf() {
			break
		}

		node := asInternal[K](wg.Page())
		pageID = node.childAt(node.findChild(t.cmp, key))
	}

	leaf := asLeaf[K, V](ctx.top().Page())
	pos := leaf.findKey(t.cmp, key)
	if pos < 0 || t.cmp(leaf.keyAt(pos), key) != 0 {
		return ErrKeyNotFound
	}
	leaf.removeAt(pos)

	// Unwind: rebalance every node that fell below minimum occupancy.
	for len(ctx.writeSet) > 1 {
		child := ctx.top()
		if !t.underflown(child.Page()) {
			return nil
		}
		borrowed, err := t.rebalance(ctx, child)
		if err != nil {
			return err
		}
		if borrowed {
			return nil
		}
	}

	// Root adjustments happen only when the header guard is still held;
	// a released header means some safe node stopped all propagation.
	if ctx.header == nil {
		return nil
	}
	rootGuard := ctx.writeSet[0]
	if rootGuard.Page().IsLeaf() {
		if asLeaf[K, V](rootGuard.Page()).size() == 0 {
			ctx.header.Page().SetRootPageID(InvalidPageID)
			freed := rootGuard.PageID()
			ctx.pop()
			t.freePage(freed)
		}
		return nil
	}
	node := asInternal[K](rootGuard.Page())
	if node.size() == 1 {
		// Height shrinks: the lone child becomes the root.
		ctx.header.Page().SetRootPageID(node.childAt(0))
		freed := rootGuard.PageID()
		ctx.pop()
		t.freePage(freed)
	}
	return nil
}

// splitPage splits an overfull page in half, moving the upper entries
// into a fresh right sibling. Returns the separator key and the new
// page id.
// Leaves copy every moved entry and relink the sibling chain; internal
// pages promote the boundary key, which stays behind as the right
// page's sentinel slot.
func (t *Tree[K, V]) splitPage(g *bufpool.WriteGuard) (K, base.PageID, error) {
	var zero K

	guard, err := t.pool.NewPage()
	if err != nil {
		return zero, InvalidPageID, err
	}
	wg := guard.UpgradeWrite()
	defer wg.Drop()

	if g.Page().IsLeaf() {
		left := asLeaf[K, V](g.Page())
		size := left.size()
		lsize := size / 2
		rsize := size - lsize

		right := initLeaf[K, V](wg.Page(), wg.PageID(), t.leafMaxSize)
		copy(right.entries()[:rsize], left.entries()[lsize:size])
		right.setSize(rsize)
		right.setNext(left.next())
		left.setSize(lsize)
		left.setNext(wg.PageID())
		return right.keyAt(0), wg.PageID(), nil
	}

	left := asInternal[K](g.Page())
	size := left.size()
	lsize := size / 2
	rsize := size - lsize
	sep := left.keyAt(lsize)

	right := initInternal[K](wg.Page(), wg.PageID(), t.internalMaxSize)
	copy(right.entries()[:rsize], left.entries()[lsize:size])
	right.setSize(rsize)
	left.setSize(lsize)
	return sep, wg.PageID(), nil
}

// rebalance restores the deepest retained node to minimum occupancy by
// borrowing from a sibling (left preferred) or merging with one (into
// the left page when it exists). Returns true when a borrow resolved
// the underflow without touching the parent's occupancy; a merge pops
// the node's guard and leaves the shrunken parent on top for the
// caller's next round.
func (t *Tree[K, V]) rebalance(ctx *opContext, child *bufpool.WriteGuard) (bool, error) {
	parent := asInternal[K](ctx.writeSet[len(ctx.writeSet)-2].Page())
	idx := parent.indexOfChild(child.PageID())

	var lsib, rsib *bufpool.WriteGuard
	defer func() {
		if lsib != nil {
			lsib.Drop()
		}
		if rsib != nil {
			rsib.Drop()
		}
	}()

	if idx > 0 {
		g, err := t.pool.FetchPageWrite(parent.childAt(idx - 1))
		if err != nil {
			return false, err
		}
		lsib = g
		if t.aboveMin(g.Page()) {
			t.borrowFromLeft(parent, idx, g, child)
			return true, nil
		}
	}
	if idx < parent.size()-1 {
		g, err := t.pool.FetchPageWrite(parent.childAt(idx + 1))
		if err != nil {
			return false, err
		}
		rsib = g
		if t.aboveMin(g.Page()) {
			t.borrowFromRight(parent, idx, child, g)
			return true, nil
		}
	}
	if lsib == nil && rsib == nil {
		return true, nil
	}

	if idx > 0 {
		t.mergeInto(parent, idx, lsib, child)
		freed := child.PageID()
		ctx.pop()
		lsib.Drop()
		t.freePage(freed)
	} else {
		t.mergeInto(parent, idx+1, child, rsib)
		freed := rsib.PageID()
		rsib.Drop()
		ctx.pop()
		t.freePage(freed)
	}
	return false, nil
}

// borrowFromLeft moves the donor's last entry into the underflowing
// node. Leaf borrows refresh the parent separator; internal borrows
// rotate it through the parent.
func (t *Tree[K, V]) borrowFromLeft(parent internalPage[K], idx int, from, to *bufpool.WriteGuard) {
	if to.Page().IsLeaf() {
		src := asLeaf[K, V](from.Page())
		dst := asLeaf[K, V](to.Page())
		last := src.size() - 1
		dst.insertAt(0, src.keyAt(last), src.valueAt(last))
		src.removeAt(last)
		parent.setKeyAt(idx, dst.keyAt(0))
		return
	}

	src := asInternal[K](from.Page())
	dst := asInternal[K](to.Page())
	last := src.size() - 1
	sep := parent.keyAt(idx)
	dst.insertAt(0, sep, src.childAt(last))
	dst.setKeyAt(1, sep)
	parent.setKeyAt(idx, src.keyAt(last))
	src.removeAt(last)
}

// borrowFromRight moves the donor's first entry into the underflowing
// node.
func (t *Tree[K, V]) borrowFromRight(parent internalPage[K], idx int, to, from *bufpool.WriteGuard) {
	if to.Page().IsLeaf() {
		src := asLeaf[K, V](from.Page())
		dst := asLeaf[K, V](to.Page())
		dst.insertAt(dst.size(), src.keyAt(0), src.valueAt(0))
		src.removeAt(0)
		parent.setKeyAt(idx+1, src.keyAt(0))
		return
	}

	src := asInternal[K](from.Page())
	dst := asInternal[K](to.Page())
	dst.insertAt(dst.size(), parent.keyAt(idx+1), src.childAt(0))
	parent.setKeyAt(idx+1, src.keyAt(1))
	src.removeAt(0)
}

// mergeInto concatenates right into left and removes the separator at
// sepIdx from the parent. Leaf merges discard the separator and relink
// the sibling chain; internal merges pull it down over the right page's
// first child.
func (t *Tree[K, V]) mergeInto(parent internalPage[K], sepIdx int, left, right *bufpool.WriteGuard) {
	if left.Page().IsLeaf() {
		l := asLeaf[K, V](left.Page())
		r := asLeaf[K, V](right.Page())
		n := l.size()
		copy(l.entries()[n:n+r.size()], r.entries()[:r.size()])
		l.setSize(n + r.size())
		l.setNext(r.next())
	} else {
		l := asInternal[K](left.Page())
		r := asInternal[K](right.Page())
		n := l.size()
		copy(l.entries()[n:n+r.size()], r.entries()[:r.size()])
		l.setKeyAt(n, parent.keyAt(sepIdx))
		l.setSize(n + r.size())
	}
	parent.removeAt(sepIdx)
}

// overfull reports whether a page must split before its latches drop.
// A leaf splits on reaching max size. An internal page holds the
// overflowing child in its spare slot and splits one entry later, so
// both halves of either kind land at or above minimum occupancy down
// to max size 3.
func (t *Tree[K, V]) overfull(p *base.Page) bool {
	size := int(p.Header().Size)
	if p.IsLeaf() {
		return size >= int(p.Header().MaxSize)
	}
	return size > int(p.Header().MaxSize)
}

// minSize is the lowest legal at-rest occupancy for a non-root page.
func (t *Tree[K, V]) minSize(p *base.Page) int {
	if p.IsLeaf() {
		return t.leafMaxSize / 2
	}
	return (t.internalMaxSize + 1) / 2
}

func (t *Tree[K, V]) underflown(p *base.Page) bool {
	return int(p.Header().Size) < t.minSize(p)
}

func (t *Tree[K, V]) aboveMin(p *base.Page) bool {
	return int(p.Header().Size) > t.minSize(p)
}

// deleteSafe reports whether a node keeps legal occupancy even after
// losing one entry, so nothing can propagate above it. The root runs
// on looser minimums: two children for an internal root, one entry for
// a leaf root.
func (t *Tree[K, V]) deleteSafe(p *base.Page, isRoot bool) bool {
	size := int(p.Header().Size)
	if isRoot {
		if p.IsLeaf() {
			return size > 1
		}
		return size > 2
	}
	return size > t.minSize(p)
}

// freePage returns an unlinked page to the freelist. A page can stay
// transiently pinned by a cursor re-fetching its position; nothing
// references it anymore, so it queues up and a later call reclaims it.
func (t *Tree[K, V]) freePage(id base.PageID) {
	t.pendingMu.Lock()
	t.pendingFree = append(t.pendingFree, id)
	t.pendingMu.Unlock()
	t.drainPendingFree()
}

// drainPendingFree retries every queued page. Close runs a final drain
// once all cursors are gone.
func (t *Tree[K, V]) drainPendingFree() {
	t.pendingMu.Lock()
	pending := t.pendingFree
	t.pendingFree = nil
	t.pendingMu.Unlock()

	for _, id := range pending {
		if err := t.pool.DeletePage(id); err != nil {
			t.pendingMu.Lock()
			t.pendingFree = append(t.pendingFree, id)
			t.pendingMu.Unlock()
			t.log.Warn("unlinked page still pinned, reclaim deferred",
				"page", uint64(id), "error", err)
		}
	}
}
