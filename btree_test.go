package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallTree opens an index with tiny page occupancy so splits and merges
// trigger after a handful of keys.
func smallTree(t *testing.T) *Tree[uint64, RID] {
	tree, _ := setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4))
	return tree
}

// Basic Operations Tests

func TestBasicInsertGet(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, tree.Insert(i, rid(i)))
	}

	for i := uint64(1); i <= 10; i++ {
		val, err := tree.GetValue(i)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(i), val)
		}
	}

	_, err := tree.GetValue(999)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	_, err := tree.GetValue(1)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, tree.Remove(1), ErrKeyNotFound)

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSingleKey(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	require.NoError(t, tree.Insert(42, rid(42)))

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	root, err := tree.RootPageID()
	require.NoError(t, err)
	assert.NotEqual(t, InvalidPageID, root)

	val, err := tree.GetValue(42)
	require.NoError(t, err)
	assert.Equal(t, rid(42), val)

	require.NoError(t, tree.Remove(42))

	empty, err = tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	root, err = tree.RootPageID()
	require.NoError(t, err)
	assert.Equal(t, InvalidPageID, root)
}

func TestDuplicateInsert(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	require.NoError(t, tree.Insert(5, rid(5)))
	err := tree.Insert(5, RID{PageID: 999})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// The original value survives the rejected insert
	val, err := tree.GetValue(5)
	require.NoError(t, err)
	assert.Equal(t, rid(5), val)
}

// Split Tests

func TestLeafSplit(t *testing.T) {
	t.Parallel()

	tree := smallTree(t)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, tree.Insert(i, rid(i)))
	}
	rootBefore, err := tree.RootPageID()
	require.NoError(t, err)

	// Fourth insert fills the leaf to max size and splits it
	require.NoError(t, tree.Insert(4, rid(4)))

	rootAfter, err := tree.RootPageID()
	require.NoError(t, err)
	assert.NotEqual(t, rootBefore, rootAfter, "expected a new internal root")

	for i := uint64(1); i <= 4; i++ {
		val, err := tree.GetValue(i)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(i), val)
		}
	}
}

func TestSeparatorRouting(t *testing.T) {
	t.Parallel()

	tree := smallTree(t)

	// 1..4 split into [1 2] and [3 4] with separator 3
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, tree.Insert(i, rid(i)))
	}

	picture, err := tree.DrawTree()
	require.NoError(t, err)
	assert.Equal(t, "((1 2) <3> (3 4))", picture)

	// Keys on both sides of the separator resolve, including the
	// separator itself, which lives in the right leaf
	for i := uint64(1); i <= 4; i++ {
		_, err := tree.GetValue(i)
		assert.NoError(t, err, "key %d misrouted", i)
	}
}

func TestMultiLevelSplits(t *testing.T) {
	t.Parallel()

	tree := smallTree(t)

	numKeys := uint64(100)
	roots := make(map[PageID]bool)
	for i := uint64(1); i <= numKeys; i++ {
		require.NoError(t, tree.Insert(i, rid(i)))
		root, err := tree.RootPageID()
		require.NoError(t, err)
		roots[root] = true
	}

	// 100 keys at max size 4 force the root to split repeatedly
	assert.Greater(t, len(roots), 2, "expected several root changes")

	for i := uint64(1); i <= numKeys; i++ {
		val, err := tree.GetValue(i)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(i), val)
		}
	}

	// Scans see every key in order despite the depth
	cur, err := tree.Begin()
	require.NoError(t, err)
	want := uint64(1)
	for !cur.IsEnd() {
		assert.Equal(t, want, cur.Key())
		want++
		require.NoError(t, cur.Next())
	}
	assert.Equal(t, numKeys+1, want)
}

func TestNarrowInternalFanout(t *testing.T) {
	t.Parallel()

	// Internal pages capped at 3 children keep almost every split
	// cascading several levels up
	tree, _ := setup(t, WithLeafMaxSize(4), WithInternalMaxSize(3))

	numKeys := uint64(2000)
	for i := uint64(1); i <= numKeys; i++ {
		require.NoError(t, tree.Insert(i, rid(i)), "insert %d failed", i)
	}

	keys := scanKeys(t, tree)
	require.Len(t, keys, int(numKeys))
	for i, k := range keys {
		assert.Equal(t, uint64(i+1), k)
	}

	// The deep tree rebalances back down without losing entries
	for i := uint64(2); i <= numKeys; i += 2 {
		require.NoError(t, tree.Remove(i), "remove %d failed", i)
	}
	keys = scanKeys(t, tree)
	require.Len(t, keys, int(numKeys/2))
	for i, k := range keys {
		assert.Equal(t, uint64(2*i+1), k)
	}
}

// Insert Order Tests

func TestSequentialInsert(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	numKeys := uint64(1000)
	for i := uint64(0); i < numKeys; i++ {
		require.NoError(t, tree.Insert(i, rid(i)))
	}

	for i := uint64(0); i < numKeys; i++ {
		val, err := tree.GetValue(i)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(i), val)
		}
	}
}

func TestRandomInsert(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	numKeys := 1000
	indices := make([]int, numKeys)
	for i := 0; i < numKeys; i++ {
		indices[i] = i
	}

	// Simple deterministic shuffle
	for i := len(indices) - 1; i > 0; i-- {
		j := (i * 7) % (i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	for _, idx := range indices {
		require.NoError(t, tree.Insert(uint64(idx), rid(uint64(idx))))
	}

	for i := uint64(0); i < uint64(numKeys); i++ {
		val, err := tree.GetValue(i)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(i), val)
		}
	}
}

func TestReverseSequentialInsert(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	numKeys := uint64(1000)
	for i := numKeys; i > 0; i-- {
		require.NoError(t, tree.Insert(i, rid(i)))
	}

	for i := uint64(1); i <= numKeys; i++ {
		val, err := tree.GetValue(i)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(i), val)
		}
	}

	// Ascending scan despite descending inserts
	cur, err := tree.Begin()
	require.NoError(t, err)
	want := uint64(1)
	for !cur.IsEnd() {
		assert.Equal(t, want, cur.Key())
		want++
		require.NoError(t, cur.Next())
	}
	assert.Equal(t, numKeys+1, want)
}

func TestSparseKeys(t *testing.T) {
	t.Parallel()

	tree := smallTree(t)

	// Wide gaps exercise separator choice away from dense runs
	keys := []uint64{1, 1000, 5, 999999, 12, 777, 3, 500000, 42}
	for _, k := range keys {
		require.NoError(t, tree.Insert(k, rid(k)))
	}

	for _, k := range keys {
		val, err := tree.GetValue(k)
		if assert.NoError(t, err) {
			assert.Equal(t, rid(k), val)
		}
	}

	_, err := tree.GetValue(43)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = tree.GetValue(0)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRootPageIDStableWithoutSplits(t *testing.T) {
	t.Parallel()

	tree, _ := setup(t)

	require.NoError(t, tree.Insert(1, rid(1)))
	root1, err := tree.RootPageID()
	require.NoError(t, err)

	// Default max sizes hold well over these few keys
	for i := uint64(2); i <= 50; i++ {
		require.NoError(t, tree.Insert(i, rid(i)))
	}
	root2, err := tree.RootPageID()
	require.NoError(t, err)
	assert.Equal(t, root1, root2)
}
