package bptree

import "bytes"

// Compare orders keys: negative when a sorts before b, zero when equal,
// positive when a sorts after b.
type Compare[K any] func(a, b K) int

// CompareUint64 orders uint64 keys ascending.
func CompareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CompareInt64 orders int64 keys ascending.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CompareBytes16 orders fixed 16-byte keys lexicographically.
func CompareBytes16(a, b [16]byte) int {
	return bytes.Compare(a[:], b[:])
}

// RID locates a record: the page holding it and the slot within that
// page. The customary value type when the tree serves as a secondary
// index. The blank field keeps the on-page layout an explicit 16 bytes.
type RID struct {
	PageID  uint64
	SlotNum uint32
	_       uint32
}
