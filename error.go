package bptree

import (
	"errors"

	"bptree/internal/base"
	"bptree/internal/bufpool"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrTreeClosed      = errors.New("tree is closed")
	ErrInvalidKeyType  = errors.New("key and value types must be fixed-size and pointer-free")
	ErrMaxSizeTooLarge = errors.New("max size exceeds page capacity")
	ErrMaxSizeTooSmall = errors.New("max size must be at least 3")

	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidPageSize    = base.ErrInvalidPageSize
	ErrInvalidChecksum    = base.ErrInvalidChecksum
	ErrInvalidKeySize     = base.ErrInvalidKeySize
	ErrInvalidValueSize   = base.ErrInvalidValueSize

	ErrNoFreeFrames = bufpool.ErrNoFreeFrames
	ErrPagePinned   = bufpool.ErrPagePinned
)
