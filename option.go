package bptree

// DefaultPoolSize is the default number of buffer pool frames (256KB of
// cached pages).
const DefaultPoolSize = 64

// Options configures tree behavior.
type Options struct {
	leafMaxSize     int
	internalMaxSize int
	poolSize        int
	noSync          bool
	logger          Logger
}

func defaultOptions() Options {
	return Options{
		leafMaxSize:     0, // 0 = as many entries as fit the page
		internalMaxSize: 0,
		poolSize:        DefaultPoolSize,
		logger:          DiscardLogger{},
	}
}

// Option configures the tree using the functional options pattern.
type Option func(*Options)

// WithLeafMaxSize caps leaf occupancy at n entries. Useful for forcing
// splits in tests; production trees normally let leaves fill the page.
// Ignored when opening an existing file, which keeps its recorded
// geometry. Minimum 3.
func WithLeafMaxSize(n int) Option {
	return func(opts *Options) {
		opts.leafMaxSize = n
	}
}

// WithInternalMaxSize caps internal page occupancy at n children.
// Same rules as WithLeafMaxSize.
func WithInternalMaxSize(n int) Option {
	return func(opts *Options) {
		opts.internalMaxSize = n
	}
}

// WithPoolSize sets the number of buffer pool frames. The pool must hold
// a root-to-leaf path plus two siblings and the header page at once, so
// very small values can starve deep trees.
func WithPoolSize(frames int) Option {
	return func(opts *Options) {
		opts.poolSize = frames
	}
}

// WithNoSync disables fsync. Maximum throughput, no durability on crash.
// Only use for testing or bulk loads where data can be reconstructed.
func WithNoSync() Option {
	return func(opts *Options) {
		opts.noSync = true
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}
