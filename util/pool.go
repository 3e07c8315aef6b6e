package util

import "sync"

var relayBufs = sync.Pool{
	New: func() interface{} {
		b := make([]byte, DefaultBufSize)
		return &b
	},
}

// RelayBuf returns a buffer of exactly size bytes and the func that
// gives it back.  Sizes up to DefaultBufSize come from a shared pool;
// larger ones are allocated and left to the collector.
func RelayBuf(size int) ([]byte, func()) {
	if size <= 0 || size > DefaultBufSize {
		if size <= 0 {
			size = DefaultBufSize
		}
		return make([]byte, size), func() {}
	}
	p := relayBufs.Get().(*[]byte)
	return (*p)[:size], func() {
		*p = (*p)[:cap(*p)]
		relayBufs.Put(p)
	}
}
