package util

import (
	"io"
	"testing"
)

func TestRelayBuf_Sizes(t *testing.T) {
	tests := []struct {
		size, want int
	}{
		{0, DefaultBufSize},
		{-1, DefaultBufSize},
		{16, 16},
		{DefaultBufSize, DefaultBufSize},
		{DefaultBufSize * 4, DefaultBufSize * 4},
	}
	for _, tt := range tests {
		buf, release := RelayBuf(tt.size)
		if len(buf) != tt.want {
			t.Errorf("RelayBuf(%d) len = %d, want %d", tt.size, len(buf), tt.want)
		}
		release()
	}
}

func TestRelayBuf_ReusedAtFullSize(t *testing.T) {
	small, release := RelayBuf(8)
	small[0] = 0xFF
	release()

	buf, release := RelayBuf(DefaultBufSize)
	defer release()
	if len(buf) != DefaultBufSize {
		t.Errorf("len = %d after a small borrow, want %d", len(buf), DefaultBufSize)
	}
}

func BenchmarkWriteFull_Chunk(b *testing.B) {
	chunk, release := RelayBuf(DefaultBufSize)
	defer release()
	b.SetBytes(int64(len(chunk)))
	for i := 0; i < b.N; i++ {
		WriteFull(io.Discard, chunk) //nolint:errcheck
	}
}

func BenchmarkRelayBuf(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf, release := RelayBuf(DefaultBufSize)
		buf[0] = 1
		release()
	}
}
