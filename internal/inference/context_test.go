package inference

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeForSnapsUp(t *testing.T) {
	p := GenerationParams{MaxTokens: 4096, MaxContextSize: 16384}
	nCtx, nBatch := sizeFor(100, p, 32768)
	// 100+4096 snaps up to 8192.
	require.Equal(t, 8192, nCtx)
	require.Equal(t, 2048, nBatch)
}

func TestSizeForMinimumHeadroom(t *testing.T) {
	p := GenerationParams{MaxTokens: 1, MaxContextSize: 131072}
	nCtx, _ := sizeFor(100, p, 131072)
	// needed is at least prompt+256 → snaps to 2048.
	require.Equal(t, 2048, nCtx)
}

func TestSizeForCappedByTrainContext(t *testing.T) {
	p := GenerationParams{MaxTokens: 65536, MaxContextSize: 131072}
	nCtx, _ := sizeFor(200000, p, 8192)
	require.Equal(t, 8192, nCtx)
}

func TestSizeForNoSnapFits(t *testing.T) {
	// effective max below the smallest snap value: clamp, don't snap.
	p := GenerationParams{MaxTokens: 4096, MaxContextSize: 131072}
	nCtx, nBatch := sizeFor(500, p, 1500)
	require.Equal(t, 1500, nCtx)
	require.LessOrEqual(t, nBatch, nCtx)
}

func TestBatchForSteps(t *testing.T) {
	cases := []struct {
		prompt int
		want   int
	}{
		{0, 2048},
		{511, 2048},
		{512, 1024},
		{2047, 1024},
		{2048, 512},
		{4095, 512},
		{4096, 256},
		{100000, 256},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, batchFor(tc.prompt), "prompt %d", tc.prompt)
	}
}

func TestSnapContextSizeClosest(t *testing.T) {
	require.Equal(t, 2048, SnapContextSize(1))
	require.Equal(t, 4096, SnapContextSize(5000))
	require.Equal(t, 131072, SnapContextSize(1<<20))
}

func TestThreadCountBounds(t *testing.T) {
	n := threadCount()
	require.GreaterOrEqual(t, n, 2)
	require.LessOrEqual(t, n, 16)
}
