package editops

import "testing"

func TestChunkBoundsSplitsIntoConsecutiveChunks(t *testing.T) {
	bounds := chunkBounds(14, 5)
	want := []chunkBound{{0, 5}, {5, 10}, {10, 14}}
	if len(bounds) != len(want) {
		t.Fatalf("chunkBounds(14, 5) = %v, want %v", bounds, want)
	}
	for i := range want {
		if bounds[i] != want[i] {
			t.Errorf("chunk %d = %v, want %v", i, bounds[i], want[i])
		}
	}
}

func TestChunkBoundsShortDurationIsSingleChunk(t *testing.T) {
	bounds := chunkBounds(3, 5)
	if len(bounds) != 1 || bounds[0] != (chunkBound{0, 3}) {
		t.Errorf("chunkBounds(3, 5) = %v, want single chunk [0,3)", bounds)
	}
}

func TestChunkBoundsExactMultiple(t *testing.T) {
	bounds := chunkBounds(10, 5)
	want := []chunkBound{{0, 5}, {5, 10}}
	if len(bounds) != len(want) {
		t.Fatalf("chunkBounds(10, 5) = %v, want %v", bounds, want)
	}
	for i := range want {
		if bounds[i] != want[i] {
			t.Errorf("chunk %d = %v, want %v", i, bounds[i], want[i])
		}
	}
}
