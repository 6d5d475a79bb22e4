package bitvec

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// These tests exercise V through the one shape this module actually asks
// of it: the shared memory mirror's per-4 KiB-page validity bitmap
// (smm.Mirror.valid), which is sized once when the mirror is created,
// unsets a page's bit when a CPU write invalidates it, and sets it
// again when it uploads the page. The mirror's dirty-page scan reads
// single bits with IsSet.

func TestGranuleWidthMatchesUnderlyingType(t *testing.T) {
	require.Equal(t, int(unsafe.Sizeof(uint(0)))*8, (&V[uint]{}).nbit())
	require.Equal(t, int(unsafe.Sizeof(uint8(0)))*8, (&V[uint8]{}).nbit())
	require.Equal(t, int(unsafe.Sizeof(uint16(0)))*8, (&V[uint16]{}).nbit())
	require.Equal(t, int(unsafe.Sizeof(uint32(0)))*8, (&V[uint32]{}).nbit())
	require.Equal(t, int(unsafe.Sizeof(uint64(0)))*8, (&V[uint64]{}).nbit())
	require.Equal(t, int(unsafe.Sizeof(uintptr(0)))*8, (&V[uintptr]{}).nbit())
}

func TestZeroValueVectorIsEmpty(t *testing.T) {
	var v V[uint32]
	require.Nil(t, v.s)
	require.Zero(t, v.rem)
	require.Zero(t, v.Len())
	require.Zero(t, v.Rem())
}

func TestGrowAppendsUnsetPageBits(t *testing.T) {
	var valid V[uint64] // models a per-page validity bitmap, 64 pages per word
	for _, step := range []struct{ nplus, wantLen int }{
		{1, 64}, {4, 320}, {0, 320}, {2, 448},
	} {
		valid.Grow(step.nplus)
		require.Equal(t, step.wantLen, valid.Len())
		require.Equal(t, step.wantLen, valid.Rem(), "newly mapped pages start invalid")
		for i, word := range valid.s {
			require.Zerof(t, word, "word %d must start unset", i)
		}
	}
}

func TestGrowReturnsPriorLengthAsTheNewRangesStart(t *testing.T) {
	var v V[uint32]
	v.Grow(2)
	start := v.Grow(5)
	require.Equal(t, 64, start)
	require.Equal(t, 224, v.Len())
}

func TestShrinkTruncatesTrailingWords(t *testing.T) {
	var v V[uint8]
	v.Grow(4)
	for i := 0; i < v.Len(); i++ {
		if i%3 == 0 {
			v.Set(i)
		}
	}
	before := v.Rem()

	v.Shrink(1)
	require.Equal(t, 24, v.Len())
	require.Less(t, v.Rem(), before+8, "rem accounting must only reflect the remaining words")

	v.Shrink(0)
	require.Equal(t, 24, v.Len(), "Shrink(0) is a no-op")

	v.Shrink(100)
	require.Zero(t, v.Len())
	require.Zero(t, v.Rem())
}

func TestShrinkAccountsPartiallySetWordsExactly(t *testing.T) {
	var v V[uint8]
	v.Grow(2)
	v.Set(0) // first word: one bit set, seven unset
	// second word left fully unset
	v.Shrink(1)
	require.Equal(t, 8, v.Len())
	require.Equal(t, 7, v.Rem())
}

func TestSetMarksAPageValidAndDecrementsRem(t *testing.T) {
	var v V[uint8]
	v.Grow(1)
	v.Set(6)
	require.Equal(t, uint8(0x40), v.s[0])
	v.Set(1)
	require.Equal(t, uint8(0x42), v.s[0])
	require.Equal(t, v.Len()-2, v.Rem())
}

func TestUnsetInvalidatesAPageOnWriteWatch(t *testing.T) {
	var v V[uint8]
	v.Grow(1)
	v.Set(6)
	v.Set(1)
	v.Unset(6) // write-watch callback fires for page 6
	require.Equal(t, uint8(0x02), v.s[0])
	require.Equal(t, v.Len()-1, v.Rem())
}

func TestSetUnsetAcrossMultipleWords(t *testing.T) {
	var v V[uint8]
	v.Grow(3)
	v.Set(6)
	v.Set(10)
	v.Set(21)
	require.Equal(t, []uint8{0x40, 0x04, 0x20}, v.s)
	v.Unset(21)
	v.Unset(6)
	require.Equal(t, []uint8{0x00, 0x04, 0x00}, v.s)
}

func TestIsSetReflectsSetAndUnset(t *testing.T) {
	var v V[uint64]
	v.Grow(2)
	require.False(t, v.IsSet(0))
	v.Set(0)
	require.True(t, v.IsSet(0))
	require.False(t, v.IsSet(1))
	v.Set(v.Len() - 1)
	require.True(t, v.IsSet(v.Len()-1))
	v.Unset(0)
	require.False(t, v.IsSet(0))
}

func TestSearchFindsLowestInvalidPage(t *testing.T) {
	var v V[uint32]
	_, ok := v.Search()
	require.False(t, ok, "no pages mapped yet")

	v.Grow(12)
	idx, ok := v.Search()
	require.True(t, ok)
	require.Zero(t, idx)

	v.Set(0)
	idx, ok = v.Search()
	require.True(t, ok)
	require.Equal(t, 1, idx)

	v.Set(1)
	v.Set(3)
	idx, ok = v.Search()
	require.True(t, ok)
	require.Equal(t, 2, idx)

	for i := 0; i < v.nbit()*2; i++ {
		v.Set(i)
	}
	idx, ok = v.Search()
	require.True(t, ok)
	require.Equal(t, 64, idx)

	for i := 64; i < v.Len(); i++ {
		v.Set(i)
	}
	_, ok = v.Search()
	require.False(t, ok, "every mapped page is valid")

	v.Unset(120)
	idx, ok = v.Search()
	require.True(t, ok)
	require.Equal(t, 120, idx)
}

func TestSearchRangeFindsAContiguousInvalidRun(t *testing.T) {
	var v V[uint16]
	setRange := func(start, end int) {
		for i := start; i < end; i++ {
			v.Set(i)
		}
	}

	_, ok := v.SearchRange(3)
	require.False(t, ok)

	v.Grow(4)
	idx, ok := v.SearchRange(3)
	require.True(t, ok)
	require.Zero(t, idx)

	setRange(0, 9)
	v.Set(9)
	idx, ok = v.SearchRange(2)
	require.True(t, ok)
	require.Equal(t, 10, idx)

	setRange(10, 12)
	v.Unset(1)
	idx, ok = v.SearchRange(1)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	idx, ok = v.SearchRange(6)
	require.True(t, ok)
	require.Equal(t, 12, idx)

	setRange(12, 18)
	setRange(19, 32)
	v.Set(35)
	v.Set(46)
	idx, ok = v.SearchRange(4)
	require.True(t, ok)
	require.Equal(t, 36, idx)

	idx, ok = v.SearchRange(20)
	require.False(t, ok, "no run of 20 invalid pages exists yet")

	v.Grow(1)
	idx, ok = v.SearchRange(20)
	require.True(t, ok)
	require.Equal(t, 47, idx)
}

func TestClearInvalidatesEveryPage(t *testing.T) {
	var v V[uint]
	v.Grow(9)
	for i := 0; i < v.Len(); i++ {
		v.Set(i)
	}
	v.Clear()
	require.Equal(t, v.Len(), v.Rem())
	for i, word := range v.s {
		require.Zerof(t, word, "word %d must be cleared", i)
	}
}

func TestAllIteratesEveryBitInOrder(t *testing.T) {
	var v V[uint8]
	v.Grow(2)
	v.Set(0)
	v.Set(5)
	v.Set(15)

	var indices []int
	var states []bool
	for i, set := range v.All() {
		indices = append(indices, i)
		states = append(states, set)
	}
	require.Len(t, indices, 16)
	for i := range indices {
		require.Equal(t, i, indices[i])
	}
	require.True(t, states[0])
	require.True(t, states[5])
	require.True(t, states[15])
	for _, i := range []int{1, 2, 3, 4, 6, 7, 8, 9, 10, 11, 12, 13, 14} {
		require.Falsef(t, states[i], "bit %d must be unset", i)
	}
}

func TestAllStopsEarlyWhenYieldReturnsFalse(t *testing.T) {
	var v V[uint8]
	v.Grow(4)

	var visited int
	for range v.All() {
		visited++
		if visited == 5 {
			break
		}
	}
	require.Equal(t, 5, visited, "range-over-func must honor an early break")
}
