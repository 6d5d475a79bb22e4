package primitive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xenosgpu/gpucore/dcl"
	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/hga/null"
)

func TestFanToListMatchesSixIndexExample(t *testing.T) {
	got := FanToList([]uint32{0, 1, 2, 3, 4, 5})
	want := []uint32{
		1, 2, 0,
		2, 3, 0,
		3, 4, 0,
		4, 5, 0,
	}
	require.Equal(t, want, got)
}

func TestFanToListBelowThreeIndicesProducesNoTriangles(t *testing.T) {
	require.Nil(t, FanToList([]uint32{0, 1}))
}

func TestLoopToListClosesTheLoop(t *testing.T) {
	got := LoopToList([]uint32{0, 1, 2})
	require.Equal(t, []uint32{0, 1, 1, 2, 2, 0}, got)
}

func TestRemapPrimitiveReset(t *testing.T) {
	idx := []uint32{1, 2, 0xabcd, 3}
	RemapPrimitiveReset(idx, hga.Index16, 0xabcd)
	require.Equal(t, []uint32{1, 2, 0xffff, 3}, idx)
}

func TestRemapPrimitiveResetNoOpWhenAlreadyCanonical(t *testing.T) {
	idx := []uint32{1, 0xffffffff, 3}
	RemapPrimitiveReset(idx, hga.Index32, 0xffffffff)
	require.Equal(t, []uint32{1, 0xffffffff, 3}, idx)
}

func TestBuiltinIndexBufferUploadsOnceOnFirstSubmission(t *testing.T) {
	g := null.New()
	p, err := New(g, 1024, 4096)
	require.NoError(t, err)

	var rec dcl.Record
	p.BeginSubmission(&rec, 1)
	require.Equal(t, 1, rec.Len())
	p.BeginSubmission(&rec, 2)
	require.Equal(t, 1, rec.Len(), "builtin buffer must be uploaded exactly once")

	buf, n := p.BuiltinIndexBuffer()
	require.Equal(t, 1024, n)
	// The builtin buffer is not CPU-visible; copy its first triangle
	// into a visible buffer to read it back.
	readback, err := g.NewCommittedBuffer(12, true, hga.UCopyDst)
	require.NoError(t, err)
	rec.CopyBufferRegion(readback, 0, buf, 0, 12)

	cl, err := g.NewCmdList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	require.NoError(t, dcl.Replay(&rec, cl))
	require.NoError(t, cl.Close())
	require.NoError(t, g.Queue().ExecuteCommandLists([]hga.CmdList{cl}))

	// First triangle of the fan pattern is (1, 2, 0).
	require.Equal(t, byte(1), readback.Bytes()[0*4])
	require.Equal(t, byte(2), readback.Bytes()[1*4])
	require.Equal(t, byte(0), readback.Bytes()[2*4])
}

func TestTriangleFanIndexCountMatchesPrecomputedPattern(t *testing.T) {
	g := null.New()
	p, err := New(g, 1024, 4096)
	require.NoError(t, err)

	count, ok := p.TriangleFanIndexCount(2)
	require.False(t, ok, "fewer than 3 vertices must never produce a draw")
	require.Zero(t, count)

	count, ok = p.TriangleFanIndexCount(6)
	require.True(t, ok)
	require.Equal(t, 12, count)

	_, ok = p.TriangleFanIndexCount(1_000_000)
	require.False(t, ok, "a vertex count exceeding the builtin buffer's capacity must fall back to runtime conversion")
}

func TestRequestHostConvertedIndexBufferArenaResetsPerFrame(t *testing.T) {
	g := null.New()
	p, err := New(g, 16, 256)
	require.NoError(t, err)

	p.BeginFrame(0)
	m1, h1, err := p.RequestHostConvertedIndexBuffer(hga.Index32, 4, false)
	require.NoError(t, err)
	require.Len(t, m1, 16)
	_, off1, ok := p.Resolve(h1)
	require.True(t, ok)
	require.Equal(t, int64(0), off1)

	p.BeginFrame(1)
	m2, h2, err := p.RequestHostConvertedIndexBuffer(hga.Index32, 4, false)
	require.NoError(t, err)
	require.Len(t, m2, 16)
	_, off2, ok := p.Resolve(h2)
	require.True(t, ok)
	require.Equal(t, int64(0), off2, "new frame's arena slot must start its bump cursor back at 0")
}

func TestRequestHostConvertedIndexBufferExhaustion(t *testing.T) {
	g := null.New()
	p, err := New(g, 16, 32)
	require.NoError(t, err)
	p.BeginFrame(0)

	_, _, err = p.RequestHostConvertedIndexBuffer(hga.Index32, 8, false)
	require.NoError(t, err)
	_, _, err = p.RequestHostConvertedIndexBuffer(hga.Index32, 8, false)
	require.Error(t, err)
}
