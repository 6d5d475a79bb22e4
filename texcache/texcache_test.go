package texcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/hga/null"
)

type fakeHost struct {
	buf       hga.Buffer
	requested int
}

func (h *fakeHost) RequestRange(base, length uint32, guestMem []byte) error {
	h.requested++
	return nil
}

func (h *fakeHost) Buffer() hga.Buffer { return h.buf }

type fakeRecorder struct{ dispatches int }

func (r *fakeRecorder) Dispatch(x, y, z int) { r.dispatches++ }

func newTestCache(t *testing.T) (*Cache, *fakeHost) {
	g := null.New()
	buf, err := g.NewCommittedBuffer(4096, true, hga.UCopySrc)
	require.NoError(t, err)
	host := &fakeHost{buf: buf}
	c, err := New(g, host)
	require.NoError(t, err)
	return c, host
}

func TestAcquireCreatesAndLoadsOnFirstCall(t *testing.T) {
	c, host := newTestCache(t)
	var rec fakeRecorder

	key := Key{Base: 0x1000, Format: FmtK8G8R8A8, Width: 16, Height: 16, Levels: 1, Layers: 1, Dimension: hga.View2D}
	v, err := c.Acquire(&rec, key, nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, 1, host.requested)
	require.Equal(t, 1, rec.dispatches)
}

func TestAcquireSecondCallIsNoOpWhenStillValid(t *testing.T) {
	c, host := newTestCache(t)
	var rec fakeRecorder

	key := Key{Base: 0x1000, Format: FmtK8G8R8A8, Width: 16, Height: 16, Levels: 1, Layers: 1, Dimension: hga.View2D}
	_, err := c.Acquire(&rec, key, nil)
	require.NoError(t, err)
	_, err = c.Acquire(&rec, key, nil)
	require.NoError(t, err)
	require.Equal(t, 1, host.requested, "a still-valid entry must not re-request guest memory")
}

func TestInvalidateForcesReload(t *testing.T) {
	c, host := newTestCache(t)
	var rec fakeRecorder

	key := Key{Base: 0x1000, Format: FmtK8G8R8A8, Width: 16, Height: 16, Levels: 1, Layers: 1, Dimension: hga.View2D}
	_, err := c.Acquire(&rec, key, nil)
	require.NoError(t, err)

	c.Invalidate(0x1000, 64)
	_, err = c.Acquire(&rec, key, nil)
	require.NoError(t, err)
	require.Equal(t, 2, host.requested)
}

func TestNullViewSelectsByDimension(t *testing.T) {
	c, _ := newTestCache(t)
	require.NotNil(t, c.NullView(hga.View2D))
	require.NotNil(t, c.NullView(hga.ViewCube))
	require.NotNil(t, c.NullView(hga.View3D))
}

func TestSamplerCacheEvictsLeastRecentlyUsed(t *testing.T) {
	g := null.New()
	sc := newSamplerCache(g, 2)
	sc.setCompleted(10) // every submission below is already retired

	a, await, err := sc.Get(hga.Sampling{Min: hga.FNearest}, 1)
	require.NoError(t, err)
	require.Zero(t, await)
	_, await, err = sc.Get(hga.Sampling{Min: hga.FLinear}, 2)
	require.NoError(t, err)
	require.Zero(t, await)
	require.Equal(t, 2, sc.Len())

	// Touch a again so b becomes the LRU entry.
	a2, await, err := sc.Get(hga.Sampling{Min: hga.FNearest}, 3)
	require.NoError(t, err)
	require.Zero(t, await)
	require.Same(t, a, a2)

	_, await, err = sc.Get(hga.Sampling{Min: hga.FNearest, AddrU: hga.AClamp}, 4)
	require.NoError(t, err)
	require.Zero(t, await)
	require.Equal(t, 2, sc.Len(), "cache must stay at capacity by evicting the LRU entry")
}

func TestSamplerCacheAwaitsWhenNoEntryIsRetired(t *testing.T) {
	g := null.New()
	sc := newSamplerCache(g, 1)

	_, await, err := sc.Get(hga.Sampling{Min: hga.FNearest}, 5)
	require.NoError(t, err)
	require.Zero(t, await)

	// Nothing has completed yet, so the sole entry cannot be evicted.
	s, await, err := sc.Get(hga.Sampling{Min: hga.FLinear}, 6)
	require.NoError(t, err)
	require.Nil(t, s)
	require.Equal(t, uint64(5), await)

	sc.setCompleted(5)
	s, await, err = sc.Get(hga.Sampling{Min: hga.FLinear}, 6)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Zero(t, await)
}

func TestMatrixFallsBackWhenBlockCompressionUnsupported(t *testing.T) {
	g := &stubGPU{GPU: null.New(), deny: hga.BC1Unorm}
	m := NewMatrix(g)
	e, ok := m.Lookup(FmtKDXT1)
	require.True(t, ok)
	require.False(t, e.BlockCompressed)
	require.Equal(t, hga.RGBA8Unorm, e.UnsignedFormat)
}

type stubGPU struct {
	hga.GPU
	deny hga.PixelFmt
}

func (s *stubGPU) FormatSupported(pf hga.PixelFmt, usg hga.Usage) bool {
	return pf != s.deny
}
