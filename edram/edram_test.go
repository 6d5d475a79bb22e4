package edram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xenosgpu/gpucore/dcl"
	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/hga/null"
)

func TestFullUpdateOnFrameStart(t *testing.T) {
	g := null.New()
	m, err := NewManager(g, [2]int{1, 1}, false)
	require.NoError(t, err)

	var rec dcl.Record
	reqs := []BindRequest{{Base: 0, Format: 1, WidthUnits: 1, HeightUnits: 4}}
	bindings, err := m.UpdateRenderTargets(&rec, reqs, Rect{0, 0, 80, 64}, true)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
}

func TestPartialUpdateReusesExistingBindingNoExtraLoad(t *testing.T) {
	g := null.New()
	m, err := NewManager(g, [2]int{1, 1}, false)
	require.NoError(t, err)
	var rec dcl.Record

	reqs := []BindRequest{{Base: 0, Format: 1, WidthUnits: 1, HeightUnits: 4}}
	_, err = m.UpdateRenderTargets(&rec, reqs, Rect{0, 0, 80, 64}, true)
	require.NoError(t, err)
	firstLen := rec.Len()

	// Same viewport, same binding: no new loads/stores should fire.
	_, err = m.UpdateRenderTargets(&rec, reqs, Rect{0, 0, 80, 64}, false)
	require.NoError(t, err)
	require.Equal(t, firstLen, rec.Len(), "two consecutive identical updates must not re-load/store")
}

func TestOverlapForcesFullUpdate(t *testing.T) {
	g := null.New()
	m, err := NewManager(g, [2]int{1, 1}, false)
	require.NoError(t, err)
	var rec dcl.Record

	rt0 := BindRequest{Base: 0, Format: 1, WidthUnits: 1, HeightUnits: 6}
	rt1 := BindRequest{Base: 300, Format: 1, WidthUnits: 1, HeightUnits: 3}
	bindings, err := m.UpdateRenderTargets(&rec, []BindRequest{rt0, rt1}, Rect{0, 0, 80, 96}, true)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	m.MarkDirty(90)

	// draw 2 disables RT1, with a different viewport: must force a
	// full update (store RT1, reallocate/reload RT0).
	before := rec.Len()
	bindings, err = m.UpdateRenderTargets(&rec, []BindRequest{rt0}, Rect{0, 0, 80, 45}, false)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Greater(t, rec.Len(), before, "full update must record store+load dispatches")
}

func TestResolveRawEmptyWindowIsNoOp(t *testing.T) {
	g := null.New()
	m, err := NewManager(g, [2]int{1, 1}, false)
	require.NoError(t, err)
	var rec dcl.Record
	res, err := m.ResolveRaw(&rec, noopTiler{}, 0, ResolveParams{Window: Rect{0, 0, 0, 0}, Samples: 1})
	require.NoError(t, err)
	require.Equal(t, DispatchResult{}, res)
	require.Equal(t, 0, rec.Len())
}

func TestResolveRawGroupCounts(t *testing.T) {
	g := null.New()
	m, err := NewManager(g, [2]int{1, 1}, false)
	require.NoError(t, err)
	var rec dcl.Record
	res, err := m.ResolveRaw(&rec, noopTiler{}, 0, ResolveParams{
		SrcFormat: 1, DstFormat: 1,
		Window:  Rect{0, 0, 64, 64},
		Samples: 1,
	})
	require.NoError(t, err)
	require.Equal(t, ceilDiv(64, TileSampleWidth), res.GroupX)
	require.Equal(t, ceilDiv(64, TileRowHeight), res.GroupY)
}

func TestResolveConvertClearColorEncodesRootConstants(t *testing.T) {
	g := null.New()
	m, err := NewManager(g, [2]int{1, 1}, false)
	require.NoError(t, err)
	var rec dcl.Record
	err = m.ResolveConvert(&rec, noopTiler{}, 0, ResolveParams{
		Window:        Rect{0, 0, 16, 16},
		ClearColor:    true,
		ClearColorVal: [4]float32{1, 0.5, 0, 1},
	})
	require.NoError(t, err)
	require.Greater(t, rec.Len(), 0, "clear-color resolve must record the constants write and the kernel dispatch")
}

func TestEncode7e3ClampsAndRoundsToZeroAtOrigin(t *testing.T) {
	require.Equal(t, uint32(0), encode7e3(0))
	require.Equal(t, uint32(0), encode7e3(-5))
}

type noopTiler struct{}

func (noopTiler) TileInto(dstGuestBase uint32, format uint32, width, height int, src hga.Buffer, srcOff int64) error {
	return nil
}
