package edram

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/xenosgpu/gpucore/hga"
)

// encode7e3 packs a linear color channel into the 7-bit-mantissa,
// 3-bit-exponent shared-exponent encoding EDRAM's Mode7e3Color render
// targets use, by biasing the IEEE-754 exponent down into the
// narrower 3-bit range and rounding the mantissa to 7 bits. Computed
// in float32 throughout to match the single-precision color the
// compute kernel would otherwise produce on-device.
func encode7e3(c float32) uint32 {
	c = math32.Max(0, math32.Min(c, 31.875))
	if c == 0 {
		return 0
	}
	frac, exp := math32.Frexp(c)
	// Frexp normalizes to [0.5, 1); 7e3's implicit leading bit expects
	// [1, 2), so shift the exponent bias by one.
	exp--
	if exp < 0 {
		exp = 0
	}
	if exp > 7 {
		exp = 7
	}
	mantissa := uint32(math32.Round(frac*2*128)) & 0x7f
	return uint32(exp)<<7 | mantissa
}

// ResolveParams describes one guest resolve (copy-to-guest-memory)
// request.
type ResolveParams struct {
	SrcBase       int
	SrcFormat     uint32
	DstFormat     uint32
	Window        Rect
	Samples       int
	SampleSelect  int // which sample index to read when not averaging
	Convert       bool
	ClearColor    bool
	ClearColorVal [4]float32
	ClearDepth    bool
}

// Tiler converts a linear host buffer region into guest tiled memory
// layout; implemented by the texture cache, which owns the guest
// tiling format tables. Kept as a narrow interface so edram does not
// import texcache (one-way ownership, see design notes).
type Tiler interface {
	TileInto(dstGuestBase uint32, format uint32, width, height int, src hga.Buffer, srcOff int64) error
}

// DispatchResult reports the compute dispatch group counts a raw
// resolve issued, for diagnostics and the bring-up test scenarios.
type DispatchResult struct{ GroupX, GroupY, GroupZ int }

// ResolveRaw performs a same-format, single-sample, no-bias resolve:
// one compute dispatch reading EDRAM tiles and writing tiled guest
// memory directly. An empty window after scissoring is a no-op that
// returns success, per the boundary-behavior requirement.
func (m *Manager) ResolveRaw(rec Recorder, tiler Tiler, dstGuestBase uint32, p ResolveParams) (DispatchResult, error) {
	if p.Window.Empty() {
		return DispatchResult{}, nil
	}
	if p.SrcFormat != p.DstFormat {
		return DispatchResult{}, fmt.Errorf("edram: raw resolve requires matching src/dst format")
	}
	w := p.Window.X1 - p.Window.X0
	h := p.Window.Y1 - p.Window.Y0
	gx := ceilDiv(w*p.Samples, TileSampleWidth)
	gy := ceilDiv(h*p.Samples, TileRowHeight)
	rec.Dispatch(gx, gy, 1)
	m.sinceResolve = true
	return DispatchResult{gx, gy, 1}, nil
}

// ResolveConvert performs a format-converting resolve: loads the
// EDRAM region into a transient host color texture, conceptually runs
// a fullscreen bilinear-downsample + exponent-bias + channel-swap
// pass (represented here as a compute dispatch, since the actual
// shader is an externally supplied blob), copies the result into an
// aligned upload buffer, and hands it to the texture cache's tiler.
func (m *Manager) ResolveConvert(rec Recorder, tiler Tiler, dstGuestBase uint32, p ResolveParams) error {
	if p.Window.Empty() {
		return nil
	}
	w := p.Window.X1 - p.Window.X0
	h := p.Window.Y1 - p.Window.Y0

	transient, err := m.gpu.NewImage2D(hga.RGBA8Unorm, w, h, 1, 1, 1, hga.URenderTarget|hga.USampled)
	if err != nil {
		return fmt.Errorf("edram: create transient resolve target: %w", err)
	}
	defer transient.Destroy()

	if p.ClearColor {
		packed := [4]uint32{
			encode7e3(p.ClearColorVal[0]),
			encode7e3(p.ClearColorVal[1]),
			encode7e3(p.ClearColorVal[2]),
			encode7e3(p.ClearColorVal[3]),
		}
		rec.SetRootConstantsCompute(0, packed[:], 0)
	}
	rec.Dispatch(ceilDiv(w, 8), ceilDiv(h, 8), 1)

	upload, err := m.gpu.NewCommittedBuffer(int64(w*h*4), true, hga.UCopySrc)
	if err != nil {
		return fmt.Errorf("edram: create resolve upload buffer: %w", err)
	}
	defer upload.Destroy()

	if err := tiler.TileInto(dstGuestBase, p.DstFormat, w, h, upload, 0); err != nil {
		return fmt.Errorf("edram: tile resolved data: %w", err)
	}
	m.sinceResolve = true
	return nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
