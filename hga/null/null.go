// Package null implements hga against plain host memory instead of a
// real GPU. It performs real byte copies for buffer-to-buffer
// transfers, CPU-visible or not; image copies, draws and state setters
// have no effect. Every fence completes immediately, so components built on hga
// (smm, texcache, edram, primitive, cp) can be exercised in tests
// without a Direct3D 12 or Vulkan device.
package null

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/xenosgpu/gpucore/hga"
)

func init() {
	hga.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "null" }
func (driver) Close()       {}

var opened struct {
	once sync.Once
	g    *gpu
}

func (driver) Open() (hga.GPU, error) {
	opened.once.Do(func() { opened.g = &gpu{queue: &queue{}} })
	return opened.g, nil
}

// New returns a fresh null GPU directly, for callers that do not
// want to go through the hga.Drivers registry.
func New() hga.GPU {
	return &gpu{queue: &queue{}}
}

type gpu struct {
	queue *queue
}

func (g *gpu) Driver() hga.Driver { return driver{} }
func (g *gpu) Queue() hga.Queue   { return g.queue }

func (g *gpu) NewCommittedBuffer(size int64, visible bool, usg hga.Usage) (hga.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("null: buffer size must be positive")
	}
	return &buffer{data: make([]byte, size), visible: visible}, nil
}

func (g *gpu) NewReservedBuffer(size int64, usg hga.Usage) (hga.Buffer, error) {
	// The null backend has no real sparse memory; it always backs a
	// reserved buffer immediately so tile-mapping updates are no-ops
	// that still observe correct byte contents.
	if size <= 0 {
		return nil, errors.New("null: buffer size must be positive")
	}
	return &buffer{data: make([]byte, size), visible: true, reserved: true}, nil
}

func (g *gpu) NewImage2D(pf hga.PixelFmt, width, height, layers, levels, samples int, usg hga.Usage) (hga.Image, error) {
	if width < 1 || height < 1 || layers < 1 || levels < 1 {
		return nil, errors.New("null: invalid image2d parameters")
	}
	return &image{pf: pf, dim: hga.Dim3D{Width: width, Height: height, Depth: 1}, layers: layers, levels: levels, samples: samples}, nil
}

func (g *gpu) NewImage3D(pf hga.PixelFmt, width, height, depth, levels int, usg hga.Usage) (hga.Image, error) {
	if width < 1 || height < 1 || depth < 1 || levels < 1 {
		return nil, errors.New("null: invalid image3d parameters")
	}
	return &image{pf: pf, dim: hga.Dim3D{Width: width, Height: height, Depth: depth}, layers: 1, levels: levels, samples: 1}, nil
}

func (g *gpu) NewSampler(s *hga.Sampling) (hga.Sampler, error) {
	if s == nil {
		return nil, errors.New("null: nil sampler param")
	}
	cp := *s
	return &sampler{param: &cp}, nil
}

func (g *gpu) NewDescriptorHeap(d []hga.Descriptor) (hga.DescHeap, error) {
	return &descHeap{layout: append([]hga.Descriptor(nil), d...)}, nil
}

func (g *gpu) NewRootSignature(p *hga.RootSigParam) (hga.RootSignature, error) {
	return &resource{}, nil
}

func (g *gpu) NewGraphicsPipeline(state *hga.GraphState) (hga.PipelineHandle, error) {
	return &resolvedHandle{p: &resource{}}, nil
}

func (g *gpu) NewComputePipeline(state *hga.CompState) (hga.PipelineHandle, error) {
	return &resolvedHandle{p: &resource{}}, nil
}

func (g *gpu) NewCmdList() (hga.CmdList, error) {
	return &cmdList{}, nil
}

func (g *gpu) Limits() hga.Limits {
	return hga.Limits{
		MaxImage2D:            16384,
		MaxImageCube:          16384,
		MaxImage3D:             2048,
		MaxLayers:              2048,
		MaxRenderSize:          [2]int{16384, 16384},
		MaxRenderLayers:        2048,
		MaxColorTargets:        4,
		MaxViewports:           16,
		MaxDispatch:            [3]int{65535, 65535, 65535},
		MaxSamplerAllocation:   2048,
		TiledResourcesTier:     3,
		BindlessSupported:      true,
	}
}

func (g *gpu) FormatSupported(pf hga.PixelFmt, usg hga.Usage) bool {
	// The null backend has no real format restrictions; every
	// format/usage combination is reported as supported so that
	// texcache's fallback logic is exercised only when a test
	// explicitly wants it to be (via a stub GPU instead of this one).
	return true
}

func (g *gpu) CaptureEvent(label string) {}

// resource is a bare Destroyer used for handles with no behavior.
type resource struct{ destroyed bool }

func (r *resource) Destroy() { r.destroyed = true }

type resolvedHandle struct{ p hga.Pipeline }

func (h *resolvedHandle) Resolve() (hga.Pipeline, bool) { return h.p, true }

type buffer struct {
	data     []byte
	visible  bool
	reserved bool
	mu       sync.Mutex
}

func (b *buffer) Destroy()      {}
func (b *buffer) Visible() bool { return b.visible }
func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}
func (b *buffer) Cap() int64 { return int64(len(b.data)) }

type image struct {
	pf      hga.PixelFmt
	dim     hga.Dim3D
	layers  int
	levels  int
	samples int
}

func (i *image) Destroy() {}
func (i *image) NewView(typ hga.ViewType, layer, layers, level, levels int) (hga.ImageView, error) {
	if layer < 0 || layer+layers > i.layers {
		return nil, errors.New("null: image view layer range out of bounds")
	}
	return &imageView{img: i}, nil
}
func (i *image) PixelFmt() hga.PixelFmt { return i.pf }
func (i *image) Dim() hga.Dim3D         { return i.dim }
func (i *image) Layers() int            { return i.layers }
func (i *image) Levels() int            { return i.levels }
func (i *image) Samples() int           { return i.samples }

type imageView struct{ img *image }

func (v *imageView) Destroy()          {}
func (v *imageView) Image() hga.Image { return v.img }

type sampler struct{ param *hga.Sampling }

func (s *sampler) Destroy() {}

type descHeap struct {
	layout []hga.Descriptor
	count  int
}

func (h *descHeap) Destroy() {}
func (h *descHeap) New(n int) error {
	if n == h.count {
		return nil
	}
	h.count = n
	return nil
}
func (h *descHeap) SetBuffer(cpy, nr, start int, buf []hga.Buffer, off, size []int64)  {}
func (h *descHeap) SetImage(cpy, nr, start int, iv []hga.ImageView)                    {}
func (h *descHeap) SetSampler(cpy, nr, start int, s []hga.Sampler)                     {}
func (h *descHeap) Count() int                                                         { return h.count }

// cmdList records only buffer copies, as an op list that
// queue.ExecuteCommandLists replays synchronously at submission time;
// every other recording method is a no-op.
type cmdList struct {
	recording bool
	ops       []func()
}

func (c *cmdList) Destroy() {}
func (c *cmdList) Reset() error {
	c.ops = c.ops[:0]
	c.recording = false
	return nil
}
func (c *cmdList) Begin() error     { c.recording = true; return nil }
func (c *cmdList) Close() error     { c.recording = false; return nil }
func (c *cmdList) IsRecording() bool { return c.recording }

func (c *cmdList) record(f func()) { c.ops = append(c.ops, f) }

func (c *cmdList) CopyBufferRegion(dst hga.Buffer, dstOff int64, src hga.Buffer, srcOff int64, size int64) {
	c.record(func() {
		d, s := dst.(*buffer), src.(*buffer)
		copy(d.data[dstOff:dstOff+size], s.data[srcOff:srcOff+size])
	})
}
func (c *cmdList) CopyResource(dst, src hga.Image) {}
func (c *cmdList) CopyTextureRegion(dst hga.ImageView, dstOff hga.Off3D, src hga.ImageView, srcOff hga.Off3D, size hga.Dim3D) {
}
func (c *cmdList) CopyBufferToImage(dst hga.ImageView, layer int, dstOff hga.Off3D, size hga.Dim3D, src hga.Buffer, srcOff int64, rowPitch, slicePitch int64) {
}

func (c *cmdList) Dispatch(groupX, groupY, groupZ int)                                          {}
func (c *cmdList) DrawIndexedInstanced(indexCount, instCount, startIndex, baseVertex, startInst int) {}
func (c *cmdList) DrawInstanced(vertCount, instCount, startVertex, startInst int)                {}
func (c *cmdList) SetIndexBuffer(buf hga.Buffer, off int64, format hga.IndexFmt)                 {}
func (c *cmdList) SetVertexBuffers(start int, buf []hga.Buffer, off []int64)                     {}
func (c *cmdList) SetPrimitiveTopology(t hga.Topology)                                           {}
func (c *cmdList) SetBlendFactor(r, g, b, a float32)                                             {}
func (c *cmdList) SetStencilRef(ref uint32)                                                      {}
func (c *cmdList) SetRenderTargets(color []hga.ImageView, depth hga.ImageView)                   {}
func (c *cmdList) SetViewports(vp []hga.Viewport)                                                {}
func (c *cmdList) SetScissorRects(s []hga.Scissor)                                               {}
func (c *cmdList) SetSamplePositions(pos []hga.SamplePos)                                        {}
func (c *cmdList) SetRootSignatureGraphics(rs hga.RootSignature)                                 {}
func (c *cmdList) SetRootSignatureCompute(rs hga.RootSignature)                                  {}
func (c *cmdList) SetRootConstantsGraphics(nr int, data []uint32, destOff int)                   {}
func (c *cmdList) SetRootConstantsCompute(nr int, data []uint32, destOff int)                    {}
func (c *cmdList) SetRootCBV(nr int, buf hga.Buffer, off int64)                                  {}
func (c *cmdList) SetRootDescriptorTable(nr int, heap hga.DescHeap, heapCopy int)                {}
func (c *cmdList) SetDescriptorHeaps(heaps []hga.DescHeap)                                       {}
func (c *cmdList) SetPipeline(p hga.Pipeline)                                                    {}
func (c *cmdList) SetPipelineHandle(h hga.PipelineHandle)                                        {}
func (c *cmdList) ResourceBarrier(b []hga.Barrier)                                               {}

type queue struct {
	completed atomic.Uint64
}

func (q *queue) ExecuteCommandLists(cl []hga.CmdList) error {
	for _, l := range cl {
		c, ok := l.(*cmdList)
		if !ok {
			continue
		}
		for _, op := range c.ops {
			op()
		}
	}
	return nil
}

func (q *queue) Signal(value uint64) (hga.Fence, error) {
	q.completed.Store(value)
	return &fence{q: q}, nil
}

func (q *queue) UpdateTileMappings(buf hga.Buffer, mappings []hga.TileMapping) error {
	return nil
}

type fence struct{ q *queue }

func (f *fence) CompletedValue() uint64 { return f.q.completed.Load() }
func (f *fence) Wait(value uint64) error {
	if f.q.completed.Load() < value {
		return errors.New("null: fence value never reached (no pending work is ever asynchronous)")
	}
	return nil
}
