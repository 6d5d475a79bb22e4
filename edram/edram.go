// Package edram maps guest EDRAM tile regions to host render-target
// resources, tracks which EDRAM rows a binding has made dirty since
// its last store, and implements the resolve (EDRAM to guest memory)
// operation in its raw and format-converting forms.
package edram

import (
	"fmt"

	"github.com/xenosgpu/gpucore/hga"
)

const (
	// TileBytes is the size of one EDRAM tile at native (1x) scale.
	TileBytes = 5120
	// TileCount is the number of tiles in the 10 MiB logical array.
	TileCount = (10 << 20) / TileBytes

	// TileSampleWidth and TileRowHeight are an EDRAM tile's extent in
	// samples, per the glossary ("80-sample x 16-row block").
	TileSampleWidth = 80
	TileRowHeight   = 16
)

// LoadStoreMode tags one EDRAM region's load/store kernel mode. It is
// recorded on each Resource; the load/store dispatch uses the same 8x8
// group size for every mode, and the mode does not select kernel
// source, which is an externally supplied, already-translated shader
// blob.
type LoadStoreMode int

const (
	Mode32bppColor LoadStoreMode = iota
	Mode64bppColor
	Mode7e3Color
	ModeDepthUnorm
	ModeDepthFloat
)

// Rect is a pixel-space rectangle, used for viewport/scissor overlap
// tests and resolve windows.
type Rect struct{ X0, Y0, X1, Y1 int }

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Overlaps reports whether r and o share any pixel.
func (r Rect) Overlaps(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// Key identifies a cacheable render-target resource: guest dimensions
// in EDRAM units, format, and whether it is a depth target. At most
// one resource exists per key: findOrCreate reuses the first cached
// instance, so aliased binds of one key within a draw share it.
type Key struct {
	WidthUnits, HeightUnits int // width in 80-sample units, height in 16-row units
	Format                  uint32
	IsDepth                 bool
}

// Resource is one host render-target backing a Key.
type Resource struct {
	key   Key
	image hga.Image
	view  hga.ImageView
	mode  LoadStoreMode
}

// View returns the resource's image view, for binding into
// SetRenderTargets.
func (r *Resource) View() hga.ImageView { return r.view }

// Binding is one active EDRAM region bound for the current draw.
type Binding struct {
	Base      int // tile index
	DirtyRows int
	Format    uint32
	IsDepth   bool
	Resource  *Resource
}

// BindRequest describes one render target the guest wants enabled for
// the next draw.
type BindRequest struct {
	Base                    int
	Format                  uint32
	IsDepth                 bool
	WidthUnits, HeightUnits int
	Mode                    LoadStoreMode
}

// Manager owns the EDRAM scratch buffer, the cache of host render
// target resources, and the currently bound set.
type Manager struct {
	gpu   hga.GPU
	scale [2]int

	scratch hga.Buffer

	cache    map[Key][]*Resource
	bindings []Binding

	lastViewport Rect
	sinceResolve bool // true once a resolve has happened since the last full update
}

// scratchSize computes the EDRAM buffer size: the base 10 MiB region,
// doubled when a distinct depth-float shadow region is requested, and
// multiplied by the square of the resolution scale factor.
func scratchSize(scaleX, scaleY int, depthFloatShadow bool) int64 {
	n := int64(10 << 20)
	if depthFloatShadow {
		n *= 2
	}
	return n * int64(scaleX) * int64(scaleY)
}

// NewManager creates the EDRAM manager. scale is the resolution-scale
// configuration pair ({1,1} disables scaling).
func NewManager(gpu hga.GPU, scale [2]int, depthFloatShadow bool) (*Manager, error) {
	if scale[0] < 1 || scale[1] < 1 {
		return nil, fmt.Errorf("edram: invalid resolution scale %v", scale)
	}
	buf, err := gpu.NewCommittedBuffer(scratchSize(scale[0], scale[1], depthFloatShadow), false, hga.UShaderRead|hga.UShaderWrite|hga.UCopySrc|hga.UCopyDst)
	if err != nil {
		return nil, fmt.Errorf("edram: create scratch buffer: %w", err)
	}
	return &Manager{
		gpu:     gpu,
		scale:   scale,
		scratch: buf,
		cache:   make(map[Key][]*Resource),
	}, nil
}

// Scratch returns the EDRAM scratch buffer.
func (m *Manager) Scratch() hga.Buffer { return m.scratch }

// needsFullUpdate implements the attachment-update algorithm's
// trigger conditions.
func (m *Manager) needsFullUpdate(reqs []BindRequest, viewport Rect, isFrameStart bool) bool {
	if isFrameStart || m.sinceResolve {
		return true
	}
	if len(m.bindings) == 0 {
		return false
	}
	// Conservative approximation of "viewport overlaps unsaved data
	// from a previously used RT": rather than computing exact EDRAM
	// byte-range overlap from base+pitch+dirty-rows, any viewport
	// change while a binding still carries dirty rows is treated as a
	// potential overlap.
	if m.lastViewport != viewport {
		for _, b := range m.bindings {
			if b.DirtyRows > 0 {
				return true
			}
		}
	}
	for _, req := range reqs {
		for _, cur := range m.bindings {
			if cur.Base == req.Base && (cur.Format != req.Format || cur.IsDepth != req.IsDepth) {
				return true
			}
		}
	}
	return false
}

// UpdateRenderTargets runs the full or partial attachment-update
// algorithm for reqs, as required by current state, and returns the
// new binding set.
func (m *Manager) UpdateRenderTargets(rec Recorder, reqs []BindRequest, viewport Rect, isFrameStart bool) ([]Binding, error) {
	full := m.needsFullUpdate(reqs, viewport, isFrameStart)

	if full {
		for _, b := range m.bindings {
			m.store(rec, b)
		}
		m.bindings = nil
	}

	already := make(map[int]bool, len(m.bindings))
	for _, b := range m.bindings {
		already[b.Base] = true
	}

	var newBindings []Binding
	if !full {
		newBindings = append(newBindings, m.bindings...)
	}
	for _, req := range reqs {
		if !full && already[req.Base] {
			continue
		}
		res, err := m.findOrCreate(req)
		if err != nil {
			return nil, err
		}
		b := Binding{Base: req.Base, Format: req.Format, IsDepth: req.IsDepth, Resource: res}
		m.load(rec, b)
		newBindings = append(newBindings, b)
	}

	m.bindings = newBindings
	m.lastViewport = viewport
	m.sinceResolve = false
	return m.bindings, nil
}

func (m *Manager) findOrCreate(req BindRequest) (*Resource, error) {
	key := Key{WidthUnits: req.WidthUnits, HeightUnits: req.HeightUnits, Format: req.Format, IsDepth: req.IsDepth}
	for _, r := range m.cache[key] {
		return r, nil // first cached instance is reused; aliased-in-same-draw disambiguation is left to the caller via distinct Keys
	}
	pf := hga.RGBA8Unorm
	usage := hga.URenderTarget | hga.USampled
	if req.IsDepth {
		pf = hga.D32Float
		usage = hga.UDepthStencil | hga.USampled
	}
	img, err := m.gpu.NewImage2D(pf, req.WidthUnits*TileSampleWidth*m.scale[0], req.HeightUnits*TileRowHeight*m.scale[1], 1, 1, 1, usage)
	if err != nil {
		return nil, fmt.Errorf("edram: create render target image: %w", err)
	}
	view, err := img.NewView(hga.View2D, 0, 1, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("edram: create render target view: %w", err)
	}
	res := &Resource{key: key, image: img, view: view, mode: req.Mode}
	m.cache[key] = append(m.cache[key], res)
	return res, nil
}

// Recorder is the subset of *dcl.Record the store/load/resolve paths
// need.
type Recorder interface {
	Dispatch(x, y, z int)
	CopyBufferRegion(dst hga.Buffer, dstOff int64, src hga.Buffer, srcOff int64, size int64)
	SetRootConstantsCompute(nr int, data []uint32, destOff int)
}

// store dispatches the load/store kernel that writes b's current
// contents back into the EDRAM scratch buffer.
func (m *Manager) store(rec Recorder, b Binding) {
	gx, gy := dispatchGroups(b.Resource.key.WidthUnits, b.Resource.key.HeightUnits, m.scale)
	rec.Dispatch(gx, gy, 1)
}

// load dispatches the kernel that populates a freshly (re)allocated
// render target from the EDRAM scratch buffer.
func (m *Manager) load(rec Recorder, b Binding) {
	gx, gy := dispatchGroups(b.Resource.key.WidthUnits, b.Resource.key.HeightUnits, m.scale)
	rec.Dispatch(gx, gy, 1)
}

func dispatchGroups(widthUnits, heightUnits int, scale [2]int) (int, int) {
	w := widthUnits * TileSampleWidth * scale[0]
	h := heightUnits * TileRowHeight * scale[1]
	const groupW, groupH = 8, 8
	return (w + groupW - 1) / groupW, (h + groupH - 1) / groupH
}

// MarkDirty bumps each currently bound target's dirty-row count to at
// least rows, the conservative number of EDRAM rows the viewport
// intersected with the scissor covers.
func (m *Manager) MarkDirty(rows int) {
	for i := range m.bindings {
		if m.bindings[i].DirtyRows < rows {
			m.bindings[i].DirtyRows = rows
		}
	}
}

// Bindings returns the currently bound render targets.
func (m *Manager) Bindings() []Binding { return m.bindings }

// Restore replaces the live binding set with one captured earlier (a
// trace viewer's seek-to-submission feature), without issuing any
// load/store dispatch: the caller is responsible for ensuring the
// underlying resources are still valid, typically because snap was
// captured from this same Manager's cache.
func (m *Manager) Restore(bindings []Binding) {
	m.bindings = append([]Binding(nil), bindings...)
	m.sinceResolve = false
}
