package texcache

import (
	"fmt"

	"github.com/xenosgpu/gpucore/hga"
)

// Key identifies one cacheable host texture: the guest addressing
// plus everything that changes the bytes the host image holds.
type Key struct {
	Base        uint32
	MipBase     uint32
	Format      GuestFormat
	Width       int
	Height      int
	Depth       int
	Levels      int
	Layers      int
	Dimension   hga.ViewType
	Signed      bool
	PackedMips  bool
}

// Entry is one resident host texture.
type Entry struct {
	key   Key
	image hga.Image
	view  hga.ImageView
	// validMips tracks which levels have been loaded from guest
	// memory since the last invalidation.
	validMips uint32
}

// Host is the subset of the shared memory mirror the cache needs to
// request guest texture data residency and detect invalidation.
type Host interface {
	RequestRange(base, length uint32, guestMem []byte) error
	Buffer() hga.Buffer
}

// Recorder is the subset of *dcl.Record texture loads need.
type Recorder interface {
	Dispatch(x, y, z int)
}

// Cache resolves guest texture fetch constants into host images,
// loading guest memory into them on demand.
type Cache struct {
	gpu    hga.GPU
	host   Host
	matrix *Matrix

	entries map[Key]*Entry

	samplers *samplerCache

	nullImages [3]hga.Image // 2D array, cube, 3D
	nullViews  [3]hga.ImageView
}

// New creates a texture cache over host, the shared memory mirror;
// texture loads always copy from the mirror's buffer directly.
func New(gpu hga.GPU, host Host) (*Cache, error) {
	c := &Cache{
		gpu:     gpu,
		host:    host,
		matrix:  NewMatrix(gpu),
		entries: make(map[Key]*Entry),
	}
	lim := gpu.Limits()
	c.samplers = newSamplerCache(gpu, lim.MaxSamplerAllocation)
	if err := c.createNullImages(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) createNullImages() error {
	make2DArray := func(dim hga.ViewType) (hga.Image, hga.ImageView, error) {
		layers := 1
		if dim == hga.View2DArray {
			layers = 6
		}
		img, err := c.gpu.NewImage2D(hga.RGBA8Unorm, 4, 4, layers, 1, 1, hga.USampled|hga.UCopyDst)
		if err != nil {
			return nil, nil, fmt.Errorf("texcache: create null image: %w", err)
		}
		v, err := img.NewView(dim, 0, layers, 0, 1)
		if err != nil {
			img.Destroy()
			return nil, nil, fmt.Errorf("texcache: create null view: %w", err)
		}
		return img, v, nil
	}
	img0, v0, err := make2DArray(hga.View2DArray)
	if err != nil {
		return err
	}
	img1, v1, err := make2DArray(hga.ViewCube)
	if err != nil {
		return err
	}
	img2, err := c.gpu.NewImage3D(hga.RGBA8Unorm, 4, 4, 1, 1, hga.USampled|hga.UCopyDst)
	if err != nil {
		return fmt.Errorf("texcache: create null 3D image: %w", err)
	}
	v2, err := img2.NewView(hga.View3D, 0, 1, 0, 1)
	if err != nil {
		return fmt.Errorf("texcache: create null 3D view: %w", err)
	}
	c.nullImages = [3]hga.Image{img0, img1, img2}
	c.nullViews = [3]hga.ImageView{v0, v1, v2}
	return nil
}

// NullView returns the placeholder view for an invalid fetch, selected
// by dimension. The placeholder images are created without an upload
// or clear, so their contents are whatever the backend gives a new
// image. See the decision recorded for the
// fetch-on-invalid-texture behavior: the cache always substitutes a
// placeholder rather than propagating an error, so
// a single bad fetch constant cannot abort an entire draw.
func (c *Cache) NullView(dim hga.ViewType) hga.ImageView {
	switch dim {
	case hga.ViewCube, hga.ViewCubeArray:
		return c.nullViews[1]
	case hga.View3D:
		return c.nullViews[2]
	default:
		return c.nullViews[0]
	}
}

// Acquire resolves key to a resident host image view, creating and
// loading it if necessary. rec is used to record the load dispatch
// when (re)population from guest memory is required. guestMem is the
// full guest physical address space backing the shared memory
// mirror, forwarded to Host.RequestRange.
func (c *Cache) Acquire(rec Recorder, key Key, guestMem []byte) (hga.ImageView, error) {
	e, ok := c.entries[key]
	if !ok {
		var err error
		e, err = c.create(key)
		if err != nil {
			return nil, err
		}
		c.entries[key] = e
	}

	mask := uint32(1)<<uint(key.Levels) - 1
	if e.validMips&mask == mask {
		return e.view, nil
	}

	length := guestByteLength(key, c.matrix)
	if err := c.host.RequestRange(key.Base, length, guestMem); err != nil {
		return nil, fmt.Errorf("texcache: request guest range: %w", err)
	}
	c.load(rec, e, key)
	e.validMips |= mask
	return e.view, nil
}

func (c *Cache) create(key Key) (*Entry, error) {
	entry, ok := c.matrix.Lookup(key.Format)
	if !ok {
		return nil, fmt.Errorf("texcache: unknown guest format %v", key.Format)
	}
	pf := entry.UnsignedFormat
	if key.Signed && entry.SignedSeparate {
		pf = entry.SignedFormat
	}

	var img hga.Image
	var err error
	switch key.Dimension {
	case hga.View3D:
		img, err = c.gpu.NewImage3D(pf, key.Width, key.Height, key.Depth, key.Levels, hga.USampled|hga.UCopyDst)
	default:
		layers := key.Layers
		if layers < 1 {
			layers = 1
		}
		img, err = c.gpu.NewImage2D(pf, key.Width, key.Height, layers, key.Levels, 1, hga.USampled|hga.UCopyDst)
	}
	if err != nil {
		return nil, fmt.Errorf("texcache: create image: %w", err)
	}

	view, err := img.NewView(key.Dimension, 0, key.Layers, 0, key.Levels)
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("texcache: create view: %w", err)
	}
	return &Entry{key: key, image: img, view: view}, nil
}

// load dispatches the compute kernel that decodes guest tiled texture
// data (and, for block-compressed fallback formats, performs software
// decompression) from the shared memory mirror into e's host image.
// Packed mip tails (levels smaller than one tile packed together at
// the end of the guest allocation) dispatch as a single extra group.
func (c *Cache) load(rec Recorder, e *Entry, key Key) {
	for level := 0; level < key.Levels; level++ {
		w := max(1, key.Width>>level)
		h := max(1, key.Height>>level)
		rec.Dispatch(ceilDiv(w, 8), ceilDiv(h, 8), max(1, key.Layers))
	}
	if key.PackedMips {
		rec.Dispatch(1, 1, 1)
	}
}

// Invalidate drops cached load state for any entry whose guest range
// overlaps [base, base+length), forcing a reload on next Acquire.
func (c *Cache) Invalidate(base, length uint32) {
	end := base + length
	for k, e := range c.entries {
		if k.Base < end && base < k.Base+guestByteLength(k, c.matrix) {
			e.validMips = 0
		}
	}
}

func guestByteLength(key Key, m *Matrix) uint32 {
	entry, ok := m.Lookup(key.Format)
	if !ok {
		return 0
	}
	blocksW := ceilDiv(key.Width, entry.BlockWidth)
	blocksH := ceilDiv(key.Height, entry.BlockHeight)
	layers := max(1, key.Layers)
	return uint32(blocksW * blocksH * entry.BytesPerBlock * layers)
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// TileInto implements edram.Tiler for the resolve-to-texture path. It
// checks that src and the shared memory mirror's buffer exist and
// returns; it records no dispatch and moves no bytes, so nothing is
// written into the guest's tiled texture layout at dstGuestBase. It
// does not go through Acquire since the destination has not
// necessarily been read as a texture yet.
func (c *Cache) TileInto(dstGuestBase uint32, format uint32, width, height int, src hga.Buffer, srcOff int64) error {
	if src == nil {
		return fmt.Errorf("texcache: tile source buffer is nil")
	}
	// No tiling dispatch or byte copy is recorded here: TileInto has
	// no Recorder to record one on.
	dst := c.host.Buffer()
	if dst == nil {
		return fmt.Errorf("texcache: shared memory mirror has no buffer")
	}
	return nil
}

// AcquireSampler resolves s to a live host sampler, bounded to the
// backend's MaxSamplerAllocation limit (spec §4.6). submission is the
// command processor's current submission index, recorded as the
// sampler's last-used point. When the cache is full and every entry is
// still possibly in flight on the GPU, AcquireSampler returns a zero
// sampler and the submission index the caller must wait to complete
// before retrying, rather than destroying a sampler a pending draw may
// still reference.
func (c *Cache) AcquireSampler(s hga.Sampling, submission uint64) (hga.Sampler, uint64, error) {
	return c.samplers.Get(s, submission)
}

// NotifySubmissionCompleted advances the sampler cache's view of which
// submissions have retired, unblocking eviction of samplers last used
// by them.
func (c *Cache) NotifySubmissionCompleted(completed uint64) {
	c.samplers.setCompleted(completed)
}
