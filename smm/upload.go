package smm

import (
	"fmt"

	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/internal/bitm"
)

// uploadSpan is the granularity of the upload pool's span allocator:
// requests are rounded up to this size, matching the block allocator
// pattern used by the mesh storage arena this is adapted from.
const uploadSpan = 256

// uploadPool is a growable set of host-visible staging buffers used
// to stage guest-memory copies before they are recorded as
// copy-buffer-region commands into the open submission's deferred
// command list. It generalizes the single-buffer staging pool pattern
// (global channel of reusable buffers, bitmap span allocator, grow-
// by-doubling) to per-Mirror ownership, since each Mirror instance
// needs its own upload traffic independent of any other subsystem's
// staging.
type uploadPool struct {
	gpu  hga.GPU
	bufs []*poolBuffer
}

type poolBuffer struct {
	buf  hga.Buffer
	bm   bitm.Bitm[uint32]
}

func newUploadPool(gpu hga.GPU) *uploadPool {
	return &uploadPool{gpu: gpu}
}

// reserve finds (growing the pool if necessary) a contiguous region
// of at least size bytes and returns the owning buffer and the byte
// offset within it.
func (p *uploadPool) reserve(size int) (*poolBuffer, int64, error) {
	nspan := (size + uploadSpan - 1) / uploadSpan
	for _, b := range p.bufs {
		if idx, ok := b.bm.SearchRange(nspan); ok {
			for i := idx; i < idx+nspan; i++ {
				b.bm.Set(i)
			}
			return b, int64(idx) * uploadSpan, nil
		}
	}
	// Grow by doubling the largest existing buffer, or start at a
	// size that comfortably covers this request.
	newSize := int64(1 << 20)
	if len(p.bufs) > 0 {
		newSize = p.bufs[len(p.bufs)-1].buf.Cap() * 2
	}
	for newSize < int64(size) {
		newSize *= 2
	}
	buf, err := p.gpu.NewCommittedBuffer(newSize, true, hga.UCopySrc)
	if err != nil {
		return nil, 0, fmt.Errorf("smm: grow upload pool: %w", err)
	}
	nb := &poolBuffer{buf: buf}
	nb.bm.Grow(int(newSize / uploadSpan / 32)) // 32 spans per uint32 word
	for i := 0; i < nspan; i++ {
		nb.bm.Set(i)
	}
	p.bufs = append(p.bufs, nb)
	return nb, 0, nil
}

// uploadRun copies guest bytes into a fresh span of the pool and
// records a copy-buffer-region from it into dst at dstOff.
func (p *uploadPool) uploadRun(rec recorder, dst hga.Buffer, dstOff int64, guestMem []byte, guestOff uint32, length uint32) error {
	b, off, err := p.reserve(int(length))
	if err != nil {
		return err
	}
	copy(b.buf.Bytes()[off:off+int64(length)], guestMem[guestOff:guestOff+length])
	rec.CopyBufferRegion(dst, dstOff, b.buf, off, int64(length))
	return nil
}

// recorder is the subset of *dcl.Record the upload path needs.
type recorder interface {
	CopyBufferRegion(dst hga.Buffer, dstOff int64, src hga.Buffer, srcOff int64, size int64)
}

// upload scans the validity bitmap over [base, base+length), coalesces
// contiguous invalid page runs, and uploads each run through the pool,
// marking pages valid as it goes. It registers no write-watches; those
// come only from Watch. guestMem is indexed directly by guest physical
// address.
func (m *Mirror) upload(base, length uint32, guestMem []byte) error {
	if int64(base)+int64(length) > Size {
		return fmt.Errorf("smm: range [%#x, %#x) exceeds mirror size", base, base+length)
	}
	startPage := int(base / PageSize)
	endPage := int((base + length + PageSize - 1) / PageSize)

	rec := m.host.Record()

	m.mu.Lock()
	runs := m.invalidRunsLocked(startPage, endPage)
	for _, r := range runs {
		for p := r.start; p < r.end; p++ {
			m.valid.Set(p)
		}
	}
	m.mu.Unlock()

	for _, r := range runs {
		runBase := uint32(r.start * PageSize)
		runLen := uint32((r.end - r.start) * PageSize)
		if runBase+runLen > uint32(len(guestMem)) {
			runLen = uint32(len(guestMem)) - runBase
		}
		if err := m.pool.uploadRun(rec, m.buf, int64(runBase), guestMem, runBase, runLen); err != nil {
			return err
		}
	}
	return nil
}

type pageRun struct{ start, end int }

// invalidRunsLocked must be called with m.mu held.
func (m *Mirror) invalidRunsLocked(startPage, endPage int) []pageRun {
	var runs []pageRun
	inRun := false
	var runStart int
	for p := startPage; p < endPage; p++ {
		if !m.valid.IsSet(p) {
			if !inRun {
				inRun = true
				runStart = p
			}
			continue
		}
		if inRun {
			runs = append(runs, pageRun{runStart, p})
			inRun = false
		}
	}
	if inRun {
		runs = append(runs, pageRun{runStart, endPage})
	}
	return runs
}
