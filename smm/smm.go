// Package smm mirrors guest physical memory into a single large host
// buffer, sparsely backed and tracked for per-page validity, serving
// as the source for vertex, constant, and texture uploads.
package smm

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/xenosgpu/gpucore/dcl"
	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/internal/bitm"
	"github.com/xenosgpu/gpucore/internal/bitvec"
)

const (
	// Size is the mirror's total extent: 512 MiB of guest physical
	// address space.
	Size = 512 << 20

	// BlockSize is the sparse backing granularity; a block is either
	// fully resident or fully absent.
	BlockSize = 64 << 10

	// PageSize is the validity-tracking granularity, matched to a
	// typical host page.
	PageSize = 4 << 10

	blockCount = Size / BlockSize
	pageCount  = Size / PageSize
)

// Host is the narrow view of the command processor that the mirror
// needs: the deferred command list for the open submission,
// submission-index accessors, and tile-mapping notification. The
// mirror does not read the submission accessors, and its upload pool
// never releases a span once reserved. The
// command processor is constructed first and passed in at New,
// matching the one-way ownership model (components never own the CP).
type Host interface {
	Record() *dcl.Record
	CurrentSubmission() uint64
	CompletedSubmission() uint64
	NotifyTileMappingQueued()
}

// WatchFunc is invoked when a CPU write clears validity over [base,
// base+length). It runs outside any lock the Mirror holds.
type WatchFunc func(base, length uint32)

// Mirror is the 512 MiB shared guest-memory buffer.
type Mirror struct {
	gpu    hga.GPU
	host   Host
	tiled  bool
	buf    hga.Buffer

	mu       sync.Mutex // guards valid, blocks, watches
	valid    bitvec.V[uint64]
	blocks   bitm.Bitm[uint64]
	watches  []watchEntry

	// invalidateFlight collapses concurrent InvalidatePages calls
	// carrying the same (base, length) pair into one bit-clear-and-
	// fire pass. Real guest write-watch delivery can burst many
	// identical notifications for the same page range from different
	// CPU-emulation goroutines in a tight write loop; only the first
	// caller need do the work, and the rest simply observe its result.
	invalidateFlight singleflight.Group

	pool *uploadPool
}

type watchEntry struct {
	base, length uint32
	fn           WatchFunc
}

// New creates the mirror. When tiledSharedMemory is false the buffer
// is committed up front (spec §6 "tiled_shared_memory: if false, SMM
// uses a committed buffer instead of sparse; raises memory use").
func New(gpu hga.GPU, host Host, tiledSharedMemory bool) (*Mirror, error) {
	m := &Mirror{gpu: gpu, host: host, tiled: tiledSharedMemory}
	// Pages start invalid (unset); Grow's freshly appended words are
	// already zero, matching that initial state.
	m.valid.Grow(pageCount / 64)

	var err error
	if tiledSharedMemory && gpu.Limits().TiledResourcesTier > 0 {
		m.buf, err = gpu.NewReservedBuffer(Size, hga.UShaderRead|hga.UShaderWrite|hga.UCopyDst|hga.UCopySrc)
	} else {
		m.tiled = false
		m.buf, err = gpu.NewCommittedBuffer(Size, false, hga.UShaderRead|hga.UShaderWrite|hga.UCopyDst|hga.UCopySrc)
	}
	if err != nil {
		return nil, fmt.Errorf("smm: create backing buffer: %w", err)
	}
	m.blocks.Grow(blockCount / 64)
	m.pool = newUploadPool(gpu)
	return m, nil
}

// Buffer returns the backing host buffer, for descriptor writes.
func (m *Mirror) Buffer() hga.Buffer { return m.buf }

// MakeTilesResident maps the sparse blocks covering [base, base+length)
// to physical memory. A no-op when the mirror is not tiled. The
// mapping update is queued on the GPU's queue, not a command list;
// the mirror then reports it through the host's
// NotifyTileMappingQueued.
func (m *Mirror) MakeTilesResident(base, length uint32) error {
	if !m.tiled {
		return nil
	}
	startBlock := int(base / BlockSize)
	endBlock := int((base + length + BlockSize - 1) / BlockSize)

	m.mu.Lock()
	var toMap []hga.TileMapping
	for b := startBlock; b < endBlock; b++ {
		if m.blocks.IsSet(b) {
			continue
		}
		m.blocks.Set(b)
		toMap = append(toMap, hga.TileMapping{
			BlockOffset: int64(b) * BlockSize,
			BlockCount:  1,
			Resident:    true,
		})
	}
	m.mu.Unlock()

	if len(toMap) == 0 {
		return nil
	}
	if err := m.gpu.Queue().UpdateTileMappings(m.buf, coalesce(toMap)); err != nil {
		return fmt.Errorf("smm: update tile mappings: %w", err)
	}
	m.host.NotifyTileMappingQueued()
	return nil
}

// coalesce merges adjacent single-block mappings produced by
// MakeTilesResident into contiguous runs, reducing queue call count.
func coalesce(in []hga.TileMapping) []hga.TileMapping {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, t := range in[1:] {
		last := &out[len(out)-1]
		if last.Resident == t.Resident && last.BlockOffset+last.BlockCount*BlockSize == t.BlockOffset {
			last.BlockCount++
			continue
		}
		out = append(out, t)
	}
	return out
}

// RequestRange ensures [base, base+length) is resident and matches
// guest memory as of this call, uploading any invalid pages first.
// guestMem is the full guest physical address space backing this
// mirror (owned by the outer emulator).
func (m *Mirror) RequestRange(base, length uint32, guestMem []byte) error {
	if err := m.MakeTilesResident(base, length); err != nil {
		return err
	}
	return m.upload(base, length, guestMem)
}

// InvalidatePages clears validity for [base, base+length) in response
// to a CPU write, and fires any watches whose range intersects it.
// Safe to call from any goroutine.
func (m *Mirror) InvalidatePages(base, length uint32) {
	key := fmt.Sprintf("%x:%x", base, length)
	m.invalidateFlight.Do(key, func() (any, error) {
		m.invalidatePagesOnce(base, length)
		return nil, nil
	})
}

func (m *Mirror) invalidatePagesOnce(base, length uint32) {
	startPage := int(base / PageSize)
	endPage := int((base + length + PageSize - 1) / PageSize)

	m.mu.Lock()
	for p := startPage; p < endPage && p < pageCount; p++ {
		m.valid.Unset(p)
	}
	var fire []watchEntry
	for _, w := range m.watches {
		if w.base < base+length && base < w.base+w.length {
			fire = append(fire, w)
		}
	}
	m.mu.Unlock()

	for _, w := range fire {
		w.fn(base, length)
	}
}

// Watch registers fn to run whenever a CPU write invalidates any page
// overlapping [base, base+length).
func (m *Mirror) Watch(base, length uint32, fn WatchFunc) {
	m.mu.Lock()
	m.watches = append(m.watches, watchEntry{base, length, fn})
	m.mu.Unlock()
}
