package primitive

import (
	"fmt"

	"github.com/xenosgpu/gpucore/hga"
)

// ringSize mirrors the command processor's bound on in-flight guest
// frames (three); by the time a frame slot is reused its prior
// occupant is guaranteed retired, so the arena for that slot can be
// reset with a plain bump rather than tracked per allocation.
const ringSize = 3

// Recorder is the subset of *dcl.Record needed to stage the builtin
// index buffer's first upload.
type Recorder interface {
	CopyBufferRegion(dst hga.Buffer, dstOff int64, src hga.Buffer, srcOff int64, size int64)
}

// Handle identifies a region of a per-frame arena allocated by
// RequestHostConvertedIndexBuffer. It is valid only for the frame
// slot it was issued against.
type Handle struct {
	slot   int
	offset int64
	size   int64
}

// Processor is the primitive processor: builtin index buffer plus
// per-frame conversion arena.
type Processor struct {
	gpu hga.GPU

	builtin        hga.Buffer
	builtinStaging hga.Buffer
	builtinCount   int
	builtinUploaded bool
	builtinPendingSubmission uint64

	arenaCap int64
	arenas   [ringSize]*arena
	curSlot  int
}

type arena struct {
	buf    hga.Buffer
	cursor int64
}

// New builds (but does not yet upload) a builtin index buffer large
// enough for builtinIndexCount host-format (32-bit) indices, and
// allocates per-frame arenas of arenaBytes each.
func New(gpu hga.GPU, builtinIndexCount int, arenaBytes int64) (*Processor, error) {
	if builtinIndexCount <= 0 {
		return nil, fmt.Errorf("primitive: builtinIndexCount must be positive")
	}
	staging, err := gpu.NewCommittedBuffer(int64(builtinIndexCount)*4, true, hga.UCopySrc)
	if err != nil {
		return nil, fmt.Errorf("primitive: create builtin staging buffer: %w", err)
	}
	fillBuiltinFanPattern(staging.Bytes())

	builtin, err := gpu.NewCommittedBuffer(int64(builtinIndexCount)*4, false, hga.UIndexData|hga.UCopyDst)
	if err != nil {
		return nil, fmt.Errorf("primitive: create builtin index buffer: %w", err)
	}

	p := &Processor{
		gpu:            gpu,
		builtin:        builtin,
		builtinStaging: staging,
		builtinCount:   builtinIndexCount,
		arenaCap:       arenaBytes,
	}
	for i := range p.arenas {
		buf, err := gpu.NewCommittedBuffer(arenaBytes, true, hga.UIndexData)
		if err != nil {
			return nil, fmt.Errorf("primitive: create frame arena %d: %w", i, err)
		}
		p.arenas[i] = &arena{buf: buf}
	}
	return p, nil
}

// fillBuiltinFanPattern populates the builtin index buffer with the
// triangle-fan-to-list conversion pattern for an implicit ascending
// 0..n-1 non-indexed vertex stream: triangles (i-1, i, 0) for
// i = 2..n-1, the same (vN-1, vN, v0) winding FanToList produces for
// an indexed fan. The pivot vertex (0) and the very first edge
// vertex never change as i grows, so the pattern for a shorter vertex
// count is always a byte-for-byte prefix of the pattern for a longer
// one: a non-indexed fan draw of any covered vertex count can bind
// this buffer at offset 0 and vary only the index count it draws.
func fillBuiltinFanPattern(dst []byte) {
	put := func(off int, v uint32) {
		dst[off+0] = byte(v)
		dst[off+1] = byte(v >> 8)
		dst[off+2] = byte(v >> 16)
		dst[off+3] = byte(v >> 24)
	}
	triangles := len(dst) / 4 / 3
	vi := uint32(2)
	for t := 0; t < triangles; t++ {
		put(t*12+0, vi-1)
		put(t*12+4, vi)
		put(t*12+8, 0)
		vi++
	}
}

// BuiltinIndexBuffer returns the builtin buffer and its index count.
// It is never modified for the processor's lifetime once uploaded.
func (p *Processor) BuiltinIndexBuffer() (hga.Buffer, int) { return p.builtin, p.builtinCount }

// TriangleFanIndexCount returns the index count to draw a non-indexed
// triangle fan of vertCount implicit vertices from the builtin index
// buffer at offset 0, and whether vertCount's pattern fits within the
// buffer's precomputed capacity (ok is false for too few or too many
// vertices; the caller falls back to runtime conversion in the latter
// case). Per spec §8, fewer than 3 vertices never produce a draw.
func (p *Processor) TriangleFanIndexCount(vertCount int) (count int, ok bool) {
	if vertCount < 3 {
		return 0, false
	}
	count = (vertCount - 2) * 3
	return count, count <= p.builtinCount
}

// BeginSubmission uploads the builtin index buffer the first time it
// is called, per the "uploads it in the first submission" contract.
func (p *Processor) BeginSubmission(rec Recorder, submission uint64) {
	if p.builtinUploaded {
		return
	}
	rec.CopyBufferRegion(p.builtin, 0, p.builtinStaging, 0, int64(p.builtinCount)*4)
	p.builtinUploaded = true
	p.builtinPendingSubmission = submission
}

// CompletedSubmissionUpdated releases the builtin staging buffer once
// the submission that copied it out of is known complete.
func (p *Processor) CompletedSubmissionUpdated(completed uint64) {
	if p.builtinStaging == nil {
		return
	}
	if p.builtinUploaded && completed >= p.builtinPendingSubmission {
		p.builtinStaging.Destroy()
		p.builtinStaging = nil
	}
}

// BeginFrame resets the arena for the newly started frame slot.
func (p *Processor) BeginFrame(frameIndex uint64) {
	p.curSlot = int(frameIndex % ringSize)
	p.arenas[p.curSlot].cursor = 0
}

// EndFrame is a no-op placeholder for symmetry with BeginFrame; the
// arena is reclaimed lazily, on the next BeginFrame for this slot.
func (p *Processor) EndFrame() {}

// RequestHostConvertedIndexBuffer reserves count*size(format) bytes in
// the current frame's arena (optionally rounding the starting offset
// up for SIMD-friendly alignment) and returns a writable mapping and
// an opaque Handle resolving to its eventual GPU location.
func (p *Processor) RequestHostConvertedIndexBuffer(format hga.IndexFmt, count int, coalignForSIMD bool) ([]byte, Handle, error) {
	size := int64(count) * int64(format)
	a := p.arenas[p.curSlot]
	off := a.cursor
	if coalignForSIMD {
		const simdAlign = 16
		if rem := off % simdAlign; rem != 0 {
			off += simdAlign - rem
		}
	}
	if off+size > p.arenaCap {
		return nil, Handle{}, fmt.Errorf("primitive: frame arena exhausted (need %d, have %d)", off+size, p.arenaCap)
	}
	a.cursor = off + size
	return a.buf.Bytes()[off : off+size], Handle{slot: p.curSlot, offset: off, size: size}, nil
}

// Resolve returns the buffer and byte offset a Handle refers to. ok is
// false only for a Handle whose slot lies outside the arena ring; a
// Handle from an earlier frame whose slot has since been reused still
// resolves, to that slot's current arena buffer.
func (p *Processor) Resolve(h Handle) (buf hga.Buffer, offset int64, ok bool) {
	if h.slot < 0 || h.slot >= ringSize {
		return nil, 0, false
	}
	return p.arenas[h.slot].buf, h.offset, true
}
