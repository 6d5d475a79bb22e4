// Package cp implements the command processor: the orchestrator that
// consumes PM4 packets and register writes, drives the shared memory
// mirror, primitive processor, render target cache and texture cache
// through one guest draw, and owns the deferred command list and
// submission fence lifecycle tying them all to the host GPU.
package cp

import (
	"fmt"
	"log"

	"github.com/xenosgpu/gpucore/dcl"
	"github.com/xenosgpu/gpucore/edram"
	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/pm4"
	"github.com/xenosgpu/gpucore/primitive"
	"github.com/xenosgpu/gpucore/smm"
	"github.com/xenosgpu/gpucore/texcache"
)

// State is the submission/frame lifecycle state.
type State int

const (
	Closed State = iota
	OpenNonFrame
	OpenFrame
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case OpenNonFrame:
		return "open-non-frame"
	case OpenFrame:
		return "open-frame"
	default:
		return "unknown"
	}
}

// Processor is the command processor. It is not safe for concurrent
// use; the guest command stream is consumed by a single goroutine.
type Processor struct {
	gpu hga.GPU
	cfg Config

	mirror *smm.Mirror
	pp     *primitive.Processor
	rtc    *edram.Manager
	tc     *texcache.Cache

	rec dcl.Record
	cl  hga.CmdList

	pipelines *PipelineCache

	fence hga.Fence

	state         State
	curSubmission uint64
	completedSub  uint64
	frameIndex    uint64
	deviceRemoved bool

	pendingBarriers []hga.Barrier

	scratch       hga.Buffer
	scratchInUse  bool
	scratchState  hga.ResourceState

	regs       map[int]uint32
	aluConst   []float32
	boolConst  []uint32
	loopConst  []uint32
	fetchConst [][6]uint32

	guestMem []byte // full guest physical address space; set by New

	logged map[string]bool // one-time log dedup keyed by message
}

// New creates the command processor and its four owned components.
// guestMem is the full guest physical address space the outer
// emulator maintains; the processor never allocates or frees it.
func New(gpu hga.GPU, cfg Config, guestMem []byte) (*Processor, error) {
	p := &Processor{
		gpu:        gpu,
		cfg:        cfg,
		guestMem:   guestMem,
		regs:       make(map[int]uint32),
		aluConst:   make([]float32, 512*4),
		boolConst:  make([]uint32, 8),
		loopConst:  make([]uint32, 32),
		fetchConst: make([][6]uint32, 32),
		logged:     make(map[string]bool),
	}

	var err error
	p.mirror, err = smm.New(gpu, p, cfg.TiledSharedMemory)
	if err != nil {
		return nil, fmt.Errorf("cp: create shared memory mirror: %w", err)
	}
	p.pp, err = primitive.New(gpu, cfg.BuiltinIndexCount, cfg.ArenaBytes)
	if err != nil {
		return nil, fmt.Errorf("cp: create primitive processor: %w", err)
	}
	p.rtc, err = edram.NewManager(gpu, cfg.ResolutionScale, false)
	if err != nil {
		return nil, fmt.Errorf("cp: create render target cache: %w", err)
	}
	p.tc, err = texcache.New(gpu, p.mirror)
	if err != nil {
		return nil, fmt.Errorf("cp: create texture cache: %w", err)
	}

	p.cl, err = gpu.NewCmdList()
	if err != nil {
		return nil, fmt.Errorf("cp: create command list: %w", err)
	}
	p.pipelines = NewPipelineCache(gpu, cfg.PipelineCacheDir)
	return p, nil
}

// RenderTargetBindings returns the render target cache's currently
// bound set, for trace tooling and diagnostics.
func (p *Processor) RenderTargetBindings() []edram.Binding { return p.rtc.Bindings() }

// Pipelines returns the pipeline/root-signature cache so callers
// building DrawParams can resolve a PipelineKey to a handle before
// issuing a draw, and so the outer emulator can pre-warm it at
// startup via its WarmCache method.
func (p *Processor) Pipelines() *PipelineCache { return p.pipelines }

// State returns the current submission/frame lifecycle state.
func (p *Processor) State() State { return p.state }

// DeviceRemoved reports whether the sticky device-removed failure flag
// has been raised.
func (p *Processor) DeviceRemoved() bool { return p.deviceRemoved }

// ---- smm.Host ----

func (p *Processor) Record() *dcl.Record            { return &p.rec }
func (p *Processor) CurrentSubmission() uint64       { return p.curSubmission }
func (p *Processor) CompletedSubmission() uint64     { return p.completedSub }
func (p *Processor) NotifyTileMappingQueued()        {}

// ---- smm.BarrierPusher / barrier batching ----

// PushTransitionBarrier appends a resource-state transition to the
// pending batch, collapsing it into an existing entry for the same
// resource/subresource instead of appending a redundant one.
func (p *Processor) PushTransitionBarrier(buf hga.Buffer, img hga.Image, subresource int, before, after hga.ResourceState) {
	for i := range p.pendingBarriers {
		b := &p.pendingBarriers[i]
		if b.Kind != hga.BarrierTransition || b.Subresource != subresource {
			continue
		}
		if (buf != nil && b.Buffer == buf) || (img != nil && b.Image == img) {
			b.After = after
			return
		}
	}
	p.pendingBarriers = append(p.pendingBarriers, hga.Barrier{
		Kind: hga.BarrierTransition, Buffer: buf, Image: img,
		Subresource: subresource, Before: before, After: after,
	})
}

// PushUAVBarrier appends a UAV barrier for img (or the whole device if
// img is nil) to the pending batch.
func (p *Processor) PushUAVBarrier(img hga.Image) {
	p.pendingBarriers = append(p.pendingBarriers, hga.Barrier{Kind: hga.BarrierUAV, Image: img})
}

// PushAliasingBarrier appends an aliasing barrier between two images
// sharing the same backing memory.
func (p *Processor) PushAliasingBarrier(before, after hga.Image) {
	p.pendingBarriers = append(p.pendingBarriers, hga.Barrier{Kind: hga.BarrierAliasing, AliasBefore: before, AliasAfter: after})
}

// SubmitBarriers flushes the pending batch into the deferred command
// list as a single ResourceBarrier record.
func (p *Processor) SubmitBarriers() {
	if len(p.pendingBarriers) == 0 {
		return
	}
	p.rec.ResourceBarrier(p.pendingBarriers)
	p.pendingBarriers = p.pendingBarriers[:0]
}

// ---- scratch buffer ----

// RequestScratchGPUBuffer returns a per-submission scratch buffer of
// at least size bytes in the given initial state, growing the backing
// allocation if necessary. Only one caller may hold the scratch buffer
// at a time.
func (p *Processor) RequestScratchGPUBuffer(size int64, state hga.ResourceState) (hga.Buffer, error) {
	if p.scratchInUse {
		return nil, fmt.Errorf("cp: scratch buffer already checked out")
	}
	if p.scratch == nil || p.scratch.Cap() < size {
		if p.scratch != nil {
			p.scratch.Destroy()
		}
		buf, err := p.gpu.NewCommittedBuffer(size, false, hga.UShaderRead|hga.UShaderWrite|hga.UCopySrc|hga.UCopyDst)
		if err != nil {
			return nil, fmt.Errorf("cp: grow scratch buffer: %w", err)
		}
		p.scratch = buf
	}
	p.scratchInUse = true
	p.scratchState = state
	return p.scratch, nil
}

// ReleaseScratchGPUBuffer returns the scratch buffer checked out by
// RequestScratchGPUBuffer, recording the state it was left in.
func (p *Processor) ReleaseScratchGPUBuffer(buf hga.Buffer, newState hga.ResourceState) {
	if buf != p.scratch {
		return
	}
	p.scratchInUse = false
	p.scratchState = newState
}

// logOnce logs msg the first time it is seen for this processor's
// lifetime, and silently drops repeats.
func (p *Processor) logOnce(msg string) {
	if p.logged[msg] {
		return
	}
	p.logged[msg] = true
	log.Print(msg)
}

// classify wraps pm4.ClassifyRegister for this package's
// register-write routines, which use it to pick the bulk-write fast
// path.
func classify(index int) pm4.RegisterClass { return pm4.ClassifyRegister(index) }
