package cp

import (
	"fmt"

	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/texcache"
)

// TextureBinding pairs one decoded guest fetch constant with the
// descriptor heap slot its shader stage expects to find the texture
// and sampler pair in.
type TextureBinding struct {
	Slot     int
	Key      texcache.Key
	Sampling hga.Sampling
}

// bindTextures resolves each binding to a resident host texture and
// sampler, writing both into heap at copy index cpy. A texture that
// fails to resolve (unknown format, bad fetch constant) falls back to
// the cache's null placeholder view rather than aborting the draw,
// matching IssueDraw's per-binding failure policy.
func (p *Processor) bindTextures(heap hga.DescHeap, cpy int, bindings []TextureBinding) {
	for _, b := range bindings {
		view, err := p.tc.Acquire(&p.rec, b.Key, p.guestMem)
		if err != nil {
			p.logOnce(fmt.Sprintf("cp: texture acquire failed for slot %d: %v", b.Slot, err))
			view = p.tc.NullView(b.Key.Dimension)
		}
		heap.SetImage(cpy, b.Slot, 0, []hga.ImageView{view})

		sampling := texcache.ClampLOD(b.Sampling, b.Key.Levels)
		sampler := p.acquireSampler(sampling)
		if sampler != nil {
			heap.SetSampler(cpy, b.Slot, 0, []hga.Sampler{sampler})
		}
	}
}

// acquireSampler resolves s through the texture cache's sampler cache,
// stamping it with the currently open submission. When the cache is
// full and every live sampler might still be referenced by a draw the
// GPU has not finished, it waits for the oldest of those submissions
// to retire (only ever a prior submission; curSubmission is never
// awaited here, which would deadlock) and retries once.
func (p *Processor) acquireSampler(s hga.Sampling) hga.Sampler {
	sampler, await, err := p.tc.AcquireSampler(s, p.curSubmission)
	if err != nil {
		p.logOnce(fmt.Sprintf("cp: sampler create failed: %v", err))
		return nil
	}
	if sampler != nil {
		return sampler
	}
	if await >= p.curSubmission || p.fence == nil {
		p.logOnce("cp: sampler cache exhausted by submissions still in flight")
		return nil
	}
	if err := p.fence.Wait(await); err != nil {
		p.logOnce(fmt.Sprintf("cp: wait for sampler eviction: %v", err))
		return nil
	}
	p.tc.NotifySubmissionCompleted(p.fence.CompletedValue())
	sampler, _, err = p.tc.AcquireSampler(s, p.curSubmission)
	if err != nil {
		p.logOnce(fmt.Sprintf("cp: sampler create failed: %v", err))
		return nil
	}
	return sampler
}
