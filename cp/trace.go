package cp

import (
	"fmt"

	"github.com/xenosgpu/gpucore/edram"
)

// InitializeTrace resets the processor to a clean state for trace
// playback: the outer trace tool's entry point for starting a replay
// cold, with no submission, pipeline, or resource state carried over
// from whatever the process did before attaching.
func (p *Processor) InitializeTrace() error {
	if p.state != Closed {
		return fmt.Errorf("cp: initialize_trace called with a submission still open")
	}
	p.curSubmission = 0
	p.completedSub = 0
	p.frameIndex = 0
	p.deviceRemoved = false
	p.logged = make(map[string]bool)
	return nil
}

// TracePlaybackWroteMemory notifies the processor that the trace
// player just wrote guest memory out of band, outside any guest
// register write the command stream itself recorded, invalidating any
// cached copy the shared memory mirror or texture cache holds over the
// affected range.
func (p *Processor) TracePlaybackWroteMemory(base, length uint32) {
	p.mirror.InvalidatePages(base, length)
	p.tc.Invalidate(base, length)
}

// EDRAMSnapshot is the restorable render-target-cache state a trace
// capture stores at a submission boundary: the bound set as of that
// point.
type EDRAMSnapshot struct {
	Bindings []edram.Binding
}

// RestoreEDRAMSnapshot replaces the render target cache's live binding
// set with one recorded by a trace capture, for the trace viewer's
// seek-to-submission feature.
func (p *Processor) RestoreEDRAMSnapshot(snap EDRAMSnapshot) {
	p.rtc.Restore(snap.Bindings)
}
