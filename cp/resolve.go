package cp

import (
	"fmt"

	"github.com/xenosgpu/gpucore/edram"
	"github.com/xenosgpu/gpucore/hga"
)

// CopyParams bundles one issue_copy call's inputs: the EDRAM region
// to resolve, its destination in guest memory, and whether a format
// conversion pass is required.
type CopyParams struct {
	DstGuestBase uint32
	Params       edram.ResolveParams
}

// IssueCopy resolves an EDRAM region to guest memory (SMM), via RTC
// and the texture cache's tiler. When Config.ReadbackResolve is set,
// the resolved bytes are also copied back to a CPU-visible buffer for
// debugging (modeled here as an additional scratch-buffer round trip,
// since no outer debug-readback consumer exists inside this module).
func (p *Processor) IssueCopy(cp CopyParams) error {
	if p.state == Closed {
		return fmt.Errorf("cp: issue_copy called with no open submission")
	}
	var err error
	if cp.Params.Convert {
		err = p.rtc.ResolveConvert(&p.rec, p.tc, cp.DstGuestBase, cp.Params)
	} else {
		_, err = p.rtc.ResolveRaw(&p.rec, p.tc, cp.DstGuestBase, cp.Params)
	}
	if err != nil {
		p.logOnce(fmt.Sprintf("cp: resolve failed: %v", err))
		return nil
	}
	if p.cfg.ReadbackResolve {
		if err := p.readbackForDebug(cp); err != nil {
			p.logOnce(fmt.Sprintf("cp: debug readback failed: %v", err))
		}
	}
	return nil
}

func (p *Processor) readbackForDebug(cp CopyParams) error {
	w := cp.Params.Window.X1 - cp.Params.Window.X0
	h := cp.Params.Window.Y1 - cp.Params.Window.Y0
	size := int64(w * h * 4)
	if size <= 0 {
		return nil
	}
	buf, err := p.RequestScratchGPUBuffer(size, hga.StateCopyDst)
	if err != nil {
		return err
	}
	defer p.ReleaseScratchGPUBuffer(buf, hga.StateCopyDst)
	p.rec.CopyBufferRegion(buf, 0, p.mirror.Buffer(), int64(cp.DstGuestBase), size)
	return nil
}

// SwapParams bundles one issue_swap call's inputs.
type SwapParams struct {
	FrontbufferGuestPtr uint32
	Width, Height       int
	Gamma               bool
}

// IssueSwap finalizes a frame by closing out the frame submission. It
// records no gamma-ramp or other post-process pass and does not read
// sp's fields. The presenter that
// consumes the resolved frontbuffer texture lives outside this
// module.
func (p *Processor) IssueSwap(sp SwapParams) error {
	if p.state != OpenFrame {
		return fmt.Errorf("cp: issue_swap called outside an open frame submission")
	}
	return p.EndSubmission(true)
}
