package cp

import (
	"fmt"

	"github.com/xenosgpu/gpucore/dcl"
	"github.com/xenosgpu/gpucore/edram"
	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/primitive"
)

// BeginSubmission ensures a host submission is open, promoting an
// already-open maintenance (non-frame) submission to a frame
// submission when isGuestFrame is true. It returns false once the
// sticky device-removed flag has been raised, in which case the
// caller should drain the guest command stream harmlessly.
func (p *Processor) BeginSubmission(isGuestFrame bool) bool {
	if p.deviceRemoved {
		return false
	}
	switch p.state {
	case Closed:
		if err := p.cl.Reset(); err != nil {
			p.raiseDeviceRemoved(err)
			return false
		}
		if err := p.cl.Begin(); err != nil {
			p.raiseDeviceRemoved(err)
			return false
		}
		p.curSubmission++
		if isGuestFrame {
			p.state = OpenFrame
			p.pp.BeginFrame(p.frameIndex)
		} else {
			p.state = OpenNonFrame
		}
	case OpenNonFrame:
		if isGuestFrame {
			p.state = OpenFrame
			p.pp.BeginFrame(p.frameIndex)
		}
	case OpenFrame:
		// already open at or above the requested level
	}
	p.pp.BeginSubmission(&p.rec, p.curSubmission)
	return true
}

// EndSubmission closes the currently open submission: it replays the
// deferred command list onto the real command list, submits it, and
// signals the submission fence. isSwap marks this as the frame-ending
// submission.
func (p *Processor) EndSubmission(isSwap bool) error {
	if p.state == Closed {
		return fmt.Errorf("cp: end_submission called with no open submission")
	}
	p.PushUAVBarrier(nil) // full UAV barrier on every submission boundary
	p.SubmitBarriers()

	if err := dcl.Replay(&p.rec, p.cl); err != nil {
		p.raiseDeviceRemoved(err)
		return err
	}
	if err := p.cl.Close(); err != nil {
		p.raiseDeviceRemoved(err)
		return err
	}
	if err := p.gpu.Queue().ExecuteCommandLists([]hga.CmdList{p.cl}); err != nil {
		p.raiseDeviceRemoved(err)
		return err
	}
	fence, err := p.gpu.Queue().Signal(p.curSubmission)
	if err != nil {
		p.raiseDeviceRemoved(err)
		return err
	}
	p.fence = fence
	p.rec.Reset()

	wasFrame := p.state == OpenFrame
	p.state = Closed
	if isSwap {
		p.pp.EndFrame()
		p.frameIndex++
	}
	_ = wasFrame
	return nil
}

// CheckSubmissionFence polls (or, if awaitSubmission is true, blocks
// until) the submission fence reaches curSubmission, reclaiming
// per-submission resources that are now safe to touch again.
func (p *Processor) CheckSubmissionFence(awaitSubmission bool) error {
	if p.fence == nil {
		return nil
	}
	if awaitSubmission {
		if err := p.fence.Wait(p.curSubmission); err != nil {
			return fmt.Errorf("cp: wait submission fence: %w", err)
		}
	}
	completed := p.fence.CompletedValue()
	if completed <= p.completedSub {
		return nil
	}
	p.completedSub = completed
	p.pp.CompletedSubmissionUpdated(completed)
	p.tc.NotifySubmissionCompleted(completed)
	return nil
}

func (p *Processor) raiseDeviceRemoved(err error) {
	p.deviceRemoved = true
	p.logOnce(fmt.Sprintf("cp: device removed: %v", err))
}

// DrawParams bundles one issue_draw call's inputs.
type DrawParams struct {
	Topology primitive.GuestTopology

	// GuestIndices is the decoded guest index list, required only
	// when Topology needs fan/loop-to-list conversion.
	GuestIndices []uint32

	Index *IndexInfo // nil selects a non-indexed draw

	VertCount     int
	InstanceCount int

	RenderTargets []edram.BindRequest
	Viewport      edram.Rect
	FrameStart    bool

	Pipeline hga.PipelineHandle
	RootSig  hga.RootSignature

	VertexBuffers []hga.Buffer
	VertexOffsets []int64

	// Textures, when non-empty, are written into TextureHeap at copy
	// index TextureHeapCpy before the draw call.
	Textures       []TextureBinding
	TextureHeap    hga.DescHeap
	TextureHeapCpy int
}

// IndexInfo describes a guest-memory-resident index buffer.
type IndexInfo struct {
	Format    hga.IndexFmt
	GuestBase uint32
	Count     int
}

// IssueDraw executes one host draw, per the seven-step sequence:
// primitive conversion, shared-memory upload, render-target-cache
// update, pipeline/root-signature/viewport state, and the recorded
// draw call itself. It returns an error only for conditions that
// should abort the whole submission; unsupported formats and similar
// per-draw problems are logged once and the draw is skipped (nil
// returned).
func (p *Processor) IssueDraw(dp DrawParams) error {
	if p.state == Closed {
		return fmt.Errorf("cp: issue_draw called with no open submission")
	}

	host := hga.TTriangleList
	if primitive.NeedsConversion(dp.Topology) {
		host = primitive.HostTopology(dp.Topology)
	}
	p.rec.SetPrimitiveTopology(host)

	drawIndexCount, indexed, err := p.setupIndexBuffer(dp)
	if err != nil {
		p.logOnce(fmt.Sprintf("cp: draw skipped: %v", err))
		return nil
	}

	bindings, err := p.rtc.UpdateRenderTargets(&p.rec, dp.RenderTargets, dp.Viewport, dp.FrameStart)
	if err != nil {
		p.logOnce(fmt.Sprintf("cp: render target update failed: %v", err))
		return nil
	}
	var colorViews []hga.ImageView
	var depthView hga.ImageView
	for _, b := range bindings {
		v := b.Resource.View()
		if b.IsDepth {
			depthView = v
		} else {
			colorViews = append(colorViews, v)
		}
	}
	p.rec.SetRenderTargets(colorViews, depthView)

	p.mirror.UseForReading(p)
	p.SubmitBarriers()

	p.rec.SetViewports([]hga.Viewport{{
		X: float32(dp.Viewport.X0), Y: float32(dp.Viewport.Y0),
		Width: float32(dp.Viewport.X1 - dp.Viewport.X0), Height: float32(dp.Viewport.Y1 - dp.Viewport.Y0),
		MinDepth: 0, MaxDepth: 1,
	}})
	p.rec.SetScissorRects([]hga.Scissor{{
		X: dp.Viewport.X0, Y: dp.Viewport.Y0,
		Width: dp.Viewport.X1 - dp.Viewport.X0, Height: dp.Viewport.Y1 - dp.Viewport.Y0,
	}})

	if dp.RootSig != nil {
		p.rec.SetRootSignatureGraphics(dp.RootSig)
	}
	if dp.Pipeline != nil {
		p.rec.SetPipelineHandle(dp.Pipeline)
	}

	if len(dp.VertexBuffers) > 0 {
		p.rec.SetVertexBuffers(0, dp.VertexBuffers, dp.VertexOffsets)
	}

	if len(dp.Textures) > 0 && dp.TextureHeap != nil {
		p.bindTextures(dp.TextureHeap, dp.TextureHeapCpy, dp.Textures)
	}

	dirtyRows := (dp.Viewport.Y1 - dp.Viewport.Y0 + edram.TileRowHeight - 1) / edram.TileRowHeight
	p.rtc.MarkDirty(dirtyRows)

	if indexed {
		p.rec.DrawIndexedInstanced(drawIndexCount, max(1, dp.InstanceCount), 0, 0, 0)
	} else {
		p.rec.DrawInstanced(dp.VertCount, max(1, dp.InstanceCount), 0, 0)
	}
	return nil
}

// setupIndexBuffer binds whatever index buffer (if any) dp's draw
// needs and returns the index count the subsequent DrawIndexedInstanced
// call must use, which is not always dp.Index.Count: a fan/loop
// conversion expands the guest index count into a larger host triangle-
// or line-list count, and that expanded count, not the caller-supplied
// one, is what must be drawn (spec §8 end-to-end scenario 2).
func (p *Processor) setupIndexBuffer(dp DrawParams) (count int, indexed bool, err error) {
	if primitive.NeedsConversion(dp.Topology) {
		indices := dp.GuestIndices
		if indices == nil {
			// Non-indexed fan/loop: the guest vertex stream is implicitly
			// 0..VertCount-1. A triangle fan of this form is exactly what
			// the precomputed builtin index buffer serves (spec §4.4);
			// anything else falls back to runtime conversion of the
			// equivalent identity sequence.
			if dp.Topology == primitive.GTriangleFan {
				if n, ok := p.pp.TriangleFanIndexCount(dp.VertCount); ok {
					buf, _ := p.pp.BuiltinIndexBuffer()
					p.rec.SetIndexBuffer(buf, 0, hga.Index32)
					return n, true, nil
				}
			}
			indices = identitySequence(dp.VertCount)
		}
		return p.convertAndBindIndices(dp.Topology, indices)
	}
	if dp.Index == nil {
		return dp.VertCount, false, nil
	}
	length := uint32(dp.Index.Count) * uint32(dp.Index.Format)
	if err := p.mirror.RequestRange(dp.Index.GuestBase, length, p.guestMem); err != nil {
		return 0, false, fmt.Errorf("upload index range: %w", err)
	}
	p.rec.SetIndexBuffer(p.mirror.Buffer(), int64(dp.Index.GuestBase), dp.Index.Format)
	return dp.Index.Count, true, nil
}

// convertAndBindIndices expands indices through the fan/loop-to-list
// conversion for topology, writes the result into the per-frame
// conversion arena, and binds it as the draw's index buffer.
func (p *Processor) convertAndBindIndices(topology primitive.GuestTopology, indices []uint32) (count int, indexed bool, err error) {
	var converted []uint32
	switch topology {
	case primitive.GTriangleFan:
		converted = primitive.FanToList(indices)
	case primitive.GLineLoop:
		converted = primitive.LoopToList(indices)
	}
	if len(converted) == 0 {
		return 0, false, fmt.Errorf("too few indices to convert topology %v", topology)
	}
	dst, h, err := p.pp.RequestHostConvertedIndexBuffer(hga.Index32, len(converted), false)
	if err != nil {
		return 0, false, err
	}
	for i, v := range converted {
		dst[i*4+0] = byte(v)
		dst[i*4+1] = byte(v >> 8)
		dst[i*4+2] = byte(v >> 16)
		dst[i*4+3] = byte(v >> 24)
	}
	buf, off, _ := p.pp.Resolve(h)
	p.rec.SetIndexBuffer(buf, off, hga.Index32)
	return len(converted), true, nil
}

// identitySequence returns the ascending 0..n-1 index sequence a
// non-indexed draw's implicit vertex stream represents, for topologies
// that need fan/loop conversion but have no explicit guest index list.
func identitySequence(n int) []uint32 {
	if n <= 0 {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}
