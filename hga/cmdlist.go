package hga

// CmdList is a single host command list. Its method set is exactly
// the set of opcodes the command-processor core ever needs to
// record, mirrored one-for-one by dcl.Record's replay switch: copy
// operations, one compute dispatch, indexed/non-indexed draws,
// fixed-function state setters, root-signature/descriptor binds, and
// barrier batches.
//
// Usage: Reset, then Begin, then any sequence of the methods below,
// then Close. A closed CmdList is submitted through Queue.ExecuteCommandLists and
// must not be touched again until the queue signals its completion.
type CmdList interface {
	Destroyer

	Reset() error
	Begin() error
	Close() error
	IsRecording() bool

	CopyBufferRegion(dst Buffer, dstOff int64, src Buffer, srcOff int64, size int64)
	CopyResource(dst, src Image)
	CopyTextureRegion(dst ImageView, dstOff Off3D, src ImageView, srcOff Off3D, size Dim3D)
	CopyBufferToImage(dst ImageView, layer int, dstOff Off3D, size Dim3D, src Buffer, srcOff int64, rowPitch, slicePitch int64)

	Dispatch(groupX, groupY, groupZ int)

	DrawIndexedInstanced(indexCount, instCount, startIndex, baseVertex, startInst int)
	DrawInstanced(vertCount, instCount, startVertex, startInst int)

	SetIndexBuffer(buf Buffer, off int64, format IndexFmt)
	SetVertexBuffers(start int, buf []Buffer, off []int64)
	SetPrimitiveTopology(t Topology)
	SetBlendFactor(r, g, b, a float32)
	SetStencilRef(ref uint32)
	SetRenderTargets(color []ImageView, depth ImageView)
	SetViewports(vp []Viewport)
	SetScissorRects(s []Scissor)
	SetSamplePositions(pos []SamplePos)

	SetRootSignatureGraphics(rs RootSignature)
	SetRootSignatureCompute(rs RootSignature)
	SetRootConstantsGraphics(nr int, data []uint32, destOff int)
	SetRootConstantsCompute(nr int, data []uint32, destOff int)
	SetRootCBV(nr int, buf Buffer, off int64)
	SetRootDescriptorTable(nr int, heap DescHeap, heapCopy int)
	SetDescriptorHeaps(heaps []DescHeap)

	SetPipeline(p Pipeline)
	// SetPipelineHandle binds a possibly-unresolved pipeline. If it
	// does not resolve by replay time, no bind is emitted and
	// subsequent draws/dispatches are skipped until the next
	// SetPipeline/SetPipelineHandle call.
	SetPipelineHandle(h PipelineHandle)

	ResourceBarrier(b []Barrier)
}

// Viewport is one viewport rectangle and depth range.
type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Scissor is one scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// SamplePos is one custom MSAA sample position, in 16ths of a pixel.
type SamplePos struct{ X, Y int8 }

// ResourceState is a synchronization/layout state a resource may be
// transitioned between.
type ResourceState int

const (
	StateCommon ResourceState = iota
	StateCopySrc
	StateCopyDst
	StateVertexBuf
	StateIndexBuf
	StateConstantBuf
	StateShaderResource
	StateUnorderedAccess
	StateRenderTarget
	StateDepthWrite
	StateDepthRead
	StatePresent
)

// Barrier is one transition or UAV/aliasing sync point. Subresource
// is -1 to select the whole resource.
type Barrier struct {
	Kind        BarrierKind
	Buffer      Buffer
	Image       Image
	Subresource int
	Before      ResourceState
	After       ResourceState
	AliasBefore Image
	AliasAfter  Image
}

// BarrierKind selects which fields of Barrier are meaningful.
type BarrierKind int

const (
	BarrierTransition BarrierKind = iota
	BarrierUAV
	BarrierAliasing
)
