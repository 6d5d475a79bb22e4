// Package dcl records host GPU commands issued while a guest
// submission is open into a single tagged byte stream, and replays
// that stream in one pass onto a real hga.CmdList when the submission
// closes. Recording instead of issuing directly lets the command
// processor defer host work until barrier batching and binding
// updates for the whole submission are known, without resorting to
// per-command heterogeneous closures.
package dcl

import (
	"encoding/binary"
	"fmt"

	"github.com/xenosgpu/gpucore/hga"
)

// align is the padding granularity for each record's argument blob:
// max(sizeof(pointer), sizeof(u64)) on every platform this module
// targets.
const align = 8

type opcode uint32

const (
	opCopyBufferRegion opcode = iota
	opCopyResource
	opCopyTextureRegion
	opCopyBufferToImage
	opDispatch
	opDrawIndexedInstanced
	opDrawInstanced
	opSetIndexBuffer
	opSetVertexBuffers
	opSetPrimitiveTopology
	opSetBlendFactor
	opSetStencilRef
	opSetRenderTargets
	opSetViewports
	opSetScissorRects
	opSetSamplePositions
	opSetRootSignatureGraphics
	opSetRootSignatureCompute
	opSetRootConstantsGraphics
	opSetRootConstantsCompute
	opSetRootCBV
	opSetRootDescriptorTable
	opSetDescriptorHeaps
	opSetPipeline
	opSetPipelineHandle
	opResourceBarrier
)

// Record is an append-only deferred command stream for one
// submission. Each entry is a (opcode, argument) pair; the argument
// is stored out-of-line (not packed into a raw byte blob) since Go's
// type system gives replay a safer way to recover argument shape than
// reinterpreting bytes, while the opcode/alignment bookkeeping below
// keeps the same per-record framing the host-GPU command stream
// describes. It is not safe for concurrent use; the command processor
// is single-threaded by design (see cp).
type Record struct {
	ops  []opcode
	refs []any
	size int // bytes a hardware-faithful encoding of this stream would occupy, for diagnostics
}

// Reset discards all recorded commands, retaining the underlying
// storage for reuse across submissions.
func (r *Record) Reset() {
	r.ops = r.ops[:0]
	r.refs = r.refs[:0]
	r.size = 0
}

// Len reports the number of recorded commands.
func (r *Record) Len() int { return len(r.ops) }

func (r *Record) push(op opcode, ref any) {
	r.ops = append(r.ops, op)
	r.refs = append(r.refs, ref)
	argSize := binary.Size(ref)
	if argSize < 0 {
		argSize = 0 // variable-length/slice-bearing args count only the record header
	}
	r.size += align + (argSize+align-1)/align*align
}

type copyBufferRegionArgs struct {
	Dst, Src         hga.Buffer
	DstOff, SrcOff   int64
	Size             int64
}

func (r *Record) CopyBufferRegion(dst hga.Buffer, dstOff int64, src hga.Buffer, srcOff int64, size int64) {
	r.push(opCopyBufferRegion, copyBufferRegionArgs{dst, src, dstOff, srcOff, size})
}

type copyResourceArgs struct{ Dst, Src hga.Image }

func (r *Record) CopyResource(dst, src hga.Image) {
	r.push(opCopyResource, copyResourceArgs{dst, src})
}

type copyTextureRegionArgs struct {
	Dst, Src       hga.ImageView
	DstOff, SrcOff hga.Off3D
	Size           hga.Dim3D
}

func (r *Record) CopyTextureRegion(dst hga.ImageView, dstOff hga.Off3D, src hga.ImageView, srcOff hga.Off3D, size hga.Dim3D) {
	r.push(opCopyTextureRegion, copyTextureRegionArgs{dst, src, dstOff, srcOff, size})
}

type copyBufferToImageArgs struct {
	Dst                  hga.ImageView
	Layer                int
	DstOff               hga.Off3D
	Size                 hga.Dim3D
	Src                  hga.Buffer
	SrcOff               int64
	RowPitch, SlicePitch int64
}

func (r *Record) CopyBufferToImage(dst hga.ImageView, layer int, dstOff hga.Off3D, size hga.Dim3D, src hga.Buffer, srcOff int64, rowPitch, slicePitch int64) {
	r.push(opCopyBufferToImage, copyBufferToImageArgs{dst, layer, dstOff, size, src, srcOff, rowPitch, slicePitch})
}

type dispatchArgs struct{ X, Y, Z int }

func (r *Record) Dispatch(x, y, z int) { r.push(opDispatch, dispatchArgs{x, y, z}) }

type drawIndexedArgs struct{ IndexCount, InstCount, StartIndex, BaseVertex, StartInst int }

func (r *Record) DrawIndexedInstanced(indexCount, instCount, startIndex, baseVertex, startInst int) {
	r.push(opDrawIndexedInstanced, drawIndexedArgs{indexCount, instCount, startIndex, baseVertex, startInst})
}

type drawArgs struct{ VertCount, InstCount, StartVertex, StartInst int }

func (r *Record) DrawInstanced(vertCount, instCount, startVertex, startInst int) {
	r.push(opDrawInstanced, drawArgs{vertCount, instCount, startVertex, startInst})
}

type setIndexBufferArgs struct {
	Buf    hga.Buffer
	Off    int64
	Format hga.IndexFmt
}

func (r *Record) SetIndexBuffer(buf hga.Buffer, off int64, format hga.IndexFmt) {
	r.push(opSetIndexBuffer, setIndexBufferArgs{buf, off, format})
}

type setVertexBuffersArgs struct {
	Start int
	Buf   []hga.Buffer
	Off   []int64
}

func (r *Record) SetVertexBuffers(start int, buf []hga.Buffer, off []int64) {
	r.push(opSetVertexBuffers, setVertexBuffersArgs{start, append([]hga.Buffer(nil), buf...), append([]int64(nil), off...)})
}

func (r *Record) SetPrimitiveTopology(t hga.Topology) { r.push(opSetPrimitiveTopology, t) }

type blendFactorArgs struct{ R, G, B, A float32 }

func (r *Record) SetBlendFactor(rr, g, b, a float32) { r.push(opSetBlendFactor, blendFactorArgs{rr, g, b, a}) }

func (r *Record) SetStencilRef(ref uint32) { r.push(opSetStencilRef, ref) }

type setRenderTargetsArgs struct {
	Color []hga.ImageView
	Depth hga.ImageView
}

func (r *Record) SetRenderTargets(color []hga.ImageView, depth hga.ImageView) {
	r.push(opSetRenderTargets, setRenderTargetsArgs{append([]hga.ImageView(nil), color...), depth})
}

func (r *Record) SetViewports(vp []hga.Viewport) {
	r.push(opSetViewports, append([]hga.Viewport(nil), vp...))
}

func (r *Record) SetScissorRects(s []hga.Scissor) {
	r.push(opSetScissorRects, append([]hga.Scissor(nil), s...))
}

func (r *Record) SetSamplePositions(pos []hga.SamplePos) {
	r.push(opSetSamplePositions, append([]hga.SamplePos(nil), pos...))
}

func (r *Record) SetRootSignatureGraphics(rs hga.RootSignature) { r.push(opSetRootSignatureGraphics, rs) }
func (r *Record) SetRootSignatureCompute(rs hga.RootSignature)  { r.push(opSetRootSignatureCompute, rs) }

type rootConstantsArgs struct {
	Nr      int
	Data    []uint32
	DestOff int
}

func (r *Record) SetRootConstantsGraphics(nr int, data []uint32, destOff int) {
	r.push(opSetRootConstantsGraphics, rootConstantsArgs{nr, append([]uint32(nil), data...), destOff})
}

func (r *Record) SetRootConstantsCompute(nr int, data []uint32, destOff int) {
	r.push(opSetRootConstantsCompute, rootConstantsArgs{nr, append([]uint32(nil), data...), destOff})
}

type rootCBVArgs struct {
	Nr  int
	Buf hga.Buffer
	Off int64
}

func (r *Record) SetRootCBV(nr int, buf hga.Buffer, off int64) {
	r.push(opSetRootCBV, rootCBVArgs{nr, buf, off})
}

type rootTableArgs struct {
	Nr       int
	Heap     hga.DescHeap
	HeapCopy int
}

func (r *Record) SetRootDescriptorTable(nr int, heap hga.DescHeap, heapCopy int) {
	r.push(opSetRootDescriptorTable, rootTableArgs{nr, heap, heapCopy})
}

func (r *Record) SetDescriptorHeaps(heaps []hga.DescHeap) {
	r.push(opSetDescriptorHeaps, append([]hga.DescHeap(nil), heaps...))
}

func (r *Record) SetPipeline(p hga.Pipeline) { r.push(opSetPipeline, p) }

func (r *Record) SetPipelineHandle(h hga.PipelineHandle) { r.push(opSetPipelineHandle, h) }

func (r *Record) ResourceBarrier(b []hga.Barrier) {
	r.push(opResourceBarrier, append([]hga.Barrier(nil), b...))
}

// Replay issues every recorded command onto cl, in order. A draw or
// dispatch observed while no pipeline is bound (because the last
// SetPipelineHandle failed to resolve) is skipped, matching the
// deferred command list's pipeline-handle contract.
func Replay(r *Record, cl hga.CmdList) error {
	boundPipeline := false
	for i, ref := range r.refs {
		replayOne(cl, r.ops[i], ref, &boundPipeline)
	}
	return nil
}

func replayOne(cl hga.CmdList, op opcode, ref any, boundPipeline *bool) {
	switch op {
	case opCopyBufferRegion:
		a := ref.(copyBufferRegionArgs)
		cl.CopyBufferRegion(a.Dst, a.DstOff, a.Src, a.SrcOff, a.Size)
	case opCopyResource:
		a := ref.(copyResourceArgs)
		cl.CopyResource(a.Dst, a.Src)
	case opCopyTextureRegion:
		a := ref.(copyTextureRegionArgs)
		cl.CopyTextureRegion(a.Dst, a.DstOff, a.Src, a.SrcOff, a.Size)
	case opCopyBufferToImage:
		a := ref.(copyBufferToImageArgs)
		cl.CopyBufferToImage(a.Dst, a.Layer, a.DstOff, a.Size, a.Src, a.SrcOff, a.RowPitch, a.SlicePitch)
	case opDispatch:
		if !*boundPipeline {
			return
		}
		a := ref.(dispatchArgs)
		cl.Dispatch(a.X, a.Y, a.Z)
	case opDrawIndexedInstanced:
		if !*boundPipeline {
			return
		}
		a := ref.(drawIndexedArgs)
		cl.DrawIndexedInstanced(a.IndexCount, a.InstCount, a.StartIndex, a.BaseVertex, a.StartInst)
	case opDrawInstanced:
		if !*boundPipeline {
			return
		}
		a := ref.(drawArgs)
		cl.DrawInstanced(a.VertCount, a.InstCount, a.StartVertex, a.StartInst)
	case opSetIndexBuffer:
		a := ref.(setIndexBufferArgs)
		cl.SetIndexBuffer(a.Buf, a.Off, a.Format)
	case opSetVertexBuffers:
		a := ref.(setVertexBuffersArgs)
		cl.SetVertexBuffers(a.Start, a.Buf, a.Off)
	case opSetPrimitiveTopology:
		cl.SetPrimitiveTopology(ref.(hga.Topology))
	case opSetBlendFactor:
		a := ref.(blendFactorArgs)
		cl.SetBlendFactor(a.R, a.G, a.B, a.A)
	case opSetStencilRef:
		cl.SetStencilRef(ref.(uint32))
	case opSetRenderTargets:
		a := ref.(setRenderTargetsArgs)
		cl.SetRenderTargets(a.Color, a.Depth)
	case opSetViewports:
		cl.SetViewports(ref.([]hga.Viewport))
	case opSetScissorRects:
		cl.SetScissorRects(ref.([]hga.Scissor))
	case opSetSamplePositions:
		cl.SetSamplePositions(ref.([]hga.SamplePos))
	case opSetRootSignatureGraphics:
		cl.SetRootSignatureGraphics(ref.(hga.RootSignature))
	case opSetRootSignatureCompute:
		cl.SetRootSignatureCompute(ref.(hga.RootSignature))
	case opSetRootConstantsGraphics:
		a := ref.(rootConstantsArgs)
		cl.SetRootConstantsGraphics(a.Nr, a.Data, a.DestOff)
	case opSetRootConstantsCompute:
		a := ref.(rootConstantsArgs)
		cl.SetRootConstantsCompute(a.Nr, a.Data, a.DestOff)
	case opSetRootCBV:
		a := ref.(rootCBVArgs)
		cl.SetRootCBV(a.Nr, a.Buf, a.Off)
	case opSetRootDescriptorTable:
		a := ref.(rootTableArgs)
		cl.SetRootDescriptorTable(a.Nr, a.Heap, a.HeapCopy)
	case opSetDescriptorHeaps:
		cl.SetDescriptorHeaps(ref.([]hga.DescHeap))
	case opSetPipeline:
		cl.SetPipeline(ref.(hga.Pipeline))
		*boundPipeline = ref.(hga.Pipeline) != nil
	case opSetPipelineHandle:
		h := ref.(hga.PipelineHandle)
		p, ok := h.Resolve()
		if !ok {
			*boundPipeline = false
			return
		}
		cl.SetPipelineHandle(h)
		*boundPipeline = p != nil
	case opResourceBarrier:
		cl.ResourceBarrier(ref.([]hga.Barrier))
	default:
		panic(fmt.Sprintf("dcl: unhandled opcode %d", op))
	}
}
