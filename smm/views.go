package smm

import "github.com/xenosgpu/gpucore/hga"

// BarrierPusher receives the transitions the Use* methods request to
// put the mirror's buffer in the resource state its next consumer
// needs. Transitions are recorded as barriers on
// the caller-supplied recorder (typically the CP's barrier batch),
// not directly on a command list, so they can be collapsed alongside
// other pending transitions for the same submission.
type BarrierPusher interface {
	PushTransitionBarrier(buf hga.Buffer, img hga.Image, subresource int, before, after hga.ResourceState)
}

// UseForReading marks the mirror buffer as a shader-resource read
// source (vertex/index/constant/texture-load fetches).
func (m *Mirror) UseForReading(b BarrierPusher) {
	b.PushTransitionBarrier(m.buf, nil, -1, hga.StateUnorderedAccess, hga.StateShaderResource)
}

// UseForWriting marks the mirror buffer as a UAV write target
// (memexport).
func (m *Mirror) UseForWriting(b BarrierPusher) {
	b.PushTransitionBarrier(m.buf, nil, -1, hga.StateShaderResource, hga.StateUnorderedAccess)
}

// UseAsCopySource marks the mirror buffer as a resolve/readback
// source.
func (m *Mirror) UseAsCopySource(b BarrierPusher) {
	b.PushTransitionBarrier(m.buf, nil, -1, hga.StateUnorderedAccess, hga.StateCopySrc)
}

// ViewFormat selects one of the mirror's typed descriptor views.
type ViewFormat int

const (
	ViewRaw ViewFormat = iota
	ViewR32
	ViewR32G32
	ViewR32G32B32A32
)

// WriteSRV fills heap slot nr, copy cpy with a shader-resource-view
// descriptor of the mirror buffer covering [offset, offset+size) in
// the requested format.
func (m *Mirror) WriteSRV(heap hga.DescHeap, cpy, nr int, offset, size int64, format ViewFormat) {
	heap.SetBuffer(cpy, nr, 0, []hga.Buffer{m.buf}, []int64{offset}, []int64{size})
	_ = format // view format selection is a host-format-table concern resolved when the heap descriptor's type (byte-address vs typed) is created; recorded here for call-site clarity
}

// WriteUAV fills heap slot nr, copy cpy with an unordered-access-view
// descriptor of the mirror buffer covering [offset, offset+size).
func (m *Mirror) WriteUAV(heap hga.DescHeap, cpy, nr int, offset, size int64, format ViewFormat) {
	heap.SetBuffer(cpy, nr, 0, []hga.Buffer{m.buf}, []int64{offset}, []int64{size})
	_ = format
}
