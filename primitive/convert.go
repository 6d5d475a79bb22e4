// Package primitive converts guest index streams and primitive
// topologies into host-compatible form: triangle fans and line loops
// become lists, and a guest primitive-reset index distinct from the
// host's canonical value is remapped.
package primitive

import "github.com/xenosgpu/gpucore/hga"

// GuestTopology is the guest-side primitive topology, a superset of
// hga.Topology that additionally names the two forms the host cannot
// draw directly.
type GuestTopology int

const (
	GPointList GuestTopology = iota
	GLineList
	GLineStrip
	GLineLoop
	GTriangleList
	GTriangleStrip
	GTriangleFan
)

// NeedsConversion reports whether g requires an index-buffer
// conversion before it can be drawn on the host.
func NeedsConversion(g GuestTopology) bool {
	return g == GTriangleFan || g == GLineLoop
}

// HostTopology returns the hga.Topology a (possibly converted) guest
// topology maps to.
func HostTopology(g GuestTopology) hga.Topology {
	switch g {
	case GPointList:
		return hga.TPointList
	case GLineList, GLineLoop:
		return hga.TLineList
	case GLineStrip:
		return hga.TLineStrip
	case GTriangleList, GTriangleFan:
		return hga.TTriangleList
	case GTriangleStrip:
		return hga.TTriangleStrip
	default:
		return hga.TTriangleList
	}
}

// FanToList expands a triangle-fan index sequence into a triangle
// list. Fewer than 3 indices produce no triangles at all (boundary
// case: the draw that would result from this index buffer is skipped
// entirely by the caller). The pivot vertex (indices[0]) is emitted
// last in each triangle, matching the winding the source hardware's
// fan expansion produces.
func FanToList(indices []uint32) []uint32 {
	if len(indices) < 3 {
		return nil
	}
	out := make([]uint32, 0, (len(indices)-2)*3)
	for i := 1; i < len(indices)-1; i++ {
		out = append(out, indices[i], indices[i+1], indices[0])
	}
	return out
}

// LoopToList expands a line-loop index sequence into a line list,
// closing the loop with an edge back to the first index.
func LoopToList(indices []uint32) []uint32 {
	if len(indices) < 2 {
		return nil
	}
	out := make([]uint32, 0, len(indices)*2)
	for i := 0; i < len(indices)-1; i++ {
		out = append(out, indices[i], indices[i+1])
	}
	out = append(out, indices[len(indices)-1], indices[0])
	return out
}

// HostResetValue is the canonical primitive-restart index for a given
// index width, fixed by every mainstream host graphics API.
func HostResetValue(format hga.IndexFmt) uint32 {
	if format == hga.Index16 {
		return 0xffff
	}
	return 0xffffffff
}

// RemapPrimitiveReset rewrites occurrences of guestReset in indices to
// the host's canonical reset value for format, in place. A no-op when
// the two already match. Per design note (c), the exact treatment of
// reset-index remapping in line strips is left unresolved upstream;
// this function is applied uniformly regardless of topology, and
// callers decide whether to invoke it for line strips.
func RemapPrimitiveReset(indices []uint32, format hga.IndexFmt, guestReset uint32) {
	host := HostResetValue(format)
	if guestReset == host {
		return
	}
	for i, v := range indices {
		if v == guestReset {
			indices[i] = host
		}
	}
}
