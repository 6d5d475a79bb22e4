// Package texcache produces host images and views for guest texture
// fetches, decoding guest tiled/compressed formats into linear host
// images via compute dispatches, and maintains sampler objects.
package texcache

import "github.com/xenosgpu/gpucore/hga"

// GuestFormat enumerates the guest texture formats this cache knows
// how to classify. Only a representative subset of the full Xenos
// format table is modeled; additions follow the same FormatEntry
// shape.
type GuestFormat int

const (
	FmtK8                GuestFormat = iota
	FmtK8G8R8A8
	FmtK16
	FmtK16G16
	FmtK16Float
	FmtK16G16Float
	FmtKDXT1
	FmtKDXT2_3
	FmtKDXT4_5
	FmtK32Float
)

// FormatEntry describes how one guest format is realized on the host.
type FormatEntry struct {
	LoadShaderIndex int
	UnsignedFormat  hga.PixelFmt
	SignedFormat    hga.PixelFmt
	// SignedSeparate is true when the unsigned and signed
	// representations cannot share one host image.
	SignedSeparate bool
	BlockCompressed bool
	Filterable      bool
	Swizzle         [4]int // identity is {0,1,2,3}; one index per RGBA channel
	BytesPerBlock   int
	BlockWidth, BlockHeight int
}

// Matrix is the format table, populated once against a GPU's
// supported-format queries so fallbacks only need to be resolved a
// single time.
type Matrix struct {
	entries map[GuestFormat]FormatEntry
}

func defaultMatrix() map[GuestFormat]FormatEntry {
	return map[GuestFormat]FormatEntry{
		FmtK8: {
			LoadShaderIndex: 0, UnsignedFormat: hga.R8Unorm, SignedFormat: hga.R8Unorm,
			Filterable: true, Swizzle: [4]int{0, 0, 0, 0}, BytesPerBlock: 1, BlockWidth: 1, BlockHeight: 1,
		},
		FmtK8G8R8A8: {
			LoadShaderIndex: 1, UnsignedFormat: hga.RGBA8Unorm, SignedFormat: hga.RGBA8Snorm,
			SignedSeparate: true, Filterable: true, Swizzle: [4]int{2, 1, 0, 3}, BytesPerBlock: 4, BlockWidth: 1, BlockHeight: 1,
		},
		FmtK16: {
			LoadShaderIndex: 2, UnsignedFormat: hga.R16Unorm, SignedFormat: hga.R16Float,
			SignedSeparate: true, Filterable: true, Swizzle: [4]int{0, 0, 0, 0}, BytesPerBlock: 2, BlockWidth: 1, BlockHeight: 1,
		},
		FmtK16G16: {
			LoadShaderIndex: 3, UnsignedFormat: hga.RG16Float, SignedFormat: hga.RG16Float,
			Filterable: true, Swizzle: [4]int{0, 1, 0, 1}, BytesPerBlock: 4, BlockWidth: 1, BlockHeight: 1,
		},
		FmtK16Float: {
			LoadShaderIndex: 4, UnsignedFormat: hga.R16Float, SignedFormat: hga.R16Float,
			Filterable: true, Swizzle: [4]int{0, 0, 0, 0}, BytesPerBlock: 2, BlockWidth: 1, BlockHeight: 1,
		},
		FmtK16G16Float: {
			LoadShaderIndex: 5, UnsignedFormat: hga.RG16Float, SignedFormat: hga.RG16Float,
			Filterable: true, Swizzle: [4]int{0, 1, 0, 1}, BytesPerBlock: 4, BlockWidth: 1, BlockHeight: 1,
		},
		FmtKDXT1: {
			LoadShaderIndex: 6, UnsignedFormat: hga.BC1Unorm, SignedFormat: hga.BC1Unorm,
			BlockCompressed: true, Filterable: true, Swizzle: [4]int{0, 1, 2, 3}, BytesPerBlock: 8, BlockWidth: 4, BlockHeight: 4,
		},
		FmtKDXT2_3: {
			LoadShaderIndex: 7, UnsignedFormat: hga.BC2Unorm, SignedFormat: hga.BC2Unorm,
			BlockCompressed: true, Filterable: true, Swizzle: [4]int{0, 1, 2, 3}, BytesPerBlock: 16, BlockWidth: 4, BlockHeight: 4,
		},
		FmtKDXT4_5: {
			LoadShaderIndex: 8, UnsignedFormat: hga.BC3Unorm, SignedFormat: hga.BC3Unorm,
			BlockCompressed: true, Filterable: true, Swizzle: [4]int{0, 1, 2, 3}, BytesPerBlock: 16, BlockWidth: 4, BlockHeight: 4,
		},
		FmtK32Float: {
			LoadShaderIndex: 9, UnsignedFormat: hga.R32Float, SignedFormat: hga.R32Float,
			Filterable: false, Swizzle: [4]int{0, 0, 0, 0}, BytesPerBlock: 4, BlockWidth: 1, BlockHeight: 1,
		},
	}
}

// NewMatrix builds the format table and applies host-support
// fallbacks: block-compressed formats that are not filterable on this
// backend decompress to RGBA8, and 16-bit unorm falls back to 16-bit
// float when unsupported.
func NewMatrix(gpu hga.GPU) *Matrix {
	entries := defaultMatrix()
	for k, e := range entries {
		if e.BlockCompressed && !gpu.FormatSupported(e.UnsignedFormat, hga.USampled) {
			e.UnsignedFormat = hga.RGBA8Unorm
			e.SignedFormat = hga.RGBA8Unorm
			e.BlockCompressed = false
			e.BytesPerBlock = 4
			e.BlockWidth, e.BlockHeight = 1, 1
			e.LoadShaderIndex = decompressShaderIndex(k)
		}
		if e.UnsignedFormat == hga.R16Unorm && !gpu.FormatSupported(hga.R16Unorm, hga.USampled) {
			e.UnsignedFormat = hga.R16Float
		}
		entries[k] = e
	}
	return &Matrix{entries: entries}
}

// decompressShaderIndex picks the software-decompress load-shader
// variant for a block-compressed format that the host cannot sample
// directly. Indices above the directly-sampled range are reserved for
// these fallbacks.
func decompressShaderIndex(f GuestFormat) int { return 100 + int(f) }

// Lookup returns the FormatEntry for f.
func (m *Matrix) Lookup(f GuestFormat) (FormatEntry, bool) {
	e, ok := m.entries[f]
	return e, ok
}
