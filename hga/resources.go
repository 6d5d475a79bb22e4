package hga

// GPU is the main interface to an opened backend. It creates
// resources and submits work to Queue. A GPU is obtained from
// Driver.Open.
type GPU interface {
	Driver() Driver

	// Queue returns the single command queue used for both
	// submission-bound and standalone (tile-mapping) work.
	Queue() Queue

	// NewCommittedBuffer creates a buffer with dedicated backing
	// memory. visible requests a CPU-mappable allocation.
	NewCommittedBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewReservedBuffer creates a buffer with no backing memory;
	// ranges become accessible only after Queue.UpdateTileMappings
	// maps them to physical tiles. Used for the shared memory
	// mirror when tiled_shared_memory is enabled.
	NewReservedBuffer(size int64, usg Usage) (Buffer, error)

	// NewImage2D creates a 2D (or 2D array) image.
	NewImage2D(pf PixelFmt, width, height, layers, levels, samples int, usg Usage) (Image, error)

	// NewImage3D creates a volume image.
	NewImage3D(pf PixelFmt, width, height, depth, levels int, usg Usage) (Image, error)

	NewSampler(s *Sampling) (Sampler, error)

	NewDescriptorHeap(d []Descriptor) (DescHeap, error)
	NewRootSignature(p *RootSigParam) (RootSignature, error)

	// NewGraphicsPipeline and NewComputePipeline may compile
	// asynchronously; both return a PipelineHandle immediately.
	// The handle's Resolve reports ok == false until it is backed by
	// a Pipeline, and keeps doing so if compilation failed.
	NewGraphicsPipeline(state *GraphState) (PipelineHandle, error)
	NewComputePipeline(state *CompState) (PipelineHandle, error)

	NewCmdList() (CmdList, error)

	// Limits returns the implementation limits. Immutable for the
	// GPU's lifetime.
	Limits() Limits

	// FormatSupported reports whether pf supports the given usage
	// (e.g. linear filtering, render-target, UAV store) on this
	// backend, used by the texture cache to pick format fallbacks.
	FormatSupported(pf PixelFmt, usg Usage) bool

	// CaptureEvent annotates the next submitted command list for a
	// debug capture tool; a no-op if the backend has none.
	CaptureEvent(label string)
}

// Usage is a mask of valid uses for a Buffer or Image.
type Usage int

const (
	UShaderRead Usage = 1 << iota
	UShaderWrite
	UConstant
	UVertexData
	UIndexData
	UCopySrc
	UCopyDst
	URenderTarget
	UDepthStencil
	USampled
	UGeneric Usage = 1<<iota - 1
)

// PixelFmt identifies a host pixel format.
type PixelFmt int

const (
	RGBA8Unorm PixelFmt = iota
	RGBA8Snorm
	RGBA8Srgb
	BGRA8Unorm
	RG8Unorm
	R8Unorm
	RGBA16Float
	RGBA16Unorm
	RG16Float
	R16Float
	R16Unorm
	RGBA32Float
	RG32Float
	R32Float
	RGB10A2Unorm
	RG11B10Float
	D16Unorm
	D32Float
	D24UnormS8
	D32FloatS8
	BC1Unorm
	BC2Unorm
	BC3Unorm
	BC4Unorm
	BC5Unorm
	BC6HFloat
	BC7Unorm
)

// Buffer is a fixed-size GPU buffer. Growth requires creating a new
// Buffer and copying.
type Buffer interface {
	Destroyer

	// Visible reports whether the buffer is CPU-mappable.
	Visible() bool

	// Bytes returns the mapped range for a visible buffer, valid for
	// its lifetime; nil otherwise.
	Bytes() []byte

	Cap() int64
}

// Dim3D is a three-dimensional extent.
type Dim3D struct{ Width, Height, Depth int }

// Off3D is a three-dimensional offset.
type Off3D struct{ X, Y, Z int }

// ViewType is the dimensionality/arrayness of an ImageView.
type ViewType int

const (
	View2D ViewType = iota
	View2DArray
	View3D
	ViewCube
	ViewCubeArray
	View2DMS
	View2DMSArray
)

// Image is a GPU image. Data transfer to/from an Image always goes
// through a staging Buffer.
type Image interface {
	Destroyer

	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)

	PixelFmt() PixelFmt
	Dim() Dim3D
	Layers() int
	Levels() int
	Samples() int
}

// ImageView is a typed view of an Image.
type ImageView interface {
	Destroyer
	Image() Image
}

// Filter is a sampler filter mode.
type Filter int

const (
	FNearest Filter = iota
	FLinear
)

// AddrMode is a sampler address mode.
type AddrMode int

const (
	AWrap AddrMode = iota
	AMirror
	AClamp
	ABorder
)

// Sampling describes sampler state.
type Sampling struct {
	Min, Mag, Mipmap    Filter
	AddrU, AddrV, AddrW AddrMode
	BorderColor         [4]float32
	MaxAniso            int
	MinLOD, MaxLOD      float32
}

// Sampler is a host sampler object.
type Sampler interface {
	Destroyer
}

// DescType is the type of a single descriptor slot.
type DescType int

const (
	DConstantBuffer DescType = iota
	DShaderResource
	DUnorderedAccess
	DSampler
)

// Descriptor describes one slot of a DescHeap.
type Descriptor struct {
	Type   DescType
	Stages Stage
	Nr     int
	Len    int
}

// Stage is a mask of programmable shader stages.
type Stage int

const (
	SVertex Stage = 1 << iota
	SPixel
	SCompute
)

// DescHeap is backing storage for a number of descriptors of fixed
// layout; it is the bindless view/sampler heap or a bindful
// per-draw descriptor table allocation.
type DescHeap interface {
	Destroyer

	// New (re)allocates storage for n copies, invalidating any
	// prior copy unless n equals Count(). New(0) frees storage.
	New(n int) error

	SetBuffer(cpy, nr, start int, buf []Buffer, off, size []int64)
	SetImage(cpy, nr, start int, iv []ImageView)
	SetSampler(cpy, nr, start int, s []Sampler)

	Count() int
}

// RootSigParam describes the slots of a root signature: constants,
// CBVs, and descriptor-table ranges, each tagged with the stage(s)
// that may access them.
type RootSigParam struct {
	Constants []RootConstRange
	CBVs      []RootCBVSlot
	Tables    []RootTableSlot
}

// RootConstRange reserves Count32 32-bit inline root constants.
type RootConstRange struct {
	Stages  Stage
	Nr      int
	Count32 int
}

// RootCBVSlot reserves a root-level constant-buffer-view slot (no
// descriptor table indirection).
type RootCBVSlot struct {
	Stages Stage
	Nr     int
}

// RootTableSlot reserves a descriptor-table range bound from a
// DescHeap at draw time.
type RootTableSlot struct {
	Stages Stage
	Type   DescType
	Len    int
}

// RootSignature is a compiled root-signature object.
type RootSignature interface {
	Destroyer
}

// VertexFmt is the format of one vertex input element.
type VertexFmt int

const (
	VInt8x4 VertexFmt = iota
	VUInt8x4
	VInt16x2
	VInt16x4
	VFloat16x2
	VFloat16x4
	VFloat32
	VFloat32x2
	VFloat32x3
	VFloat32x4
	VUInt32
)

// VertexIn describes one vertex buffer binding.
type VertexIn struct {
	Format VertexFmt
	Stride int
	Nr     int
}

// Topology selects primitive assembly.
type Topology int

const (
	TPointList Topology = iota
	TLineList
	TLineStrip
	TTriangleList
	TTriangleStrip
)

// IndexFmt is the width of index buffer elements.
type IndexFmt int

const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// RasterState configures the fixed-function rasterizer.
type RasterState struct {
	Clockwise bool
	CullBack  bool
	CullFront bool
	Wireframe bool
	DepthBias bool
	Bias      float32
	BiasSlope float32
	BiasClamp float32
}

// CmpFunc is a comparison function.
type CmpFunc int

const (
	CNever CmpFunc = iota
	CLess
	CEqual
	CLessEqual
	CGreater
	CNotEqual
	CGreaterEqual
	CAlways
)

// StencilOp is a stencil update operation.
type StencilOp int

const (
	StKeep StencilOp = iota
	StZero
	StReplace
	StIncClamp
	StDecClamp
	StInvert
	StIncWrap
	StDecWrap
)

// StencilFace configures one face's stencil test.
type StencilFace struct {
	Fail, DepthFail, Pass StencilOp
	Cmp                   CmpFunc
}

// DSState configures depth/stencil testing.
type DSState struct {
	DepthTest, DepthWrite bool
	DepthCmp              CmpFunc
	StencilTest           bool
	Front, Back           StencilFace
	ReadMask, WriteMask   uint32
}

// BlendOp is a blend combine operation.
type BlendOp int

const (
	BAdd BlendOp = iota
	BSubtract
	BRevSubtract
	BMin
	BMax
)

// BlendFac is a blend factor.
type BlendFac int

const (
	BfZero BlendFac = iota
	BfOne
	BfSrcColor
	BfInvSrcColor
	BfSrcAlpha
	BfInvSrcAlpha
	BfDstColor
	BfInvDstColor
	BfDstAlpha
	BfInvDstAlpha
	BfConstColor
	BfInvConstColor
)

// ColorMask is a write mask for a render target's color channels.
type ColorMask int

const (
	CRed ColorMask = 1 << iota
	CGreen
	CBlue
	CAlpha
	CAll ColorMask = CRed | CGreen | CBlue | CAlpha
)

// ColorBlend configures blending for one render target.
type ColorBlend struct {
	Blend     bool
	WriteMask ColorMask
	Op        [2]BlendOp // color, alpha
	SrcFac    [2]BlendFac
	DstFac    [2]BlendFac
}

// ShaderBlob is an already-translated host shader binary; the shader
// translator is an external collaborator that produces these.
type ShaderBlob struct {
	Code     []byte
	Bindings []Descriptor
}

// GraphState defines a graphics pipeline.
type GraphState struct {
	Vertex, Pixel ShaderBlob
	RootSig       RootSignature
	Input         []VertexIn
	Topology      Topology
	Raster        RasterState
	Samples       int
	DS            DSState
	Blend         []ColorBlend
	ColorFormats  []PixelFmt
	DepthFormat   PixelFmt
	HasDepth      bool
	Tessellated   bool
}

// CompState defines a compute pipeline.
type CompState struct {
	Shader  ShaderBlob
	RootSig RootSignature
}

// Pipeline is a compiled, immediately usable pipeline object.
type Pipeline interface {
	Destroyer
}

// PipelineHandle identifies a (possibly still-compiling) pipeline. A
// handle that never resolves successfully makes every draw or
// dispatch referencing it a no-op at replay time, per the command
// processor's pending-pipeline-compile error policy.
type PipelineHandle interface {
	// Resolve returns the backing Pipeline, or ok == false if
	// compilation has not finished (or failed) yet.
	Resolve() (p Pipeline, ok bool)
}

// Limits describes implementation limits, fixed for a GPU's lifetime.
type Limits struct {
	MaxImage2D, MaxImageCube, MaxImage3D int
	MaxLayers                            int
	MaxRenderSize                        [2]int
	MaxRenderLayers                      int
	MaxColorTargets                      int
	MaxViewports                         int
	MaxDispatch                          [3]int

	// MaxSamplerAllocation bounds the sampler cache's LRU budget.
	MaxSamplerAllocation int

	// TiledResourcesTier reports sparse-buffer support; 0 means the
	// shared memory mirror must fall back to a committed buffer.
	TiledResourcesTier int

	// BindlessSupported reports whether the backend can expose a
	// single large descriptor heap addressable by index from shader
	// constants.
	BindlessSupported bool
}
