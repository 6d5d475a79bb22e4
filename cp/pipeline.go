package cp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xenosgpu/gpucore/hga"
)

// PipelineKey identifies one cacheable pipeline: the shader pair
// identity plus the flags that change which root signature variant
// it is compiled against (spec §3 "Pipeline / root signature cache
// keys").
type PipelineKey struct {
	VertexHash, PixelHash [32]byte
	Tessellated           bool

	// BindfulVariant selects which {VS textures, VS samplers, PS
	// textures, PS samplers}-present combination this pipeline's root
	// signature was built for. -1 selects the single bindless root
	// signature for this Tessellated variant (spec §4.1's binding
	// policy); any other value names a bindful variant index.
	BindfulVariant int
}

// diskName returns the filename PipelineKey is persisted under inside
// Config.PipelineCacheDir.
func (k PipelineKey) diskName() string {
	variant := "bindless"
	if k.BindfulVariant >= 0 {
		variant = fmt.Sprintf("bindful%d", k.BindfulVariant)
	}
	tess := ""
	if k.Tessellated {
		tess = "-tess"
	}
	return fmt.Sprintf("%x-%x%s-%s.pso", k.VertexHash, k.PixelHash, tess, variant)
}

// pipelineEntry is one cached pipeline. Handle may still be
// unresolved (compiling) for a call that raced New*Pipeline.
type pipelineEntry struct {
	handle hga.PipelineHandle
	blob   []byte // persisted host-compiled bytes, once known
}

// PipelineWarmSpec is one entry to pre-compile when warming the cache
// at startup; the caller supplies the state to compile.
type PipelineWarmSpec struct {
	Key   PipelineKey
	Graph *hga.GraphState // nil selects Comp
	Comp  *hga.CompState
}

// PipelineCache owns the per-title persisted pipeline cache (spec §6
// "Persisted state: Pipeline cache... stored under a per-title cache
// root") and the in-memory table of handles created this run. Lookups
// and creations are safe for concurrent use, though the command
// processor itself only ever calls in from its single goroutine;
// concurrent callers only arise during WarmCache's fan-out.
type PipelineCache struct {
	gpu hga.GPU
	dir string

	mu      sync.Mutex
	entries map[PipelineKey]*pipelineEntry
}

// NewPipelineCache creates a pipeline cache backed by dir (empty
// disables persistence).
func NewPipelineCache(gpu hga.GPU, dir string) *PipelineCache {
	return &PipelineCache{gpu: gpu, dir: dir, entries: make(map[PipelineKey]*pipelineEntry)}
}

// GetOrCreateGraphics returns the cached handle for key, compiling a
// new one from state if this is the first request. Compilation may
// finish asynchronously on the backend's own schedule; the handle
// returned is usable immediately as a (possibly still-resolving)
// PipelineHandle, per spec §4.1's pipeline binding policy.
func (c *PipelineCache) GetOrCreateGraphics(key PipelineKey, state *hga.GraphState) (hga.PipelineHandle, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.handle, nil
	}
	c.mu.Unlock()

	h, err := c.gpu.NewGraphicsPipeline(state)
	if err != nil {
		return nil, fmt.Errorf("cp: compile graphics pipeline: %w", err)
	}
	c.mu.Lock()
	c.entries[key] = &pipelineEntry{handle: h}
	c.mu.Unlock()
	return h, nil
}

// GetOrCreateCompute is GetOrCreateGraphics for compute pipelines
// (EDRAM load/store and texture-load/tile kernels).
func (c *PipelineCache) GetOrCreateCompute(key PipelineKey, state *hga.CompState) (hga.PipelineHandle, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.handle, nil
	}
	c.mu.Unlock()

	h, err := c.gpu.NewComputePipeline(state)
	if err != nil {
		return nil, fmt.Errorf("cp: compile compute pipeline: %w", err)
	}
	c.mu.Lock()
	c.entries[key] = &pipelineEntry{handle: h}
	c.mu.Unlock()
	return h, nil
}

// WarmCache compiles every spec concurrently, bounded to a small
// worker count, ahead of the first frame that would otherwise stall
// on a cold pipeline-create call. A per-pipeline compile failure is
// logged and skipped (spec §7: "Pipeline-create failures are not
// fatal; the affected draw is skipped") rather than aborting the
// whole warm-up; only a cancelled context aborts early.
func (c *PipelineCache) WarmCache(ctx context.Context, specs []PipelineWarmSpec, onErr func(PipelineKey, error)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var err error
			if spec.Graph != nil {
				_, err = c.GetOrCreateGraphics(spec.Key, spec.Graph)
			} else if spec.Comp != nil {
				_, err = c.GetOrCreateCompute(spec.Key, spec.Comp)
			}
			if err != nil && onErr != nil {
				onErr(spec.Key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// persistBlob writes a compiled pipeline's opaque host blob to disk
// under the key's name. Nothing in this package reads these files
// back; WarmCache compiles from the states its caller passes.
// Persistence failures
// are non-fatal: the in-memory entry the caller already has remains
// usable for this run.
func (c *PipelineCache) persistBlob(key PipelineKey, blob []byte) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cp: create pipeline cache dir: %w", err)
	}
	path := filepath.Join(c.dir, key.diskName())
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("cp: write pipeline cache entry: %w", err)
	}
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.blob = blob
	}
	c.mu.Unlock()
	return nil
}
