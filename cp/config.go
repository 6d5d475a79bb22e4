package cp

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the command processor's tunable configuration, decoded
// from a TOML file at startup. Every field has a conservative default
// supplied by DefaultConfig so a missing or partial file still
// produces a usable configuration.
type Config struct {
	TiledSharedMemory bool `toml:"tiled_shared_memory"`
	ReadbackResolve   bool `toml:"readback_resolve"`

	// ClearMemoryPageState is decoded from the file but not read by
	// the processor; shared-memory-mirror pages always start invalid.
	ClearMemoryPageState bool `toml:"clear_memory_page_state"`

	ResolutionScale [2]int `toml:"resolution_scale"`

	HalfPixelOffset bool `toml:"half_pixel_offset"`

	ResolutionScaleResolveEdgeClamp bool `toml:"resolution_scale_resolve_edge_clamp"`

	// PipelineCacheDir is the per-title root directory persisted
	// compiled pipeline blobs are read from and written to. Not part
	// of the original enumerated option table; added because a
	// pipeline cache needs somewhere to live on disk.
	PipelineCacheDir string `toml:"pipeline_cache_dir"`

	// BuiltinIndexCount and ArenaBytes size the primitive processor's
	// builtin index buffer and per-frame conversion arena.
	BuiltinIndexCount int   `toml:"builtin_index_count"`
	ArenaBytes        int64 `toml:"arena_bytes"`
}

// DefaultConfig returns the configuration used when no file is
// present, matching the "opaque defaults" the configuration table
// specifies.
func DefaultConfig() Config {
	return Config{
		TiledSharedMemory:               true,
		ReadbackResolve:                 false,
		ClearMemoryPageState:            false,
		ResolutionScale:                 [2]int{1, 1},
		HalfPixelOffset:                 false,
		ResolutionScaleResolveEdgeClamp: false,
		PipelineCacheDir:                "pipeline_cache",
		BuiltinIndexCount:               1 << 16,
		ArenaBytes:                      4 << 20,
	}
}

// LoadConfig reads and decodes a TOML configuration file at path,
// starting from DefaultConfig so any field the file omits keeps its
// default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cp: read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cp: decode config %s: %w", path, err)
	}
	return cfg, nil
}
