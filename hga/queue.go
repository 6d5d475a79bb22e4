package hga

// Queue is the single host command queue. Submission fences and the
// auxiliary tile-mapping fence are both obtained from it, so ordering
// between command-list execution and standalone tile-mapping updates
// is whatever the caller establishes by waiting on the returned
// Fence before relying on the other.
type Queue interface {
	// ExecuteCommandLists submits a batch for execution. Command
	// lists in cl cannot be reset or re-recorded until the returned
	// Fence has signaled.
	ExecuteCommandLists(cl []CmdList) error

	// Signal advances the queue's fence to value once all work
	// submitted so far has completed, and returns that Fence.
	Signal(value uint64) (Fence, error)

	// UpdateTileMappings remaps the sparse blocks of a reserved
	// buffer to host physical memory outside of any command list.
	// It is used by the shared memory mirror's make-resident path.
	UpdateTileMappings(buf Buffer, mappings []TileMapping) error
}

// TileMapping maps one sparse block of a reserved Buffer to host
// memory (or unmaps it, if Resident is false).
type TileMapping struct {
	BlockOffset int64
	BlockCount  int
	Resident    bool
}

// Fence is a monotonically increasing synchronization point.
type Fence interface {
	// CompletedValue returns the highest value the host has finished
	// executing up to.
	CompletedValue() uint64

	// Wait blocks until CompletedValue() >= value.
	Wait(value uint64) error
}
