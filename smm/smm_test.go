package smm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xenosgpu/gpucore/dcl"
	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/hga/null"
)

type fakeHost struct {
	rec              dcl.Record
	tileUpdateQueued int
}

func (h *fakeHost) Record() *dcl.Record          { return &h.rec }
func (h *fakeHost) CurrentSubmission() uint64    { return 1 }
func (h *fakeHost) CompletedSubmission() uint64  { return 0 }
func (h *fakeHost) NotifyTileMappingQueued()     { h.tileUpdateQueued++ }

func newTestMirror(t *testing.T) (*Mirror, *fakeHost, hga.GPU) {
	t.Helper()
	g := null.New()
	h := &fakeHost{}
	m, err := New(g, h, true)
	require.NoError(t, err)
	return m, h, g
}

func TestRequestRangeUploadsAndMarksValid(t *testing.T) {
	m, h, g := newTestMirror(t)
	guest := make([]byte, Size)
	copy(guest[0x1000:], []byte("hello xenos"))

	require.NoError(t, m.RequestRange(0x1000, 256, guest))
	require.Equal(t, 1, h.rec.Len(), "expected exactly one copy-buffer-region record")

	cl, err := g.NewCmdList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	require.NoError(t, dcl.Replay(&h.rec, cl))
	require.NoError(t, cl.Close())
	require.NoError(t, g.Queue().ExecuteCommandLists([]hga.CmdList{cl}))

	require.Equal(t, []byte("hello xenos"), m.Buffer().Bytes()[0x1000:0x1000+11])
}

func TestRequestRangeSecondCallIsNoOpWhenStillValid(t *testing.T) {
	m, h, _ := newTestMirror(t)
	guest := make([]byte, Size)

	require.NoError(t, m.RequestRange(0x2000, 4096, guest))
	require.Equal(t, 1, h.rec.Len())

	require.NoError(t, m.RequestRange(0x2000, 4096, guest))
	require.Equal(t, 1, h.rec.Len(), "second request over an already-valid range must not re-upload")
}

func TestInvalidatePagesClearsValidityAndFiresWatch(t *testing.T) {
	m, h, _ := newTestMirror(t)
	guest := make([]byte, Size)
	require.NoError(t, m.RequestRange(0x3000, 4096, guest))

	var fired bool
	m.Watch(0x3000, 4096, func(base, length uint32) { fired = true })

	m.InvalidatePages(0x3000, 4096)
	require.True(t, fired)

	require.NoError(t, m.RequestRange(0x3000, 4096, guest))
	require.Equal(t, 2, h.rec.Len(), "range must be re-uploaded after invalidation")
}

func TestMakeTilesResidentIsIdempotent(t *testing.T) {
	m, h, _ := newTestMirror(t)
	require.NoError(t, m.MakeTilesResident(0, BlockSize))
	require.Equal(t, 1, h.tileUpdateQueued)
	require.NoError(t, m.MakeTilesResident(0, BlockSize))
	require.Equal(t, 1, h.tileUpdateQueued, "already-resident blocks must not requeue a mapping update")
}

func TestRequestRangeAtLastPageSucceeds(t *testing.T) {
	m, _, _ := newTestMirror(t)
	guest := make([]byte, Size)
	require.NoError(t, m.RequestRange(Size-PageSize, PageSize, guest))
}

func TestCoalesceMergesAdjacentBlocks(t *testing.T) {
	in := []hga.TileMapping{
		{BlockOffset: 0, BlockCount: 1, Resident: true},
		{BlockOffset: BlockSize, BlockCount: 1, Resident: true},
		{BlockOffset: BlockSize * 4, BlockCount: 1, Resident: true},
	}
	out := coalesce(in)
	require.Len(t, out, 2)
	require.Equal(t, 2, out[0].BlockCount)
}
