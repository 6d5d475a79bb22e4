package dcl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xenosgpu/gpucore/hga"
	"github.com/xenosgpu/gpucore/hga/null"
)

func TestReplayOrdersCommandsAndSkipsUnboundPipelineDraws(t *testing.T) {
	g := null.New()
	buf, err := g.NewCommittedBuffer(64, true, hga.UCopyDst)
	require.NoError(t, err)
	src, err := g.NewCommittedBuffer(64, true, hga.UCopySrc)
	require.NoError(t, err)
	copy(src.Bytes(), []byte("hello, xenos"))

	var r Record
	r.DrawInstanced(3, 1, 0, 0) // no pipeline bound yet: must be skipped
	r.CopyBufferRegion(buf, 0, src, 0, 12)

	cl, err := g.NewCmdList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	require.NoError(t, Replay(&r, cl))
	require.NoError(t, cl.Close())

	require.NoError(t, g.Queue().ExecuteCommandLists([]hga.CmdList{cl}))
	require.Equal(t, []byte("hello, xenos"), buf.Bytes()[:12])
}

func TestReplaySkipsPipelineHandleNeverResolved(t *testing.T) {
	var r Record
	r.SetPipelineHandle(unresolvedHandle{})
	r.DrawInstanced(3, 1, 0, 0)

	g := null.New()
	cl, err := g.NewCmdList()
	require.NoError(t, err)
	require.NoError(t, cl.Begin())
	// Replay must not panic and must not invoke a draw on the
	// unresolved handle; this is exercised indirectly since the null
	// backend's draw methods are no-ops, so the assertion here is
	// that Replay returns cleanly.
	require.NoError(t, Replay(&r, cl))
}

type unresolvedHandle struct{}

func (unresolvedHandle) Resolve() (hga.Pipeline, bool) { return nil, false }

func TestRecordReset(t *testing.T) {
	var r Record
	r.SetStencilRef(1)
	r.SetStencilRef(2)
	if r.Len() != 2 {
		t.Fatalf("Len:\nhave %d\nwant 2", r.Len())
	}
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("Len after Reset:\nhave %d\nwant 0", r.Len())
	}
}
