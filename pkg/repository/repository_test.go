package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntityParksUntilRepoReady(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("rsync://repo/a", TransportRsync, "")
	reg.MarkFetching("rsync://repo/a")

	reg.Enqueue(NewEntity(EntityChildCert, "/cache/a/child.cer", "rsync://repo/a", "example"))
	require.False(t, reg.Drained())

	_, ok := reg.Dequeue()
	require.False(t, ok, "entity must stay parked, not enter the FIFO, while the repo is still fetching")

	flushed := reg.TransitionReady("rsync://repo/a")
	require.Len(t, flushed, 1)

	e, ok := reg.Dequeue()
	require.True(t, ok)
	require.Equal(t, EntityChildCert, e.Kind)
}

func TestEntityRejectedWhenRepoFails(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("rsync://repo/b", TransportRsync, "")
	reg.MarkFetching("rsync://repo/b")
	reg.Enqueue(NewEntity(EntityManifest, "/cache/b/mft.mft", "rsync://repo/b", "example"))

	flushed := reg.TransitionFailed("rsync://repo/b")
	require.Nil(t, flushed)

	_, ok := reg.Dequeue()
	require.False(t, ok)
	require.True(t, reg.Drained())
}

func TestDrainedRequiresNoInflightParses(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("rsync://repo/c", TransportRsync, "")
	reg.TransitionReady("rsync://repo/c")
	reg.Enqueue(NewEntity(EntityROA, "/cache/c/x.roa", "rsync://repo/c", "example"))

	_, ok := reg.Dequeue()
	require.True(t, ok)
	require.False(t, reg.Drained(), "an outstanding parse request keeps the pipeline from draining")

	reg.MarkAnswered()
	require.True(t, reg.Drained())
}

func TestKindFromSuffix(t *testing.T) {
	k, ok := KindFromSuffix(".roa")
	require.True(t, ok)
	require.Equal(t, EntityROA, k)

	_, ok = KindFromSuffix(".txt")
	require.False(t, ok)
}
