package poa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncTrackerStaysSyncingUntilStableWindowElapses(t *testing.T) {
	tr := NewSyncTracker(2, 10)
	require.Equal(t, Syncing, tr.state)

	require.Equal(t, Syncing, tr.Observe(100, 101, 1000))
	require.Equal(t, Syncing, tr.Observe(100, 101, 1005))
	require.Equal(t, Live, tr.Observe(100, 101, 1011))
}

func TestSyncTrackerResetsStableWindowWhenGapWidens(t *testing.T) {
	tr := NewSyncTracker(2, 10)

	require.Equal(t, Syncing, tr.Observe(100, 101, 1000))
	require.Equal(t, Syncing, tr.Observe(90, 101, 1005), "gap widening past the threshold must reset the stability clock")
	require.Equal(t, Syncing, tr.Observe(100, 101, 1008))
	require.Equal(t, Live, tr.Observe(100, 101, 1019))
}

func TestSyncTrackerNeverReturnsToSyncingOnceLive(t *testing.T) {
	tr := NewSyncTracker(2, 10)
	require.Equal(t, Syncing, tr.Observe(100, 100, 1000))
	require.Equal(t, Live, tr.Observe(100, 100, 1011))
	require.Equal(t, Live, tr.Observe(0, 1000, 1012), "must not fall back to syncing once live")
}
