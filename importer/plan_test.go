package importer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hta-import/source"
)

func TestPlanImportClampsRange(t *testing.T) {
	stats := source.Stats{Count: 100, MinTimestamp: 1000, MaxTimestamp: 2000}

	// Unbounded request clamps to the source, with an exclusive upper bound.
	rng, _, err := PlanImport(0, 0, stats, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), rng.EffectiveMin)
	require.Equal(t, uint64(2001), rng.EffectiveMax)

	// A request wider than the source clamps on both sides.
	rng, _, err = PlanImport(500, 5000, stats, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), rng.EffectiveMin)
	require.Equal(t, uint64(2001), rng.EffectiveMax)

	// A request inside the source is kept as is.
	rng, _, err = PlanImport(1500, 1800, stats, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1500), rng.EffectiveMin)
	require.Equal(t, uint64(1800), rng.EffectiveMax)
}

func TestPlanImportChunkWidth(t *testing.T) {
	// A million rows at roughly 1 Hz: interval just under 1000 ms, so one
	// chunk should span about 10M rows worth of time at a 20M row cap.
	stats := source.Stats{Count: 1_000_000, MinTimestamp: 0, MaxTimestamp: 999_990_000}

	_, plan, err := PlanImport(0, 0, stats, 20_000_000)
	require.NoError(t, err)
	require.InDelta(t, 999.99, plan.SamplingInterval, 1e-6)
	require.InDelta(t, 9.9999e9, float64(plan.ChunkWidth), 2)
}

func TestPlanImportChunkWidthFloor(t *testing.T) {
	// A single row has no spacing to measure; the cursor still has to move.
	stats := source.Stats{Count: 1, MinTimestamp: 5000, MaxTimestamp: 5000}

	_, plan, err := PlanImport(0, 0, stats, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1), plan.ChunkWidth)
}

func TestPlanImportZeroRowCap(t *testing.T) {
	_, _, err := PlanImport(0, 0, source.Stats{Count: 1}, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPlanImportInconsistentStats(t *testing.T) {
	_, _, err := PlanImport(0, 0, source.Stats{Count: 1, MinTimestamp: 10, MaxTimestamp: 5}, 10)
	require.Error(t, err)
}
