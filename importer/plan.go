package importer

import (
	"fmt"

	"hta-import/source"
)

// Range is the requested import interval clamped to what the source holds.
// All timestamps are source units (unix ms); EffectiveMax is exclusive.
type Range struct {
	RequestedMin uint64
	RequestedMax uint64 // zero means unbounded
	EffectiveMin uint64
	EffectiveMax uint64
}

// Plan sizes the per-chunk range queries from the observed sampling density.
type Plan struct {
	// SamplingInterval is the average spacing between rows, in ms.
	SamplingInterval float64
	// RowCap is the per-query row limit.
	RowCap uint64
	// ChunkWidth is the time width of one fetch, in ms, sized so a chunk
	// is expected to return about half of RowCap.
	ChunkWidth uint64
}

// PlanImport clamps the requested range against the source stats and derives
// the chunk width. Pure; the only failure modes are a zero row cap and stats
// that violate the probe's own invariants.
func PlanImport(requestedMin, requestedMax uint64, stats source.Stats, rowCap uint64) (Range, Plan, error) {
	if rowCap == 0 {
		return Range{}, Plan{}, fmt.Errorf("%w: row cap must be greater than zero", ErrInvalidConfig)
	}
	if stats.MaxTimestamp < stats.MinTimestamp {
		return Range{}, Plan{}, fmt.Errorf("source stats are inconsistent: max %d < min %d",
			stats.MaxTimestamp, stats.MinTimestamp)
	}

	rng := Range{
		RequestedMin: requestedMin,
		RequestedMax: requestedMax,
	}

	rng.EffectiveMin = max(requestedMin, stats.MinTimestamp)
	// +1 keeps the exclusive upper bound safe against the inclusive source max.
	rng.EffectiveMax = stats.MaxTimestamp + 1
	if requestedMax > 0 {
		rng.EffectiveMax = min(requestedMax, stats.MaxTimestamp+1)
	}

	count := stats.Count
	if count == 0 {
		count = 1
	}
	interval := float64(stats.MaxTimestamp-stats.MinTimestamp) / float64(count)

	// Half the row cap, to not run into the limit too often.
	width := uint64(interval * float64(rowCap) / 2)
	if width == 0 {
		width = 1
	}

	return rng, Plan{
		SamplingInterval: interval,
		RowCap:           rowCap,
		ChunkWidth:       width,
	}, nil
}
