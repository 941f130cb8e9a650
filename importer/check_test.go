package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDryRunHealthySeries(t *testing.T) {
	src := newFakeSource()
	start := uint64(time.Now().Add(-10 * time.Second).UnixMilli())
	for i := uint64(0); i < 10; i++ {
		src.add("t", srcRow(start+i*1000, float64(i)))
	}

	reports, err := DryRun(context.Background(), src, []Job{
		{Metric: "m", Table: "t", SamplingRate: 1},
	}, CheckOptions{MaxAge: time.Hour, CheckValues: true})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	require.Equal(t, uint64(10), rep.Count)
	require.Equal(t, time.UnixMilli(int64(start)).UTC(), rep.First)
	require.Equal(t, 900*time.Millisecond, rep.AvgInterval)
	require.Empty(t, rep.Suspicious)
}

func TestDryRunFlagsEmptySeries(t *testing.T) {
	reports, err := DryRun(context.Background(), newFakeSource(), []Job{
		{Metric: "m", Table: "t"},
	}, CheckOptions{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, []string{"series is empty"}, reports[0].Suspicious)
}

func TestDryRunFlagsIntervalMismatch(t *testing.T) {
	src := newFakeSource()
	// 10 Hz is configured but the rows are spaced a full second apart.
	for i := uint64(0); i < 10; i++ {
		src.add("t", srcRow(i*1000, float64(i)))
	}

	reports, err := DryRun(context.Background(), src, []Job{
		{Metric: "m", Table: "t", SamplingRate: 10},
	}, CheckOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, reports[0].Suspicious)
}

func TestDryRunFlagsStaleSeries(t *testing.T) {
	src := newFakeSource()
	src.add("t", srcRow(1000, 1), srcRow(2000, 2))

	reports, err := DryRun(context.Background(), src, []Job{
		{Metric: "m", Table: "t"},
	}, CheckOptions{MaxAge: time.Hour})
	require.NoError(t, err)
	require.NotEmpty(t, reports[0].Suspicious)
}

func TestDryRunFlagsImplausibleValues(t *testing.T) {
	src := newFakeSource()
	src.add("t", srcRow(uint64(time.Now().UnixMilli()), 1))
	src.values["t"] = [2]float64{0, 5e12}

	reports, err := DryRun(context.Background(), src, []Job{
		{Metric: "m", Table: "t"},
	}, CheckOptions{CheckValues: true})
	require.NoError(t, err)
	require.NotEmpty(t, reports[0].Suspicious)
}

func TestDryRunStatsFailure(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("table gone")
	src.statsErr["t"] = boom

	_, err := DryRun(context.Background(), src, []Job{{Metric: "m", Table: "t"}}, CheckOptions{})
	require.ErrorIs(t, err, boom)
}
