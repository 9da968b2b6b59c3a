package align

import (
	"errors"
	"testing"
	"time"

	"github.com/helioswarm/shockfront/internal/dtw"
	"github.com/helioswarm/shockfront/internal/series"
)

func minuteTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Minute)
	}
	return out
}

// TestOffsetsDiagonal verifies a diagonal path between shifted timelines
// yields a constant offset.
func TestOffsetsDiagonal(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	ref := minuteTimes(start, 5)
	comp := minuteTimes(start.Add(7*time.Minute), 5)

	path := dtw.Path{{I: 0, J: 0}, {I: 1, J: 1}, {I: 2, J: 2}, {I: 3, J: 3}, {I: 4, J: 4}}
	offsets, err := Offsets(ref, comp, path)
	if err != nil {
		t.Fatalf("Offsets failed: %v", err)
	}
	if len(offsets) != 5 {
		t.Fatalf("got %d offsets, want 5", len(offsets))
	}
	for _, os := range offsets {
		if os.Offset != 7*time.Minute {
			t.Errorf("offset at ref index %d = %v, want 7m", os.RefIndex, os.Offset)
		}
	}
}

// TestOffsetsKeepFirst verifies that when several comparison samples map to
// one reference index, only the first match is kept.
func TestOffsetsKeepFirst(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	ref := minuteTimes(start, 3)
	comp := minuteTimes(start, 4)

	path := dtw.Path{{I: 0, J: 0}, {I: 1, J: 1}, {I: 1, J: 2}, {I: 2, J: 3}}
	offsets, err := Offsets(ref, comp, path)
	if err != nil {
		t.Fatalf("Offsets failed: %v", err)
	}
	if len(offsets) != 3 {
		t.Fatalf("got %d offsets, want 3", len(offsets))
	}
	if offsets[1].CompIndex != 1 {
		t.Errorf("ref index 1 matched comp index %d, want 1 (first match)", offsets[1].CompIndex)
	}
}

// TestOffsetsPathMismatch verifies out-of-range path indices are rejected.
func TestOffsetsPathMismatch(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	ref := minuteTimes(start, 2)
	comp := minuteTimes(start, 2)

	_, err := Offsets(ref, comp, dtw.Path{{I: 0, J: 0}, {I: 1, J: 5}})
	if !errors.Is(err, ErrPathMismatch) {
		t.Errorf("Offsets error = %v, want ErrPathMismatch", err)
	}
}

// TestReindex verifies re-keyed samples land on the reference clock with
// their original values.
func TestReindex(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	compTimes := minuteTimes(start.Add(10*time.Minute), 3)
	comp := series.New("ACE", compTimes, map[series.Channel][]float64{
		series.Speed: {400, 500, 600},
	}, nil)

	offsets := OffsetSeries{
		{RefIndex: 0, RefTime: start, CompIndex: 0, Offset: 10 * time.Minute},
		{RefIndex: 1, RefTime: start.Add(time.Minute), CompIndex: 1, Offset: 10 * time.Minute},
		{RefIndex: 2, RefTime: start.Add(2 * time.Minute), CompIndex: 2, Offset: 10 * time.Minute},
	}

	re := Reindex(comp, offsets)
	if re.Len() != 3 {
		t.Fatalf("reindexed length = %d, want 3", re.Len())
	}
	for i, want := range []time.Time{start, start.Add(time.Minute), start.Add(2 * time.Minute)} {
		if !re.Times[i].Equal(want) {
			t.Errorf("reindexed time[%d] = %v, want %v", i, re.Times[i], want)
		}
	}
	for i, want := range []float64{400, 500, 600} {
		if re.Values[series.Speed][i] != want {
			t.Errorf("reindexed speed[%d] = %v, want %v", i, re.Values[series.Speed][i], want)
		}
	}
}

// TestBulkMedian verifies the central sub-window median and the
// insufficient-data guard.
func TestBulkMedian(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	center := start.Add(30 * time.Minute)

	var s OffsetSeries
	for i := 0; i < 61; i++ {
		off := 5 * time.Minute
		// Outliers far from center should not affect the median.
		if i < 5 || i > 55 {
			off = time.Hour
		}
		s = append(s, OffsetSample{
			RefIndex: i,
			RefTime:  start.Add(time.Duration(i) * time.Minute),
			Offset:   off,
		})
	}

	bulk, err := s.Bulk(center, 15*time.Minute, 5)
	if err != nil {
		t.Fatalf("Bulk failed: %v", err)
	}
	if bulk != 5*time.Minute {
		t.Errorf("bulk = %v, want 5m", bulk)
	}

	_, err = s.Bulk(center, 15*time.Minute, 1000)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Bulk error = %v, want ErrInsufficientData", err)
	}
}

// TestOffsetSeriesAt verifies nearest lookup including the past-the-end case.
func TestOffsetSeriesAt(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s := OffsetSeries{
		{RefIndex: 0, RefTime: start, Offset: time.Minute},
		{RefIndex: 1, RefTime: start.Add(10 * time.Minute), Offset: 2 * time.Minute},
	}

	if os, ok := s.At(start.Add(2 * time.Minute)); !ok || os.RefIndex != 0 {
		t.Errorf("At near first sample = %+v ok=%v, want RefIndex 0", os, ok)
	}
	if os, ok := s.At(start.Add(9 * time.Minute)); !ok || os.RefIndex != 1 {
		t.Errorf("At near second sample = %+v ok=%v, want RefIndex 1", os, ok)
	}
	if os, ok := s.At(start.Add(time.Hour)); !ok || os.RefIndex != 1 {
		t.Errorf("At beyond series = %+v ok=%v, want last sample", os, ok)
	}
	if _, ok := (OffsetSeries{}).At(start); ok {
		t.Error("At on empty series reported ok")
	}
}
