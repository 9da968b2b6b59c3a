package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/helioswarm/shockfront/internal/series"
)

// loadResult is the output of one spacecraft load.
type loadResult struct {
	craft string
	rec   *series.Record
	err   error
}

// LoadAll reads every named spacecraft concurrently, one worker per craft.
// The workers touch disjoint data, so the only synchronization is the join
// before results are assembled. The first error aborts the whole load: a
// run without all of its triangulation craft cannot proceed.
func (a *Archive) LoadAll(ctx context.Context, craft []string, start, end time.Time, earthCraft []string, earthPad time.Duration) (map[string]*series.Record, error) {
	type window struct {
		start, end time.Time
	}
	windows := make(map[string]window, len(craft)+len(earthCraft))
	for _, name := range craft {
		windows[name] = window{start: start, end: end}
	}
	// Near-Earth targets see the front roughly an hour after L1; their
	// windows shift forward so the comparable features are in range.
	for _, name := range earthCraft {
		windows[name] = window{start: start.Add(earthPad), end: end.Add(earthPad)}
	}

	results := make(chan loadResult, len(windows))
	var wg sync.WaitGroup
	for name, w := range windows {
		wg.Add(1)
		go func(name string, w window) {
			defer wg.Done()
			rec, err := a.Reload(ctx, name, w.start, w.end)
			select {
			case results <- loadResult{craft: name, rec: rec, err: err}:
			case <-ctx.Done():
			}
		}(name, w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]*series.Record, len(windows))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		a.Logger.Info("loaded spacecraft archive",
			"craft", res.craft,
			"samples", res.rec.Len(),
		)
		out[res.craft] = res.rec
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
