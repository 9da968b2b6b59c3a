// Package ingest reads per-spacecraft formatted text archives (plasma,
// magnetic field, orbit) and merges them into series.Records.
//
// Archive layout is one whitespace-separated table per instrument with a
// header row; the Time column uses the 2006/01/02T15:04:05 layout. Rows
// that fail to parse are skipped with a warning rather than aborting the
// load, since single corrupt lines are routine in these archives.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/helioswarm/shockfront/internal/geometry"
	"github.com/helioswarm/shockfront/internal/series"
)

// timeLayout is the archive timestamp format.
const timeLayout = "2006/01/02T15:04:05"

// earthRadiusKm converts orbit archives recorded in Earth radii.
const earthRadiusKm = 6371.0

// physical range accepted for plasma quantities; everything outside is a
// flagged or fill value.
const (
	plasmaLo = 0.0
	plasmaHi = 8000.0
	magLo    = -1000.0
	magHi    = 1000.0
)

// CraftSpec describes how one spacecraft's archives are read.
type CraftSpec struct {
	Name string
	// HasMag is false for craft without a usable magnetometer (SOHO CELIAS).
	HasMag bool
	// PosInEarthRadii rescales orbit coordinates to km (THEMIS archives).
	PosInEarthRadii bool
	// FlipGSM negates By/Bz for archives recorded in GSM rather than GSE.
	FlipGSM bool
	// TLE optionally names a TLE file used as the position source when the
	// orbit archive is absent (Earth-orbiting target craft).
	TLE string
}

// Archive loads spacecraft records from a directory of formatted text files.
type Archive struct {
	Dir    string
	PlsFmt string // e.g. "%s_pls_formatted.txt", lower-cased craft name
	MagFmt string
	OrbFmt string
	Specs  map[string]CraftSpec
	Logger *slog.Logger

	// PositionSource, when set, supplies positions for craft with a TLE
	// spec and no orbit archive.
	PositionSource func(spec CraftSpec, times []time.Time) ([]geometry.Vec3, error)
}

// Reload reads one craft's archives restricted to [start, end]. It
// satisfies the refinement controller's Reloader so the fine DTW pass can
// re-window shifted data.
func (a *Archive) Reload(ctx context.Context, craft string, start, end time.Time) (*series.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, ok := a.Specs[craft]
	if !ok {
		return nil, fmt.Errorf("ingest: unknown spacecraft %q", craft)
	}

	pls, err := a.readTable(spec, a.PlsFmt, []series.Channel{series.Speed, series.Np, series.Vth})
	if err != nil {
		return nil, fmt.Errorf("reading plasma archive for %s: %w", craft, err)
	}

	tables := []*table{pls}
	if spec.HasMag {
		mag, err := a.readTable(spec, a.MagFmt, []series.Channel{series.Bx, series.By, series.Bz})
		if err != nil {
			return nil, fmt.Errorf("reading mag archive for %s: %w", craft, err)
		}
		if spec.FlipGSM {
			negate(mag.cols[series.By])
			negate(mag.cols[series.Bz])
		}
		tables = append(tables, mag)
	}

	orb, err := a.readOrbit(spec)
	if err != nil {
		return nil, fmt.Errorf("reading orbit archive for %s: %w", craft, err)
	}
	if orb != nil {
		tables = append(tables, orb)
	}

	rec := merge(craft, tables)
	rec = rec.Window(start, end)

	if orb == nil && spec.TLE != "" && a.PositionSource != nil {
		pos, err := a.PositionSource(spec, rec.Times)
		if err != nil {
			return nil, fmt.Errorf("propagating TLE positions for %s: %w", craft, err)
		}
		rec.Pos = pos
	}

	rec.CleanRange(plasmaLo, plasmaHi, series.PlasmaChannels...)
	rec.CleanRange(magLo, magHi, series.Bx, series.By, series.Bz)
	rec.DeriveBt()
	rec.InterpolatePositions()
	return rec, nil
}

// table is one instrument file: a timeline plus value or position columns.
type table struct {
	times []time.Time
	cols  map[series.Channel][]float64
	pos   []geometry.Vec3
}

func (a *Archive) readTable(spec CraftSpec, format string, channels []series.Channel) (*table, error) {
	path := filepath.Join(a.Dir, fmt.Sprintf(format, strings.ToLower(spec.Name)))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseTable(f, channels, a.Logger)
}

// readOrbit returns nil without error when the orbit archive is absent and
// the craft has a TLE fallback.
func (a *Archive) readOrbit(spec CraftSpec) (*table, error) {
	path := filepath.Join(a.Dir, fmt.Sprintf(a.OrbFmt, strings.ToLower(spec.Name)))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && spec.TLE != "" {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	t, err := parseTable(f, []series.Channel{"GSEx", "GSEy", "GSEz"}, a.Logger)
	if err != nil {
		return nil, err
	}

	scale := 1.0
	if spec.PosInEarthRadii {
		scale = earthRadiusKm
	}
	t.pos = make([]geometry.Vec3, len(t.times))
	for i := range t.times {
		t.pos[i] = geometry.Vec3{
			X: t.cols["GSEx"][i] * scale,
			Y: t.cols["GSEy"][i] * scale,
			Z: t.cols["GSEz"][i] * scale,
		}
	}
	t.cols = nil
	return t, nil
}

// parseTable reads a whitespace-separated table with a header row. Columns
// are matched by header name; requested channels missing from the header
// are an error, rows with unparseable fields are skipped with a warning.
func parseTable(r io.Reader, channels []series.Channel, logger *slog.Logger) (*table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		return nil, fmt.Errorf("empty archive file")
	}
	header := strings.Fields(scanner.Text())

	timeCol := -1
	colIdx := make(map[series.Channel]int, len(channels))
	for i, name := range header {
		if name == "Time" {
			timeCol = i
			continue
		}
		for _, ch := range channels {
			if name == string(ch) {
				colIdx[ch] = i
			}
		}
	}
	if timeCol < 0 {
		return nil, fmt.Errorf("archive has no Time column")
	}
	for _, ch := range channels {
		if _, ok := colIdx[ch]; !ok {
			return nil, fmt.Errorf("archive has no %s column", ch)
		}
	}

	t := &table{cols: make(map[series.Channel][]float64, len(channels))}
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) <= timeCol {
			logger.Warn("skipping short archive row", "line", lineNo)
			continue
		}
		ts, err := time.Parse(timeLayout, fields[timeCol])
		if err != nil {
			logger.Warn("skipping row with bad timestamp", "line", lineNo, "value", fields[timeCol])
			continue
		}

		row := make(map[series.Channel]float64, len(channels))
		bad := false
		for ch, idx := range colIdx {
			if idx >= len(fields) {
				row[ch] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(fields[idx], 64)
			if err != nil {
				logger.Warn("skipping row with bad value", "line", lineNo, "column", string(ch), "value", fields[idx])
				bad = true
				break
			}
			row[ch] = v
		}
		if bad {
			continue
		}
		t.times = append(t.times, ts)
		for _, ch := range channels {
			t.cols[ch] = append(t.cols[ch], row[ch])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return t, nil
}

// merge outer-joins instrument tables on their union timeline. A timestamp
// present in several tables yields one sample carrying each table's
// channels; channels not observed at a timestamp stay NaN, as do position
// slots, which series.InterpolatePositions fills later.
func merge(craft string, tables []*table) *series.Record {
	slot := make(map[int64]int)
	var times []time.Time
	hasPos := false
	for _, t := range tables {
		if t.pos != nil {
			hasPos = true
		}
		for _, ts := range t.times {
			key := ts.UnixNano()
			if _, ok := slot[key]; !ok {
				slot[key] = len(times)
				times = append(times, ts)
			}
		}
	}
	n := len(times)

	values := make(map[series.Channel][]float64)
	for _, t := range tables {
		for ch := range t.cols {
			if _, ok := values[ch]; !ok {
				vals := make([]float64, n)
				for i := range vals {
					vals[i] = math.NaN()
				}
				values[ch] = vals
			}
		}
	}
	var pos []geometry.Vec3
	if hasPos {
		pos = make([]geometry.Vec3, n)
		nan := math.NaN()
		for i := range pos {
			pos[i] = geometry.Vec3{X: nan, Y: nan, Z: nan}
		}
	}

	for _, t := range tables {
		for i, ts := range t.times {
			k := slot[ts.UnixNano()]
			for ch, vals := range t.cols {
				values[ch][k] = vals[i]
			}
			if t.pos != nil {
				pos[k] = t.pos[i]
			}
		}
	}

	// series.New sorts the union timeline; duplicates were already merged.
	return series.New(craft, times, values, pos)
}

func negate(vals []float64) {
	for i := range vals {
		vals[i] = -vals[i]
	}
}
