// Package tle supplies GSE positions for Earth-orbiting spacecraft from
// two-line element sets, for target craft whose orbit archive is missing or
// has no coverage in the analysis window.
package tle

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/helioswarm/shockfront/internal/geometry"
)

// Entry is one satellite's two-line element set.
type Entry struct {
	Name  string
	Line1 string
	Line2 string
}

// ParseFile reads 3-line NORAD TLE format. Malformed entries are skipped
// with a warning.
func ParseFile(path string, logger *slog.Logger) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i+2 < len(lines); {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]
		if err := validateLines(line1, line2); err != nil {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name, "error", err)
			i++
			continue
		}
		entries = append(entries, Entry{
			Name:  strings.TrimSpace(name),
			Line1: line1,
			Line2: line2,
		})
		i += 3
	}
	return entries, nil
}

// validateLines performs basic format validation before handing lines to
// go-satellite, which log.Fatals on garbage input.
func validateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", line2[0])
	}
	return nil
}

// Source propagates TLEs to GSE positions. Positions use the first entry in
// the named file; THEMIS-class archives carry one craft per file.
type Source struct {
	Dir    string
	Logger *slog.Logger
}

// Positions returns the craft's GSE position (km) at each of the given
// times. SGP4 output is treated as GEI and rotated to GSE per Hapgood
// (1992); at THEMIS orbital distances the approximation error is far below
// the solar-wind timing tolerances involved.
func (s *Source) Positions(file string, times []time.Time) ([]geometry.Vec3, error) {
	entries, err := ParseFile(filepath.Join(s.Dir, file), s.Logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("tle: no valid entries in %s", file)
	}
	ent := entries[0]

	sat := satellite.TLEToSat(ent.Line1, ent.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("tle: sgp4 init failed for %s: code=%d %s", ent.Name, sat.Error, sat.ErrorStr)
	}

	out := make([]geometry.Vec3, len(times))
	for i, t := range times {
		t = t.UTC()
		pos, _ := satellite.Propagate(sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
		gei := geometry.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
		if !gei.IsFinite() {
			return nil, fmt.Errorf("tle: propagation of %s produced non-finite position at %s", ent.Name, t)
		}
		out[i] = geiToGSE(gei, t)
	}
	return out, nil
}
