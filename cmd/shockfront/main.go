package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/helioswarm/shockfront/internal/align"
	"github.com/helioswarm/shockfront/internal/front"
	"github.com/helioswarm/shockfront/internal/geometry"
	"github.com/helioswarm/shockfront/internal/health"
	"github.com/helioswarm/shockfront/internal/ingest"
	"github.com/helioswarm/shockfront/internal/metrics"
	"github.com/helioswarm/shockfront/internal/session"
	"github.com/helioswarm/shockfront/internal/store"
	"github.com/helioswarm/shockfront/internal/tle"
)

const windowLayout = "2006-01-02T15:04:05"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	runCfg, err := loadRunConfig(logger)
	if err != nil {
		logger.Error("invalid run configuration", "error", err)
		os.Exit(1)
	}

	cfg := session.DefaultConfig(runCfg.Reference, runCfg.Craft, runCfg.EarthCraft, runCfg.Start, runCfg.End)
	cfg.Events = runCfg.Events
	cfg.Align = loadAlignConfig(logger)
	cfg.Front = loadFrontConfig(logger)

	archive := newArchive(runCfg, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state := health.NewState()
	if runCfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", state.Healthz)
		srv := &http.Server{Addr: runCfg.HTTPAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", runCfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sess := session.New(cfg, archive, logger).WithHealth(state)

	started := time.Now()
	results, err := sess.Run(ctx)
	if err != nil {
		logger.Error("analysis run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("analysis run complete",
		"duration", time.Since(started).Round(time.Second).String(),
		"events", len(results.Events),
	)

	if err := archiveResults(runCfg, cfg, results, logger); err != nil {
		logger.Error("archiving results", "error", err)
		os.Exit(1)
	}
}

// runConfig is the top-level run description read from the environment.
type runConfig struct {
	DataDir    string
	TLEDir     string
	DBPath     string
	HTTPAddr   string
	Reference  string
	Craft      []string
	EarthCraft []string
	Start      time.Time
	End        time.Time
	Events     int
}

func loadRunConfig(logger *slog.Logger) (runConfig, error) {
	cfg := runConfig{
		DataDir:   "./archive",
		DBPath:    "shockfront.db",
		Reference: "Wind",
		Craft:     []string{"DSCOVR", "ACE", "SOHO"},
		Events:    1,
	}

	if v := os.Getenv("SHOCKFRONT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SHOCKFRONT_TLE_DIR"); v != "" {
		cfg.TLEDir = v
	}
	if v := os.Getenv("SHOCKFRONT_DB"); v != "" {
		cfg.DBPath = v
	}
	cfg.HTTPAddr = os.Getenv("SHOCKFRONT_HTTP_ADDR")

	if v := os.Getenv("SHOCKFRONT_REFERENCE"); v != "" {
		cfg.Reference = v
	}
	if v := os.Getenv("SHOCKFRONT_CRAFT"); v != "" {
		cfg.Craft = splitList(v)
	}
	if v := os.Getenv("SHOCKFRONT_EARTH_CRAFT"); v != "" {
		cfg.EarthCraft = splitList(v)
	}

	startStr := os.Getenv("SHOCKFRONT_START")
	endStr := os.Getenv("SHOCKFRONT_END")
	if startStr == "" || endStr == "" {
		return cfg, errors.New("SHOCKFRONT_START and SHOCKFRONT_END are required (format 2006-01-02T15:04:05, UTC)")
	}
	start, err := time.Parse(windowLayout, startStr)
	if err != nil {
		return cfg, errors.New("SHOCKFRONT_START must use the 2006-01-02T15:04:05 layout")
	}
	end, err := time.Parse(windowLayout, endStr)
	if err != nil {
		return cfg, errors.New("SHOCKFRONT_END must use the 2006-01-02T15:04:05 layout")
	}
	if !end.After(start) {
		return cfg, errors.New("SHOCKFRONT_END must be after SHOCKFRONT_START")
	}
	cfg.Start, cfg.End = start.UTC(), end.UTC()

	if v := os.Getenv("SHOCKFRONT_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SHOCKFRONT_EVENTS value, using default", "value", v, "default", cfg.Events)
		} else {
			cfg.Events = n
		}
	}

	return cfg, nil
}

func loadAlignConfig(logger *slog.Logger) align.Config {
	cfg := align.DefaultConfig()

	if v := os.Getenv("SHOCKFRONT_COARSE_MINUTES"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid SHOCKFRONT_COARSE_MINUTES value, using default", "value", v, "default", cfg.CoarseMinutes)
		} else {
			cfg.CoarseMinutes = f
		}
	}
	if v := os.Getenv("SHOCKFRONT_FINE_MINUTES"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid SHOCKFRONT_FINE_MINUTES value, using default", "value", v, "default", cfg.FineMinutes)
		} else {
			cfg.FineMinutes = f
		}
	}
	if v := os.Getenv("SHOCKFRONT_SPEED_PENALTY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			logger.Warn("invalid SHOCKFRONT_SPEED_PENALTY value, using default", "value", v, "default", cfg.SpeedPenalty)
		} else {
			cfg.SpeedPenalty = f
		}
	}
	if v := os.Getenv("SHOCKFRONT_MAG_PENALTY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			logger.Warn("invalid SHOCKFRONT_MAG_PENALTY value, using default", "value", v, "default", cfg.MagPenalty)
		} else {
			cfg.MagPenalty = f
		}
	}

	return cfg
}

func loadFrontConfig(logger *slog.Logger) front.Config {
	cfg := front.DefaultConfig()

	if v := os.Getenv("SHOCKFRONT_ANGLE_CUTOFF"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 180 {
			logger.Warn("invalid SHOCKFRONT_ANGLE_CUTOFF value, using default", "value", v, "default", cfg.AngleCutoffDeg)
		} else {
			cfg.AngleCutoffDeg = f
		}
	}

	return cfg
}

// newArchive wires the text archive reader with the built-in spacecraft
// table and, when a TLE directory is configured, the SGP4 position source
// for Earth-orbiting targets.
func newArchive(runCfg runConfig, logger *slog.Logger) *ingest.Archive {
	archive := &ingest.Archive{
		Dir:    runCfg.DataDir,
		PlsFmt: "%s_pls_formatted.txt",
		MagFmt: "%s_mag_formatted.txt",
		OrbFmt: "%s_orb_formatted.txt",
		Specs:  defaultSpecs(),
		Logger: logger,
	}
	if runCfg.TLEDir != "" {
		src := &tle.Source{Dir: runCfg.TLEDir, Logger: logger}
		archive.PositionSource = func(spec ingest.CraftSpec, times []time.Time) ([]geometry.Vec3, error) {
			return src.Positions(spec.TLE, times)
		}
	}
	return archive
}

// defaultSpecs covers the operational L1 fleet plus the THEMIS targets.
func defaultSpecs() map[string]ingest.CraftSpec {
	return map[string]ingest.CraftSpec{
		"Wind":   {Name: "Wind", HasMag: true},
		"DSCOVR": {Name: "DSCOVR", HasMag: true},
		"ACE":    {Name: "ACE", HasMag: true},
		// SOHO CELIAS has no usable magnetometer; plasma only.
		"SOHO":     {Name: "SOHO"},
		"THEMIS_A": {Name: "THEMIS_A", HasMag: true, PosInEarthRadii: true, FlipGSM: true, TLE: "themis_a.tle"},
		"THEMIS_B": {Name: "THEMIS_B", HasMag: true, PosInEarthRadii: true, FlipGSM: true, TLE: "themis_b.tle"},
		"THEMIS_C": {Name: "THEMIS_C", HasMag: true, PosInEarthRadii: true, FlipGSM: true, TLE: "themis_c.tle"},
	}
}

func archiveResults(runCfg runConfig, cfg session.Config, results *session.Results, logger *slog.Logger) error {
	st, err := store.Open(runCfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.BeginRun(cfg.Reference, cfg.Start, cfg.End)
	if err != nil {
		return err
	}
	for craft, offsets := range results.Offsets {
		if err := st.SaveOffsets(runID, craft, offsets); err != nil {
			return err
		}
	}
	if err := st.SaveEvents(runID, results.Events); err != nil {
		return err
	}

	logger.Info("results archived", "db", runCfg.DBPath, "run_id", runID,
		"offset_craft", len(results.Offsets), "events", len(results.Events))
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
