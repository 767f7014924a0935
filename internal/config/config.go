// Package config loads the structural configuration options: chunk/
// crossfade/context durations, cache bounds, worker counts, and
// true-peak oversampling. Options come from defaults plus an optional
// JSON override file read with jsonparser. A .env file, when present, is
// loaded with godotenv into the process environment only; no option is
// read from the environment.
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/joho/godotenv"

	"auralis/internal/xerr"
)

// Config holds every structural tunable for a mastering session.
type Config struct {
	ChunkDurationSeconds     float64
	CrossfadeDurationSeconds float64
	ContextLeadSeconds       float64
	ContextTrailSeconds      float64
	FingerprintCacheMaxBytes int64
	PresetCacheMaxEntries    int
	DSPWorkerCount           int
	LookaheadQueueSize       int
	TruePeakOversample       int
}

// Default returns the documented defaults.
func Default() Config {
	workers := runtime.NumCPU()
	if workers > 3 {
		workers = 3
	}
	if workers < 1 {
		workers = 1
	}
	return Config{
		ChunkDurationSeconds:     30.0,
		CrossfadeDurationSeconds: 3.0,
		ContextLeadSeconds:       2.0,
		ContextTrailSeconds:      0.5,
		FingerprintCacheMaxBytes: 2 << 30,
		PresetCacheMaxEntries:    512,
		DSPWorkerCount:           workers,
		LookaheadQueueSize:       workers,
		TruePeakOversample:       4,
	}
}

// Validate checks the configuration's invariants (crossfade must be
// non-negative and strictly less than half the chunk duration, all
// counts positive).
func (c Config) Validate() error {
	if c.CrossfadeDurationSeconds < 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "crossfade_duration_seconds must be >= 0, got %f", c.CrossfadeDurationSeconds)
	}
	if c.ChunkDurationSeconds <= 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "chunk_duration_seconds must be > 0, got %f", c.ChunkDurationSeconds)
	}
	if c.CrossfadeDurationSeconds >= c.ChunkDurationSeconds/2 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "crossfade_duration_seconds (%f) must be < chunk_duration_seconds/2 (%f)", c.CrossfadeDurationSeconds, c.ChunkDurationSeconds/2)
	}
	if c.ContextLeadSeconds < 0 || c.ContextTrailSeconds < 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "context durations must be >= 0")
	}
	if c.FingerprintCacheMaxBytes <= 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "fingerprint_cache_max_bytes must be > 0")
	}
	if c.PresetCacheMaxEntries <= 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "preset_cache_max_entries must be > 0")
	}
	if c.DSPWorkerCount <= 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "dsp_worker_count must be > 0")
	}
	if c.LookaheadQueueSize <= 0 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "lookahead_queue_size must be > 0")
	}
	if c.TruePeakOversample < 1 {
		return xerr.Newf(xerr.KindInput, "config.Validate", "true_peak_oversample must be >= 1")
	}
	return nil
}

// Load reads envPath (best-effort; a missing file is not an error) then
// overlays jsonPath if present, returning Default() values for anything
// unset.
func Load(envPath, jsonPath string) (Config, error) {
	_ = godotenv.Overload(envPath)

	cfg := Default()

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, xerr.New(xerr.KindInput, "config.Load", err)
	}

	applyFloat(data, "chunk_duration_seconds", &cfg.ChunkDurationSeconds)
	applyFloat(data, "crossfade_duration_seconds", &cfg.CrossfadeDurationSeconds)
	applyFloat(data, "context_lead_seconds", &cfg.ContextLeadSeconds)
	applyFloat(data, "context_trail_seconds", &cfg.ContextTrailSeconds)
	applyInt64(data, "fingerprint_cache_max_bytes", &cfg.FingerprintCacheMaxBytes)
	applyInt(data, "preset_cache_max_entries", &cfg.PresetCacheMaxEntries)
	applyInt(data, "dsp_worker_count", &cfg.DSPWorkerCount)
	applyInt(data, "lookahead_queue_size", &cfg.LookaheadQueueSize)
	applyInt(data, "true_peak_oversample", &cfg.TruePeakOversample)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFloat(data []byte, key string, dst *float64) {
	if v, err := jsonparser.GetFloat(data, key); err == nil {
		*dst = v
	}
}

func applyInt(data []byte, key string, dst *int) {
	if v, err := jsonparser.GetInt(data, key); err == nil {
		*dst = int(v)
	}
}

func applyInt64(data []byte, key string, dst *int64) {
	if v, err := jsonparser.GetInt(data, key); err == nil {
		*dst = v
	}
}

// EnvOrDefault reads an environment variable as an int, falling back to
// def.
func EnvOrDefault(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
