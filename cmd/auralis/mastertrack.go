package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"auralis/internal/config"
	"auralis/internal/control"
	"auralis/internal/fpcache"
	"auralis/internal/pcm"
	"auralis/internal/presetcache"
	"auralis/internal/target"
	"auralis/internal/trackid"
)

func parsePreset(name string) target.Preset {
	switch strings.ToLower(name) {
	case "gentle":
		return target.Gentle
	case "warm":
		return target.Warm
	case "bright":
		return target.Bright
	case "punchy":
		return target.Punchy
	default:
		return target.Adaptive
	}
}

// openFingerprintCache opens the on-disk bbolt-backed Fingerprint Cache
// under the user's cache directory, degrading to no cache (every run
// recomputes) if the directory or file can't be opened.
func openFingerprintCache(cfg config.Config) (*fpcache.BoltStore, func()) {
	cacheDir, err := os.UserCacheDir()
	if err != nil || cacheDir == "" {
		cacheDir = "."
	}
	cachePath := filepath.Join(cacheDir, "auralis", "fingerprints.db")
	_ = os.MkdirAll(filepath.Dir(cachePath), 0o755)

	store, err := fpcache.OpenBoltStore(cachePath, cfg.FingerprintCacheMaxBytes)
	if err != nil {
		color.Yellow("warning: fingerprint cache unavailable (%v), continuing without it", err)
		return nil, func() {}
	}
	return store, func() { store.Close() }
}

func runMaster(cfg config.Config, inputPath, outPath, presetName string, intensity float64) {
	if outPath == "" {
		ext := filepath.Ext(inputPath)
		outPath = strings.TrimSuffix(inputPath, ext) + ".mastered.wav"
	}

	id, err := trackid.FromFile(inputPath)
	if err != nil {
		color.Red("track id error: %v", err)
		os.Exit(1)
	}

	source, err := pcm.Open(inputPath)
	if err != nil {
		color.Red("decode error: %v", err)
		os.Exit(1)
	}
	defer source.Close()

	fpStore, closeCache := openFingerprintCache(cfg)
	defer closeCache()

	presets := presetcache.New(cfg.PresetCacheMaxEntries)
	var storeArg fpcache.Store
	if fpStore != nil {
		storeArg = fpStore
	}
	plane := control.New(cfg, storeArg, presets, func(trackid.ID) (pcm.Source, error) {
		return source, nil
	})

	ctx := context.Background()
	sessionID := plane.CreateSession()

	color.Cyan("loading %s", inputPath)
	if err := plane.Load(ctx, sessionID, id); err != nil {
		color.Red("load failed: %v", err)
		os.Exit(1)
	}

	if err := plane.SetPreset(ctx, sessionID, parsePreset(presetName)); err != nil {
		color.Red("set_preset failed: %v", err)
		os.Exit(1)
	}
	if err := plane.SetIntensity(sessionID, float32(intensity)); err != nil {
		color.Red("set_intensity failed: %v", err)
		os.Exit(1)
	}

	var frames []pcm.Frame
	chunkCount := 0
	for {
		chunk, err := plane.PullNextChunk(ctx, sessionID)
		if err != nil {
			color.Red("pull_next_chunk failed: %v", err)
			os.Exit(1)
		}
		if chunk == nil {
			break
		}
		chunkCount++
		frames = append(frames, chunk.PCM.Frames...)
		color.Green("chunk %d: peak=%.1fdBFS rms=%.1fdBFS frames=%d", chunk.Index, chunk.PeakDbfs, chunk.RMSDbfs, chunk.PCM.Len())
	}

	if err := pcm.WriteWAV(outPath, frames, source.SampleRate()); err != nil {
		color.Red("write failed: %v", err)
		os.Exit(1)
	}

	color.Cyan("wrote %s (%d chunks)", outPath, chunkCount)
}
