package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"

	"auralis/internal/config"
	"auralis/internal/control"
	"auralis/internal/fpcache"
	"auralis/internal/pcm"
	"auralis/internal/presetcache"
	"auralis/internal/trackid"
)

// audioExtensions bounds cache warm to the single container format this
// module decodes; anything else is skipped rather than reported as an
// error.
var audioExtensions = map[string]bool{".wav": true}

// warmOne decodes path, derives its track id, and loads it through a
// throwaway Control Plane session so its fingerprint lands in fpStore.
func warmOne(cfg config.Config, fpStore fpcache.Store, presets *presetcache.Cache, path string) error {
	source, err := pcm.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	id, err := trackid.FromFile(path)
	if err != nil {
		return err
	}

	plane := control.New(cfg, fpStore, presets, func(trackid.ID) (pcm.Source, error) {
		return source, nil
	})
	sessionID := plane.CreateSession()
	return plane.Load(context.Background(), sessionID, id)
}

// runCacheWarm walks dir concurrently over a bounded worker pool,
// pre-populating the Fingerprint Cache for every audio file it finds,
// then prints the cache's resulting Stats().
func runCacheWarm(cfg config.Config, dir string) {
	var filePaths []string
	err := filepath.Walk(dir, func(fp string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if audioExtensions[strings.ToLower(filepath.Ext(fp))] {
			filePaths = append(filePaths, fp)
		}
		return nil
	})
	if err != nil {
		color.Red("walk failed: %v", err)
		os.Exit(1)
	}

	numFiles := len(filePaths)
	if numFiles == 0 {
		color.Yellow("no audio files found under %s", dir)
		return
	}

	fpStore, closeCache := openFingerprintCache(cfg)
	defer closeCache()
	if fpStore == nil {
		color.Red("fingerprint cache unavailable, nothing to warm")
		os.Exit(1)
	}

	presets := presetcache.New(cfg.PresetCacheMaxEntries)

	maxWorkers := runtime.NumCPU() / 2
	if maxWorkers > numFiles {
		maxWorkers = numFiles
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	jobs := make(chan string, numFiles)
	results := make(chan error, numFiles)

	for w := 0; w < maxWorkers; w++ {
		go func() {
			for fp := range jobs {
				results <- warmOne(cfg, fpStore, presets, fp)
			}
		}()
	}
	for _, fp := range filePaths {
		jobs <- fp
	}
	close(jobs)

	successCount, errorCount := 0, 0
	for i := 0; i < numFiles; i++ {
		if err := <-results; err != nil {
			color.Red("error: %v", err)
			errorCount++
			continue
		}
		successCount++
	}
	color.Cyan("warmed %d files: %d successful, %d failed", numFiles, successCount, errorCount)

	entryCount, bytesUsed, capBytes, err := fpStore.Stats(context.Background())
	if err != nil {
		color.Yellow("warning: could not read cache stats: %v", err)
		return
	}
	color.Green("cache: %d entries, %d/%d bytes used", entryCount, bytesUsed, capBytes)
}
