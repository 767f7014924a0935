package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"auralis/internal/config"
	"auralis/internal/control"
	"auralis/internal/fpcache"
	"auralis/internal/pcm"
	"auralis/internal/presetcache"
	"auralis/internal/trackid"
)

// runProfile loads a track just far enough to derive its fingerprint
// and Adaptive target, then prints the resulting ContentProfile without
// mastering or writing any output audio.
func runProfile(cfg config.Config, inputPath string, jsonOut bool) {
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
	if err := plane.Load(ctx, sessionID, id); err != nil {
		color.Red("load failed: %v", err)
		os.Exit(1)
	}

	profile, err := plane.ContentProfile(sessionID)
	if err != nil {
		color.Red("content_profile failed: %v", err)
		os.Exit(1)
	}

	raw, err := json.Marshal(struct {
		Preset        string      `json:"preset"`
		Warning       bool        `json:"warning"`
		Fingerprint   interface{} `json:"fingerprint"`
		AppliedTarget interface{} `json:"applied_target"`
	}{
		Preset:        profile.Preset.String(),
		Warning:       profile.Warning,
		Fingerprint:   profile.LastFingerprint,
		AppliedTarget: profile.AppliedTarget,
	})
	if err != nil {
		color.Red("marshal failed: %v", err)
		os.Exit(1)
	}

	if jsonOut {
		os.Stdout.Write(raw)
		os.Stdout.WriteString("\n")
		return
	}

	color.Cyan("profile for %s", inputPath)
	os.Stdout.WriteString(gjson.Get(string(raw), "@pretty").String())
	os.Stdout.WriteString("\n")
}
