// Package target implements the Target Generator (C4): deterministic
// derivation of a MasteringTarget from a Fingerprint and a chosen
// Preset, following two-stage policy (adaptive baseline,
// then preset bias) and its clamping rules.
package target

import (
	"math"

	"auralis/internal/fingerprint"
)

// numEQBands matches the Critical-Band EQ stage's 26-band bank.
const numEQBands = 26

// Preset selects a bias applied on top of the adaptive baseline.
type Preset int

const (
	Adaptive Preset = iota
	Gentle
	Warm
	Bright
	Punchy
)

func (p Preset) String() string {
	switch p {
	case Gentle:
		return "Gentle"
	case Warm:
		return "Warm"
	case Bright:
		return "Bright"
	case Punchy:
		return "Punchy"
	default:
		return "Adaptive"
	}
}

// DetectorMode selects the Adaptive Compressor's envelope-following style.
type DetectorMode int

const (
	DetectorPeak DetectorMode = iota
	DetectorRMS
	DetectorHybrid
)

// MasteringTarget is the deterministic output of this package and the
// input every DSP stage reads its parameters from.
type MasteringTarget struct {
	EQGainsDB        [numEQBands]float64
	TargetLUFS       float64
	CompressorRatio  float64
	CompressorThresh float64
	DetectorMode     DetectorMode
	AttackMs         float64
	ReleaseMs        float64
	MaxTruePeakDB    float64
	SaturationAmount float64
	StereoWidth      float64
}

const (
	eqGainClampDB      = 8.0
	saturationClampMax = 0.5
	limiterCeilingDB   = -0.3
)

// barkBandEdgesHz are the 27 edges bounding the 26 EQ bands, spaced
// logarithmically from 20 Hz to 20 kHz (the Bark band count, not the
// Bark scale's frequency mapping), matching the EQ stage's band centers.
var barkBandEdgesHz = func() [numEQBands + 1]float64 {
	var edges [numEQBands + 1]float64
	logLo, logHi := math.Log(20), math.Log(20000)
	for i := range edges {
		t := float64(i) / float64(numEQBands)
		edges[i] = math.Exp(logLo + t*(logHi-logLo))
	}
	return edges
}()

// Generate derives a MasteringTarget for fp under preset.
// An all-zero fingerprint always yields a safe pass-through target: zero
// EQ, a mild limiter, no saturation.
func Generate(fp fingerprint.Fingerprint, preset Preset) MasteringTarget {
	if isZero(fp) {
		return MasteringTarget{
			MaxTruePeakDB:    limiterCeilingDB,
			CompressorRatio:  1.0,
			CompressorThresh: 0.0,
			DetectorMode:     DetectorPeak,
			AttackMs:         10,
			ReleaseMs:        100,
			StereoWidth:      1.0,
		}
	}

	t := adaptiveBaseline(fp)
	t = applyPreset(t, fp, preset)
	return clampTarget(t)
}

func isZero(fp fingerprint.Fingerprint) bool {
	for _, v := range fp.ToVector() {
		if v != 0 {
			return false
		}
	}
	return true
}

func adaptiveBaseline(fp fingerprint.Fingerprint) MasteringTarget {
	var t MasteringTarget

	referenceCurve := referenceBandEnergies()
	centroidHz := float64(fp.Spectral[0])
	flatness := float64(fp.Spectral[2])
	tiltCorrection := centroidTilt(centroidHz)
	dullnessCompensation := (0.5 - flatness) * 2.0 // brighter when flat, duller boost otherwise

	mappedBands := mapSevenBandsToBark(fp.Frequency)
	for i := 0; i < numEQBands; i++ {
		deviation := (mappedBands[i] - referenceCurve[i]) * 24.0 // scale fractional-energy deviation to dB
		bandCenterFrac := float64(i) / float64(numEQBands-1)
		t.EQGainsDB[i] = deviation + tiltCorrection*(bandCenterFrac-0.5)*2 + dullnessCompensation*(bandCenterFrac)
	}

	lufsEnergy := float64(fp.Dynamics[0])     // integrated LUFS estimate, high = loud/energetic
	crestDb := float64(fp.Dynamics[1])
	highEnergy := lufsEnergy > -14
	lowCrest := crestDb < 8
	highCrest := crestDb >= 12
	lowEnergy := lufsEnergy <= -20

	switch {
	case highEnergy && lowCrest:
		t.TargetLUFS = -11.0
	case lowEnergy && highCrest:
		t.TargetLUFS = -18.0
	default:
		// linear interpolation between the two anchors based on crest factor
		frac := clip01((crestDb - 8) / (12 - 8))
		t.TargetLUFS = -11.0 + frac*(-18.0-(-11.0))
	}

	t.CompressorRatio = 1.5 + crestDb/6.0
	t.CompressorThresh = -24.0 + crestDb*0.5
	t.DetectorMode = DetectorHybrid
	t.AttackMs = 10
	t.ReleaseMs = 120

	t.MaxTruePeakDB = limiterCeilingDB

	harmonicity := float64(fp.Harmonic[1]) // fundamental stability as harmonicity proxy
	t.SaturationAmount = clipRange(harmonicity*0.3, 0, saturationClampMax)

	currentWidth := float64(fp.Stereo[1])
	t.StereoWidth = clipRange(0.9*currentWidth, 0.5, 1.0)

	return t
}

func applyPreset(t MasteringTarget, fp fingerprint.Fingerprint, preset Preset) MasteringTarget {
	switch preset {
	case Gentle:
		for i := range t.EQGainsDB {
			t.EQGainsDB[i] *= 0.5
		}
		t.CompressorRatio = 1.0 + (t.CompressorRatio-1.0)*0.5
		t.TargetLUFS += 0.2
	case Warm:
		applyShelf(&t, 0, 250, 1.5)
		applyShelf(&t, 6000, 20000, -0.5)
		t.SaturationAmount = clipRange(t.SaturationAmount+0.1, 0, saturationClampMax)
	case Bright:
		applyShelf(&t, 6000, 20000, 1.5)
		applyShelf(&t, 250, 2000, -0.5)
	case Punchy:
		t.CompressorThresh -= 4.0
		t.CompressorRatio += 1.5
		t.AttackMs = 3
	case Adaptive:
		// no bias
	}
	return t
}

// applyShelf adds gainDb to every Bark band whose center frequency falls
// within [loHz, hiHz), approximating a shelf/cut filter at the EQ stage.
func applyShelf(t *MasteringTarget, loHz, hiHz, gainDb float64) {
	for i := 0; i < numEQBands; i++ {
		center := math.Sqrt(barkBandEdgesHz[i] * barkBandEdgesHz[i+1])
		if center >= loHz && center < hiHz {
			t.EQGainsDB[i] += gainDb
		}
	}
}

func clampTarget(t MasteringTarget) MasteringTarget {
	for i := range t.EQGainsDB {
		t.EQGainsDB[i] = clipRange(t.EQGainsDB[i], -eqGainClampDB, eqGainClampDB)
	}
	t.SaturationAmount = clipRange(t.SaturationAmount, 0, saturationClampMax)
	return t
}

// centroidTilt maps a spectral centroid to a dB tilt correction: a dark
// mix (low centroid) gets a small positive tilt towards highs, a bright
// mix gets pulled back down.
func centroidTilt(centroidHz float64) float64 {
	const neutralCentroid = 2500.0
	return clipRange((neutralCentroid-centroidHz)/2500.0, -3, 3)
}

// referenceBandEnergies is a flat genre-neutral reference curve: equal
// energy per Bark band.
func referenceBandEnergies() [numEQBands]float64 {
	var ref [numEQBands]float64
	for i := range ref {
		ref[i] = 1.0 / numEQBands
	}
	return ref
}

// mapSevenBandsToBark expands the fingerprint's 7 log-spaced frequency
// bands into the 26 finer Bark bands the EQ stage operates on, by
// nearest-neighbor frequency lookup.
func mapSevenBandsToBark(sevenBands [7]float32) [numEQBands]float64 {
	sevenEdges := sevenBandEdgesHz()
	var out [numEQBands]float64
	for i := 0; i < numEQBands; i++ {
		center := math.Sqrt(barkBandEdgesHz[i] * barkBandEdgesHz[i+1])
		band := 0
		for b := 0; b < 7; b++ {
			if center >= sevenEdges[b] && center < sevenEdges[b+1] {
				band = b
				break
			}
			band = b
		}
		out[i] = float64(sevenBands[band])
	}
	return out
}

func sevenBandEdgesHz() [8]float64 {
	var edges [8]float64
	logLo, logHi := math.Log(20), math.Log(20000)
	for i := range edges {
		t := float64(i) / 7.0
		edges[i] = math.Exp(logLo + t*(logHi-logLo))
	}
	return edges
}

func clip01(v float64) float64 { return clipRange(v, 0, 1) }

func clipRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
