package target

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"auralis/internal/fingerprint"
)

func sampleFingerprint() fingerprint.Fingerprint {
	var fp fingerprint.Fingerprint
	fp.Frequency = [7]float32{0.1, 0.15, 0.2, 0.2, 0.15, 0.1, 0.1}
	fp.Dynamics = [3]float32{-16, 9, 0.4}
	fp.Temporal = [4]float32{120, 2, 0.5, 0.3}
	fp.Spectral = [3]float32{2500, 8000, 0.4}
	fp.Harmonic = [3]float32{0.6, 0.7, 0.5}
	fp.Variation = [3]float32{3, 0.2, 4}
	fp.Stereo = [2]float32{0.8, 0.6}
	return fp
}

func TestZeroFingerprintYieldsPassThrough(t *testing.T) {
	tgt := Generate(fingerprint.Fingerprint{}, Adaptive)
	for _, g := range tgt.EQGainsDB {
		assert.Equal(t, 0.0, g)
	}
	assert.Equal(t, 0.0, tgt.SaturationAmount)
	assert.Equal(t, limiterCeilingDB, tgt.MaxTruePeakDB)
}

func TestGentleIsLouderThanAdaptive(t *testing.T) {
	fp := sampleFingerprint()
	adaptive := Generate(fp, Adaptive)
	gentle := Generate(fp, Gentle)

	assert.GreaterOrEqual(t, gentle.TargetLUFS-adaptive.TargetLUFS, 0.15)
}

func TestEQGainsAreClamped(t *testing.T) {
	fp := sampleFingerprint()
	fp.Frequency = [7]float32{0.9, 0.01, 0.01, 0.01, 0.01, 0.01, 0.05}
	tgt := Generate(fp, Warm)
	for _, g := range tgt.EQGainsDB {
		assert.LessOrEqual(t, g, eqGainClampDB)
		assert.GreaterOrEqual(t, g, -eqGainClampDB)
	}
}

func TestSaturationIsClamped(t *testing.T) {
	fp := sampleFingerprint()
	fp.Harmonic[1] = 10 // absurdly high, should still clip
	tgt := Generate(fp, Warm)
	assert.LessOrEqual(t, tgt.SaturationAmount, saturationClampMax)
	assert.GreaterOrEqual(t, tgt.SaturationAmount, 0.0)
}

func TestGenerateIsDeterministic(t *testing.T) {
	fp := sampleFingerprint()
	a := Generate(fp, Punchy)
	b := Generate(fp, Punchy)
	assert.Equal(t, a, b)
}

func TestPresetString(t *testing.T) {
	assert.Equal(t, "Adaptive", Adaptive.String())
	assert.Equal(t, "Gentle", Gentle.String())
	assert.Equal(t, "Warm", Warm.String())
	assert.Equal(t, "Bright", Bright.String())
	assert.Equal(t, "Punchy", Punchy.String())
}
