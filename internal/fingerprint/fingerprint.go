// Package fingerprint implements the Fingerprint Extractor (C2): a
// fixed-width 25-component numeric descriptor of a track's acoustic
// character, computed either from a whole decoded buffer or from a
// streaming ring buffer updated incrementally. The band layout uses 7
// log-spaced frequency bands over gonum FFT coefficients,
// accumulating per-frame statistics and aggregating them into bands this
// engine needs for mastering decisions rather than timbre/instrument
// classification.
package fingerprint

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"auralis/internal/pcm"
	"auralis/internal/xerr"
)

const (
	fftSize = 4096
	hopSize = 2048

	numFreqBands = 7
	numDynamics  = 3
	numTemporal  = 4
	numSpectral  = 3
	numHarmonic  = 3
	numVariation = 3
	numStereo    = 2
	VectorLen    = numFreqBands + numDynamics + numTemporal + numSpectral + numHarmonic + numVariation + numStereo

	minAnalyzableSeconds = 10.0
)

// Fingerprint is the 25-component vector grouped into named bands.
// Values are always finite; callers that need raw bytes use ToVector.
type Fingerprint struct {
	Frequency [numFreqBands]float32
	Dynamics  [numDynamics]float32 // [integratedLUFS, crestFactorDb, compressionIndex]
	Temporal  [numTemporal]float32 // [tempoBPM, onsetDensityPerSec, percussiveRatio, transientSharpness]
	Spectral  [numSpectral]float32 // [centroidHz, rolloff85Hz, flatness]
	Harmonic  [numHarmonic]float32 // [voicedRatio, f0Stability, chromaConcentration]
	Variation [numVariation]float32 // [loudnessStdDevDb, spectralFlux, dynamicRangeDelta]
	Stereo    [numStereo]float32   // [interchannelCorrelation, stereoWidth]
}

// ToVector flattens the Fingerprint into the canonical 25-value order
// used by the on-disk wire format and by Euclidean-distance comparisons.
func (f Fingerprint) ToVector() [VectorLen]float32 {
	var v [VectorLen]float32
	i := 0
	i += copy(v[i:], f.Frequency[:])
	i += copy(v[i:], f.Dynamics[:])
	i += copy(v[i:], f.Temporal[:])
	i += copy(v[i:], f.Spectral[:])
	i += copy(v[i:], f.Harmonic[:])
	i += copy(v[i:], f.Variation[:])
	copy(v[i:], f.Stereo[:])
	return v
}

// FromVector reconstructs a Fingerprint from its flattened form.
func FromVector(v [VectorLen]float32) Fingerprint {
	var f Fingerprint
	i := 0
	i += copy(f.Frequency[:], v[i:i+numFreqBands])
	i += copy(f.Dynamics[:], v[i:i+numDynamics])
	i += copy(f.Temporal[:], v[i:i+numTemporal])
	i += copy(f.Spectral[:], v[i:i+numSpectral])
	i += copy(f.Harmonic[:], v[i:i+numHarmonic])
	i += copy(f.Variation[:], v[i:i+numVariation])
	copy(f.Stereo[:], v[i:i+numStereo])
	return f
}

// Finite reports whether every component is a finite float, the
// invariant the extractor must guarantee before returning.
func (f Fingerprint) Finite() bool {
	for _, v := range f.ToVector() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// FailureReason enumerates why Analyze fell back to a degraded result.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureInsufficientAudio
	FailureNonFinite
)

// Result pairs a Fingerprint with its extraction confidence, matching
// the Fingerprint Entry shape from the data model (TrackId/computed_at
// are attached by the caller, not this package).
type Result struct {
	Fingerprint Fingerprint
	Confidence  float64
	Reason      FailureReason
}

// freqBandEdgesHz are 8 log-spaced edges covering 20 Hz-20 kHz, giving 7
// bands.
var freqBandEdgesHz = logSpace(20, 20000, numFreqBands+1)

func logSpace(lo, hi float64, n int) []float64 {
	edges := make([]float64, n)
	logLo, logHi := math.Log(lo), math.Log(hi)
	for i := range edges {
		t := float64(i) / float64(n-1)
		edges[i] = math.Exp(logLo + t*(logHi-logLo))
	}
	return edges
}

// Extractor holds reusable FFT plumbing so repeated Analyze calls (e.g.
// one per chunk in the streaming path) don't reallocate a transform.
type Extractor struct {
	fft    *fourier.FFT
	window []float64
}

// New builds an Extractor. It is not tied to a sample rate: each Analyze
// call uses its own block's rate for the Hz-domain features (centroid,
// rolloff, band energies).
func New() *Extractor {
	window := make([]float64, fftSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return &Extractor{
		fft:    fourier.NewFFT(fftSize),
		window: window,
	}
}

// Analyze computes a Fingerprint from a whole AudioBlock. Blocks shorter
// than minAnalyzableSeconds are zero-padded internally and the result is
// returned with confidence < 0.5 together with an insufficient-audio error.
func (e *Extractor) Analyze(block pcm.AudioBlock) (Result, error) {
	if block.SampleRate == 0 || block.Len() == 0 {
		return Result{Reason: FailureInsufficientAudio, Confidence: 0.1}, xerr.New(xerr.KindDegraded, "fingerprint.Analyze", errInsufficientAudio)
	}

	sr := float64(block.SampleRate)
	frameAccum := newFrameAccumulator()

	duration := block.Duration()
	if duration < minAnalyzableSeconds {
		padded := make([]pcm.Frame, int(minAnalyzableSeconds*sr))
		copy(padded, block.Frames)
		block = pcm.AudioBlock{Frames: padded, SampleRate: block.SampleRate, StartFrame: block.StartFrame}
	}

	numFrames := (block.Len() - fftSize) / hopSize
	if numFrames < 1 {
		numFrames = 0
	}

	var (
		left, right      = toMonoAndChannels(block)
		prevSpectrum     []float64
		onsetStrengths   []float64
		loudnessWindows  []float64
	)

	for i := 0; i < numFrames; i++ {
		start := i * hopSize
		end := start + fftSize
		if end > len(left) {
			break
		}
		frame := left[start:end]
		windowed := make([]float64, fftSize)
		for j, s := range frame {
			windowed[j] = s * e.window[j]
		}
		coeffs := e.fft.Coefficients(nil, windowed)
		spectrum := make([]float64, fftSize/2)
		for j := range spectrum {
			re, im := real(coeffs[j]), imag(coeffs[j])
			spectrum[j] = math.Sqrt(re*re + im*im)
		}

		frameAccum.addBandEnergies(bandEnergies(spectrum, sr, fftSize))
		frameAccum.addCentroid(spectralCentroid(spectrum, sr, fftSize))
		frameAccum.addRolloff(spectralRolloff(spectrum, sr, fftSize, 0.85))
		frameAccum.addFlatness(spectralFlatness(spectrum))
		flux := spectralFlux(spectrum, prevSpectrum)
		frameAccum.addFlux(flux)
		if flux > 0 {
			onsetStrengths = append(onsetStrengths, flux)
		}
		frameAccum.addZCR(zeroCrossingRate(frame))
		rms := rmsEnergy(frame)
		frameAccum.addRMS(rms)
		loudnessWindows = append(loudnessWindows, rms)
		prevSpectrum = spectrum
	}

	fp := Fingerprint{}
	fp.Frequency = frameAccum.meanBandEnergies()
	fp.Spectral = [numSpectral]float32{
		float32(frameAccum.meanCentroid()),
		float32(frameAccum.meanRolloff()),
		float32(frameAccum.meanFlatness()),
	}
	fp.Variation[1] = float32(frameAccum.meanFlux())

	lufs, crest, compressionIdx := loudnessStats(loudnessWindows)
	fp.Dynamics = [numDynamics]float32{float32(lufs), float32(crest), float32(compressionIdx)}

	tempo := estimateTempo(onsetStrengths, sr)
	onsetDensity := 0.0
	if duration > 0 {
		onsetDensity = float64(len(onsetStrengths)) / duration
	}
	percussiveRatio := frameAccum.meanZCR()
	transientSharpness := clip01(frameAccum.meanFlux() / math.Max(frameAccum.meanRMSEnergy(), 1e-9))
	fp.Temporal = [numTemporal]float32{
		float32(clipRange(tempo, 40, 200)),
		float32(onsetDensity),
		float32(clip01(percussiveRatio)),
		float32(transientSharpness),
	}

	stdDevDb, dynamicRangeDelta := variationStats(loudnessWindows)
	fp.Variation[0] = float32(clipRange(stdDevDb, 0, 10))
	fp.Variation[2] = float32(dynamicRangeDelta)

	fp.Harmonic = harmonicFeatures(frameAccum)

	corr, width := stereoFeatures(left, right)
	fp.Stereo = [numStereo]float32{float32(clipRange(corr, -1, 1)), float32(clip01(width))}

	confidence := 1.0
	reason := FailureNone
	if duration < minAnalyzableSeconds {
		confidence = 0.3
		reason = FailureInsufficientAudio
	}

	if !fp.Finite() {
		return Result{Fingerprint: safeDefault(), Confidence: math.Min(confidence, 0.2), Reason: FailureNonFinite},
			xerr.New(xerr.KindDegraded, "fingerprint.Analyze", errNonFinite)
	}
	if reason == FailureInsufficientAudio {
		return Result{Fingerprint: fp, Confidence: confidence, Reason: reason},
			xerr.New(xerr.KindDegraded, "fingerprint.Analyze", errInsufficientAudio)
	}

	return Result{Fingerprint: fp, Confidence: confidence, Reason: reason}, nil
}

// safeDefault is the documented fallback fingerprint: silence-shaped,
// neutral stereo image, used whenever an estimator produces a
// non-finite result that would otherwise violate the Finite invariant.
func safeDefault() Fingerprint {
	var f Fingerprint
	for i := range f.Frequency {
		f.Frequency[i] = 1.0 / numFreqBands
	}
	f.Stereo = [numStereo]float32{1.0, 0.0}
	return f
}

func toMonoAndChannels(b pcm.AudioBlock) (left, right []float64) {
	left = make([]float64, b.Len())
	right = make([]float64, b.Len())
	for i, fr := range b.Frames {
		left[i] = float64(fr.L)
		right[i] = float64(fr.R)
	}
	return left, right
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

func bandEnergies(spectrum []float64, sampleRate float64, fftN int) [numFreqBands]float64 {
	var energies [numFreqBands]float64
	freqPerBin := sampleRate / float64(fftN)
	var total float64
	for i, mag := range spectrum {
		freq := float64(i) * freqPerBin
		e := mag * mag
		total += e
		for b := 0; b < numFreqBands; b++ {
			if freq >= freqBandEdgesHz[b] && freq < freqBandEdgesHz[b+1] {
				energies[b] += e
				break
			}
		}
	}
	if total == 0 {
		for b := range energies {
			energies[b] = 1.0 / numFreqBands
		}
		return energies
	}
	for b := range energies {
		energies[b] /= total
	}
	return energies
}

func spectralCentroid(spectrum []float64, sampleRate float64, fftN int) float64 {
	freqPerBin := sampleRate / float64(fftN)
	var weighted, sum float64
	for i, mag := range spectrum {
		weighted += float64(i) * freqPerBin * mag
		sum += mag
	}
	if sum == 0 {
		return 0
	}
	return weighted / sum
}

func spectralRolloff(spectrum []float64, sampleRate float64, fftN int, pct float64) float64 {
	var total float64
	for _, mag := range spectrum {
		total += mag * mag
	}
	threshold := total * pct
	freqPerBin := sampleRate / float64(fftN)
	var cum float64
	for i, mag := range spectrum {
		cum += mag * mag
		if cum >= threshold {
			return float64(i) * freqPerBin
		}
	}
	return float64(len(spectrum)) * freqPerBin
}

func spectralFlatness(spectrum []float64) float64 {
	var logSum, sum float64
	n := 0
	for _, mag := range spectrum {
		if mag <= 1e-12 {
			continue
		}
		logSum += math.Log(mag)
		sum += mag
		n++
	}
	if n == 0 || sum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(n))
	arithMean := sum / float64(n)
	return clip01(geoMean / arithMean)
}

func spectralFlux(spectrum, prev []float64) float64 {
	if prev == nil {
		return 0
	}
	var flux float64
	for i := 0; i < len(spectrum) && i < len(prev); i++ {
		diff := spectrum[i] - prev[i]
		if diff > 0 {
			flux += diff * diff
		}
	}
	return math.Sqrt(flux)
}

func zeroCrossingRate(frame []float64) float64 {
	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i] >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	if len(frame) <= 1 {
		return 0
	}
	return float64(crossings) / float64(len(frame)-1)
}

func rmsEnergy(frame []float64) float64 {
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	if len(frame) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// loudnessStats derives an approximate integrated LUFS, a crest factor in
// dB, and a compression index from the histogram spread of short-term RMS
// windows. dynamics band.
func loudnessStats(rmsWindows []float64) (lufs, crestDb, compressionIdx float64) {
	if len(rmsWindows) == 0 {
		return -70, 0, 0
	}
	mean := stat.Mean(rmsWindows, nil)
	if mean <= 1e-9 {
		return -70, 0, 0
	}
	lufs = 20*math.Log10(mean) - 0.691 // K-weighting gain approximation
	peak := 0.0
	for _, v := range rmsWindows {
		if v > peak {
			peak = v
		}
	}
	if peak > 0 {
		crestDb = 20 * math.Log10(peak/mean)
	}
	sorted := append([]float64(nil), rmsWindows...)
	sort.Float64s(sorted)
	p10 := sorted[len(sorted)/10]
	p90 := sorted[len(sorted)*9/10]
	if p90 > 0 {
		compressionIdx = clip01(1.0 - (p90-p10)/p90)
	}
	return lufs, crestDb, compressionIdx
}

func variationStats(rmsWindows []float64) (stdDevDb, dynamicRangeDelta float64) {
	if len(rmsWindows) < 2 {
		return 0, 0
	}
	dbs := make([]float64, 0, len(rmsWindows))
	for _, v := range rmsWindows {
		if v > 1e-9 {
			dbs = append(dbs, 20*math.Log10(v))
		}
	}
	if len(dbs) < 2 {
		return 0, 0
	}
	_, variance := stat.MeanVariance(dbs, nil)
	stdDevDb = math.Sqrt(variance)

	sorted := append([]float64(nil), dbs...)
	sort.Float64s(sorted)
	p10 := sorted[len(sorted)/10]
	p90 := sorted[len(sorted)*9/10]
	dynamicRangeDelta = p90 - p10
	return stdDevDb, dynamicRangeDelta
}

// estimateTempo autocorrelates onset strengths, constrained to a
// [40,200] BPM range before the caller clips again for safety.
func estimateTempo(onsetStrengths []float64, sampleRate float64) float64 {
	if len(onsetStrengths) < 10 {
		return 120.0
	}
	hopDuration := float64(hopSize) / sampleRate
	minLag := int(60.0 / 200.0 / hopDuration)
	maxLag := int(60.0 / 40.0 / hopDuration)
	if maxLag >= len(onsetStrengths) {
		maxLag = len(onsetStrengths) - 1
	}
	if minLag < 1 {
		minLag = 1
	}
	bestLag, bestCorr := minLag, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i < len(onsetStrengths)-lag; i++ {
			corr += onsetStrengths[i] * onsetStrengths[i+lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return 120.0
	}
	return clipRange(60.0/(float64(bestLag)*hopDuration), 40, 200)
}

// harmonicFeatures derives a coarse voiced/unvoiced ratio, fundamental
// stability, and chroma concentration from the accumulated per-frame
// zero-crossing and flux history; a full pitch tracker is out of scope,
// so these fields are estimates rather than precise measurements.
func harmonicFeatures(acc *frameAccumulator) [numHarmonic]float32 {
	voicedRatio := clip01(1.0 - acc.meanZCR())
	f0Stability := clip01(1.0 - acc.fluxStdDev()/math.Max(acc.meanFlux(), 1e-9))
	chromaConcentration := clip01(acc.meanFlatness() * -1.0 + 1.0)
	return [numHarmonic]float32{float32(voicedRatio), float32(f0Stability), float32(chromaConcentration)}
}

func stereoFeatures(left, right []float64) (correlation, width float64) {
	if len(left) == 0 || len(right) == 0 {
		return 1.0, 0.0
	}
	correlation = stat.Correlation(left, right, nil)
	if math.IsNaN(correlation) {
		correlation = 1.0
	}
	var sideEnergy, midEnergy float64
	for i := range left {
		mid := (left[i] + right[i]) / 2
		side := (left[i] - right[i]) / 2
		midEnergy += mid * mid
		sideEnergy += side * side
	}
	if midEnergy <= 1e-12 {
		return correlation, 0.0
	}
	width = clip01((sideEnergy / midEnergy) / 2.0)
	return correlation, width
}
