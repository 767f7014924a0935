package fingerprint

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	errInsufficientAudio = errors.New("fewer than 10s of audio available for analysis")
	errNonFinite         = errors.New("an estimator produced a non-finite value")
)

// frameAccumulator collects per-frame feature values across a whole
// Analyze call so the final aggregation step can mean/std-dev them in
// one place.
type frameAccumulator struct {
	bandEnergies [][numFreqBands]float64
	centroid     []float64
	rolloff      []float64
	flatness     []float64
	flux         []float64
	zcr          []float64
	rms          []float64
}

func newFrameAccumulator() *frameAccumulator {
	return &frameAccumulator{}
}

func (a *frameAccumulator) addBandEnergies(e [numFreqBands]float64) { a.bandEnergies = append(a.bandEnergies, e) }
func (a *frameAccumulator) addCentroid(v float64)                   { a.centroid = append(a.centroid, v) }
func (a *frameAccumulator) addRolloff(v float64)                    { a.rolloff = append(a.rolloff, v) }
func (a *frameAccumulator) addFlatness(v float64)                   { a.flatness = append(a.flatness, v) }
func (a *frameAccumulator) addFlux(v float64)                       { a.flux = append(a.flux, v) }
func (a *frameAccumulator) addZCR(v float64)                        { a.zcr = append(a.zcr, v) }
func (a *frameAccumulator) addRMS(v float64)                        { a.rms = append(a.rms, v) }

func (a *frameAccumulator) meanBandEnergies() [numFreqBands]float32 {
	var out [numFreqBands]float32
	if len(a.bandEnergies) == 0 {
		for i := range out {
			out[i] = 1.0 / numFreqBands
		}
		return out
	}
	var sums [numFreqBands]float64
	for _, e := range a.bandEnergies {
		for i := 0; i < numFreqBands; i++ {
			sums[i] += e[i]
		}
	}
	var total float64
	for i := range sums {
		sums[i] /= float64(len(a.bandEnergies))
		total += sums[i]
	}
	if total == 0 {
		for i := range out {
			out[i] = 1.0 / numFreqBands
		}
		return out
	}
	for i := range out {
		out[i] = float32(sums[i] / total)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	_, variance := stat.MeanVariance(values, nil)
	return math.Sqrt(variance)
}

func (a *frameAccumulator) meanCentroid() float64    { return mean(a.centroid) }
func (a *frameAccumulator) meanRolloff() float64     { return mean(a.rolloff) }
func (a *frameAccumulator) meanFlatness() float64    { return mean(a.flatness) }
func (a *frameAccumulator) meanFlux() float64        { return mean(a.flux) }
func (a *frameAccumulator) fluxStdDev() float64      { return stdDev(a.flux) }
func (a *frameAccumulator) meanZCR() float64         { return mean(a.zcr) }
func (a *frameAccumulator) meanRMSEnergy() float64   { return mean(a.rms) }
