package localizer

// Energy-envelope localization. Refines a confident window into timed
// sub-events by inspecting the short-time energy and zero-crossing contour
// of the waveform:
//
//   - blocks: sustained stretches where the envelope drops well below the
//     window median (speech stopped mid-utterance)
//   - prolongations: long stretches of steady voiced energy with few sign
//     changes (a sound held in place)
//   - repetitions: bursts of closely spaced energy onsets (syllable restarts)
//
// Candidates are only emitted for classes the classifier gave meaningful
// probability, and each sub-event inherits its class probability scaled by
// the strength of the local evidence.

import (
	"context"
	"errors"
	"math"
	"sort"

	"stutter-detection/analysis"
)

const (
	frameSize = 512
	frameHop  = 256

	// minimum class probability before the localizer searches for that class
	classProbFloor = 0.2

	blockMinDurSec        = 0.15
	blockEnergyRatio      = 0.3
	prolongationMinDurSec = 0.4
	prolongationZCRMax    = 0.12
	repetitionMaxGapSec   = 0.35
	minRepetitionOnsets   = 2
)

// EnergyLocalizer locates sub-events in-process from the signal envelope.
type EnergyLocalizer struct{}

func NewEnergyLocalizer() *EnergyLocalizer { return &EnergyLocalizer{} }

type frameStats struct {
	rms []float64
	zcr []float64
}

// Localize scans the window for the classes the probability map supports and
// returns sub-events ordered by start time.
func (l *EnergyLocalizer) Localize(ctx context.Context, samples []float64, sampleRate int, probabilities map[string]float64) ([]analysis.SubEvent, error) {
	if len(samples) == 0 {
		return nil, errors.New("empty window")
	}
	if sampleRate <= 0 {
		return nil, errors.New("invalid sample rate")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := computeFrameStats(samples)
	if len(stats.rms) == 0 {
		return nil, errors.New("window too short for framing")
	}
	frameSec := float64(frameHop) / float64(sampleRate)

	var subEvents []analysis.SubEvent
	if p := probabilities["blocks"]; p >= classProbFloor {
		subEvents = append(subEvents, findBlocks(stats, frameSec, p)...)
	}
	if p := probabilities["prolongations"]; p >= classProbFloor {
		subEvents = append(subEvents, findProlongations(stats, frameSec, p)...)
	}
	if p := probabilities["repetitions"]; p >= classProbFloor {
		subEvents = append(subEvents, findRepetitions(stats, frameSec, p)...)
	}

	sortSubEvents(subEvents)
	return subEvents, nil
}

func computeFrameStats(samples []float64) frameStats {
	var stats frameStats
	for start := 0; start+frameSize <= len(samples); start += frameHop {
		frame := samples[start : start+frameSize]
		stats.rms = append(stats.rms, rootMeanSquare(frame))
		stats.zcr = append(stats.zcr, zeroCrossingRate(frame))
	}
	return stats
}

// findBlocks marks sustained low-energy runs relative to the window median.
func findBlocks(stats frameStats, frameSec, classProb float64) []analysis.SubEvent {
	median := medianOf(stats.rms)
	if median <= 0 {
		return nil
	}
	threshold := median * blockEnergyRatio
	minFrames := int(blockMinDurSec/frameSec) + 1

	var events []analysis.SubEvent
	runStart := -1
	for i, energy := range stats.rms {
		if energy < threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart >= minFrames {
			events = append(events, blockEvent(stats, runStart, i, frameSec, threshold, classProb))
		}
		runStart = -1
	}
	if runStart >= 0 && len(stats.rms)-runStart >= minFrames {
		events = append(events, blockEvent(stats, runStart, len(stats.rms), frameSec, threshold, classProb))
	}
	return events
}

func blockEvent(stats frameStats, from, to int, frameSec, threshold, classProb float64) analysis.SubEvent {
	// deeper drops below the threshold read as stronger evidence
	var depth float64
	for i := from; i < to; i++ {
		depth += 1 - stats.rms[i]/threshold
	}
	strength := clamp01(depth / float64(to-from))
	return analysis.SubEvent{
		Type:       "blocks",
		Confidence: clamp01(classProb * (0.5 + 0.5*strength)),
		StartSec:   float64(from) * frameSec,
		EndSec:     float64(to) * frameSec,
	}
}

// findProlongations marks long steady voiced runs: energy at or above the
// median with a low zero-crossing rate.
func findProlongations(stats frameStats, frameSec, classProb float64) []analysis.SubEvent {
	median := medianOf(stats.rms)
	if median <= 0 {
		return nil
	}
	minFrames := int(prolongationMinDurSec/frameSec) + 1

	var events []analysis.SubEvent
	runStart := -1
	for i := range stats.rms {
		voiced := stats.rms[i] >= median*0.8 && stats.zcr[i] <= prolongationZCRMax
		if voiced {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart >= minFrames {
			events = append(events, prolongationEvent(runStart, i, frameSec, classProb, minFrames))
		}
		runStart = -1
	}
	if runStart >= 0 && len(stats.rms)-runStart >= minFrames {
		events = append(events, prolongationEvent(runStart, len(stats.rms), frameSec, classProb, minFrames))
	}
	return events
}

func prolongationEvent(from, to int, frameSec, classProb float64, minFrames int) analysis.SubEvent {
	// longer holds past the minimum read as stronger evidence
	strength := clamp01(float64(to-from-minFrames) / float64(2*minFrames))
	return analysis.SubEvent{
		Type:       "prolongations",
		Confidence: clamp01(classProb * (0.6 + 0.4*strength)),
		StartSec:   float64(from) * frameSec,
		EndSec:     float64(to) * frameSec,
	}
}

// findRepetitions groups closely spaced energy onsets into one sub-event per
// burst train.
func findRepetitions(stats frameStats, frameSec, classProb float64) []analysis.SubEvent {
	onsets := detectOnsets(stats.rms)
	if len(onsets) < minRepetitionOnsets {
		return nil
	}
	maxGapFrames := int(repetitionMaxGapSec / frameSec)

	var events []analysis.SubEvent
	trainStart := onsets[0]
	count := 1
	prev := onsets[0]
	flush := func(last int) {
		if count >= minRepetitionOnsets {
			strength := clamp01(float64(count-minRepetitionOnsets) / 3.0)
			events = append(events, analysis.SubEvent{
				Type:       "repetitions",
				Confidence: clamp01(classProb * (0.5 + 0.5*strength)),
				StartSec:   float64(trainStart) * frameSec,
				EndSec:     float64(last+1) * frameSec,
			})
		}
	}
	for _, onset := range onsets[1:] {
		if onset-prev <= maxGapFrames {
			count++
		} else {
			flush(prev)
			trainStart = onset
			count = 1
		}
		prev = onset
	}
	flush(prev)
	return events
}

// detectOnsets returns frame indexes where the envelope rises sharply above
// its recent level.
func detectOnsets(rms []float64) []int {
	if len(rms) < 2 {
		return nil
	}
	mean := 0.0
	for _, v := range rms {
		mean += v
	}
	mean /= float64(len(rms))

	var onsets []int
	for i := 1; i < len(rms); i++ {
		rise := rms[i] - rms[i-1]
		if rise > 0.3*mean && rms[i] > mean {
			onsets = append(onsets, i)
		}
	}
	return onsets
}

func rootMeanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func sortSubEvents(events []analysis.SubEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartSec < events[j].StartSec
	})
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
