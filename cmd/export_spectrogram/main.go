package main

// Debug tool: renders the mel spectrogram the classifier sees for a
// recording as a PNG heatmap. Useful for sanity-checking feature extraction
// when a clip misclassifies.

import (
	"flag"
	"log"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"stutter-detection/analysis"
	"stutter-detection/utils"
	"stutter-detection/wav"
)

type specGrid struct {
	spec *mat.Dense
	secs float64
}

func (g specGrid) Dims() (int, int) {
	rows, cols := g.spec.Dims()
	return cols, rows
}

func (g specGrid) Z(c, r int) float64 { return g.spec.At(r, c) }

func (g specGrid) X(c int) float64 {
	_, cols := g.spec.Dims()
	return float64(c) * g.secs / float64(cols)
}

func (g specGrid) Y(r int) float64 { return float64(r) }

func main() {
	input := flag.String("input", "", "Path to the WAV recording")
	output := flag.String("output", "", "Output PNG path (default <input>_spectrogram.png)")
	flag.Parse()

	if *input == "" {
		log.Fatal("-input is required")
	}
	outPath := *output
	if outPath == "" {
		base := strings.TrimSuffix(*input, filepath.Ext(*input))
		outPath = base + "_spectrogram.png"
	}

	waveform, err := wav.ReadWaveFile(*input)
	if err != nil {
		log.Fatalf("failed to read recording: %v", err)
	}

	cfg := analysis.DefaultConfig()
	extractor := analysis.NewFeatureExtractor(cfg, utils.GetLogger())
	spec, err := extractor.Extract(waveform.Samples, waveform.SampleRate)
	if err != nil {
		log.Fatalf("failed to extract spectrogram: %v", err)
	}

	grid := specGrid{spec: spec, secs: cfg.SegmentDuration}
	pal := moreland.SmoothBlueRed().Palette(255)
	heatMap := plotter.NewHeatMap(grid, pal)

	p := plot.New()
	p.Title.Text = filepath.Base(*input)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Mel band"
	p.Add(heatMap)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, outPath); err != nil {
		log.Fatalf("failed to save heatmap: %v", err)
	}
	log.Printf("Spectrogram written to %s", outPath)
}
