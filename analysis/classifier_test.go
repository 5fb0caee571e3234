package analysis

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func pooledVector(peaks map[int]float64) []float64 {
	vec := make([]float64, poolDims)
	for idx, value := range peaks {
		if idx < len(vec) {
			vec[idx] = value
		}
	}
	return vec
}

// specFromPooled builds a 128x128 spectrogram whose mean-pool equals the
// given 16x16 vector exactly.
func specFromPooled(vec []float64) *mat.Dense {
	spec := mat.NewDense(128, 128, nil)
	cellH := 128 / poolGridRows
	cellW := 128 / poolGridCols
	for gr := 0; gr < poolGridRows; gr++ {
		for gc := 0; gc < poolGridCols; gc++ {
			value := vec[gr*poolGridCols+gc]
			for r := gr * cellH; r < (gr+1)*cellH; r++ {
				for c := gc * cellW; c < (gc+1)*cellW; c++ {
					spec.Set(r, c, value)
				}
			}
		}
	}
	return spec
}

func newTestClassifier(protos []SpectroPrototype, k int) *prototypeClassifier {
	copies := make([]SpectroPrototype, len(protos))
	for i, proto := range protos {
		features := make([]float64, len(proto.Features))
		copy(features, proto.Features)
		proto.Features = features
		copies[i] = proto
	}
	normalizePrototypes(copies)
	return &prototypeClassifier{
		prototypes: copies,
		k:          k,
		classes:    append([]string(nil), DefaultClasses...),
		version:    "knn_v1",
		logger:     testLogger(),
	}
}

func TestClassifyPrefersMajorityLabel(t *testing.T) {
	t.Parallel()

	protos := []SpectroPrototype{
		{ID: "blocks_1", Label: "blocks", Features: pooledVector(map[int]float64{0: 1.0})},
		{ID: "blocks_2", Label: "blocks", Features: pooledVector(map[int]float64{0: 0.8, 1: 0.2})},
		{ID: "rep_1", Label: "repetitions", Features: pooledVector(map[int]float64{8: 1.0})},
	}
	classifier := newTestClassifier(protos, 3)

	probs, err := classifier.Classify(specFromPooled(pooledVector(map[int]float64{0: 1.0})))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if len(probs) != len(DefaultClasses) {
		t.Fatalf("expected %d probabilities, got %d", len(DefaultClasses), len(probs))
	}
	if probs[0] <= probs[2] {
		t.Fatalf("expected blocks to dominate: blocks=%.3f repetitions=%.3f", probs[0], probs[2])
	}
	if probs[0] <= 0.5 {
		t.Fatalf("expected blocks probability > 0.5, got %.3f", probs[0])
	}

	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("probabilities should sum to 1, got %f", sum)
	}
}

func TestClassifyRespondsToFeatureShift(t *testing.T) {
	t.Parallel()

	protos := []SpectroPrototype{
		{ID: "blocks_1", Label: "blocks", Features: pooledVector(map[int]float64{0: 1.0})},
		{ID: "rep_1", Label: "repetitions", Features: pooledVector(map[int]float64{10: 1.0})},
		{ID: "rep_2", Label: "repetitions", Features: pooledVector(map[int]float64{10: 0.9, 11: 0.1})},
	}
	classifier := newTestClassifier(protos, 3)

	probs, err := classifier.Classify(specFromPooled(pooledVector(map[int]float64{10: 1.0})))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if probs[2] <= probs[0] {
		t.Fatalf("expected repetitions to dominate: blocks=%.3f repetitions=%.3f", probs[0], probs[2])
	}
}

func TestQuantizeRoundtrip(t *testing.T) {
	t.Parallel()

	original := SpectroPrototype{
		ID:       "p1",
		Label:    "prolongations",
		Features: pooledVector(map[int]float64{0: -3.5, 5: 2.25, 17: 0.75, 255: -1.0}),
	}

	restored := DequantizePrototype(QuantizePrototype(original))
	if restored.ID != original.ID || restored.Label != original.Label {
		t.Fatalf("identity fields changed: %+v", restored)
	}
	if len(restored.Features) != len(original.Features) {
		t.Fatalf("feature count changed: %d", len(restored.Features))
	}

	// quantization error is bounded by one step of the affine scale
	span := 2.25 - (-3.5)
	step := span / 255.0
	for i := range original.Features {
		if diff := math.Abs(restored.Features[i] - original.Features[i]); diff > step {
			t.Fatalf("feature %d off by %f (step %f)", i, diff, step)
		}
	}
}

func TestNewClassifierFallsBackToExampleModel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	protos := []SpectroPrototype{
		{ID: "p1", Label: "blocks", Features: pooledVector(map[int]float64{0: 1.0})},
	}
	data, err := json.Marshal(protos)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	examplePath := filepath.Join(dir, "prototypes.example.json")
	if err := os.WriteFile(examplePath, data, 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	classifier, err := NewClassifier(ClassifierConfig{
		ModelPath: filepath.Join(dir, "prototypes.json"),
		Neighbors: 3,
	}, testLogger())
	if err != nil {
		t.Fatalf("expected fallback to example model, got error: %v", err)
	}
	if classifier.ModelVersion() != "knn_v1" {
		t.Fatalf("unexpected model version %s", classifier.ModelVersion())
	}
}

func TestNewClassifierMissingModel(t *testing.T) {
	t.Parallel()

	_, err := NewClassifier(ClassifierConfig{
		ModelPath: filepath.Join(t.TempDir(), "missing.json"),
	}, testLogger())
	if err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestLoadClassNamesFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "blocks\nprolongations\nrepetitions\ninterjections\n"
	if err := os.WriteFile(filepath.Join(dir, "class_names.txt"), []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	classes := loadClassNames(dir, testLogger())
	if len(classes) != 4 {
		t.Fatalf("expected 4 classes, got %d", len(classes))
	}
	if classes[3] != "interjections" {
		t.Fatalf("unexpected class order: %v", classes)
	}
}

func TestLoadClassNamesDefaults(t *testing.T) {
	t.Parallel()

	classes := loadClassNames(t.TempDir(), testLogger())
	if len(classes) != len(DefaultClasses) {
		t.Fatalf("expected default classes, got %v", classes)
	}
	for i, c := range DefaultClasses {
		if classes[i] != c {
			t.Fatalf("class %d: got %s, want %s", i, classes[i], c)
		}
	}
}

func TestCompactModelRoundtripThroughFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	protos := []SpectroPrototype{
		{ID: "p1", Label: "blocks", Features: pooledVector(map[int]float64{0: 1.0, 3: 0.5})},
		{ID: "p2", Label: "repetitions", Features: pooledVector(map[int]float64{8: 1.0})},
	}
	path := filepath.Join(dir, "prototypes.compact.json")
	if err := WriteCompactModel(path, protos); err != nil {
		t.Fatalf("WriteCompactModel failed: %v", err)
	}

	classifier, err := NewClassifier(ClassifierConfig{ModelPath: path, Neighbors: 2}, testLogger())
	if err != nil {
		t.Fatalf("failed to load compact model: %v", err)
	}
	if classifier.ModelVersion() != "knn_v1_compact" {
		t.Fatalf("expected compact backend, got version %s", classifier.ModelVersion())
	}

	probs, err := classifier.Classify(specFromPooled(pooledVector(map[int]float64{8: 1.0})))
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if probs[2] <= probs[0] {
		t.Fatalf("expected repetitions to dominate after roundtrip: %v", probs)
	}
}
