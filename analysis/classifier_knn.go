package analysis

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Pooling grid applied to the input spectrogram before the nearest-prototype
// lookup. A 128x128 spectrogram mean-pools down to a 256-dim vector.
const (
	poolGridRows = 16
	poolGridCols = 16
	poolDims     = poolGridRows * poolGridCols
)

// SpectroPrototype is one labeled reference spectrogram in pooled form.
type SpectroPrototype struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Features []float64 `json:"features"`
}

type distancePair struct {
	index    int
	distance float64
}

// prototypeClassifier scores inputs by cosine distance to labeled prototype
// vectors and turns neighbor weights into per-class probabilities.
type prototypeClassifier struct {
	mu           sync.RWMutex
	prototypes   []SpectroPrototype
	k            int
	classes      []string
	usingExample bool
	modelPath    string
	version      string
	logger       *slog.Logger
}

func newPrototypeClassifier(path string, k int, classes []string, logger *slog.Logger) (*prototypeClassifier, error) {
	prototypes, resolvedPath, usingExample, err := loadPrototypeFile(path, logger)
	if err != nil {
		return nil, err
	}
	for _, proto := range prototypes {
		if err := validatePrototype(proto); err != nil {
			return nil, err
		}
	}
	normalizePrototypes(prototypes)

	if len(prototypes) > 0 && k > len(prototypes) {
		k = len(prototypes)
	}

	return &prototypeClassifier{
		prototypes:   prototypes,
		k:            k,
		classes:      classes,
		usingExample: usingExample,
		modelPath:    resolvedPath,
		version:      "knn_v1",
		logger:       logger,
	}, nil
}

// loadPrototypeFile reads a prototype JSON array, falling back to the
// `.example.json` sibling when the primary file is missing.
func loadPrototypeFile(path string, logger *slog.Logger) ([]SpectroPrototype, string, bool, error) {
	resolvedPath := filepath.Clean(path)
	usingExample := false

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		ext := filepath.Ext(resolvedPath)
		base := strings.TrimSuffix(resolvedPath, ext)
		fallbackPath := base + ".example" + ext
		data, err = os.ReadFile(fallbackPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("%w: model file %s", ErrNotFound, path)
		}
		logger.Warn("falling back to example prototypes", "path", fallbackPath)
		resolvedPath = fallbackPath
		usingExample = true
	}

	var prototypes []SpectroPrototype
	if err := json.Unmarshal(data, &prototypes); err != nil {
		return nil, "", false, fmt.Errorf("%w: unable to parse prototypes: %v", ErrClassifier, err)
	}
	if len(prototypes) == 0 {
		logger.Warn("no prototypes loaded; classifier will start empty", "path", resolvedPath)
	}
	return prototypes, resolvedPath, usingExample, nil
}

func validatePrototype(proto SpectroPrototype) error {
	if proto.Label == "" {
		return fmt.Errorf("%w: prototype %s missing label", ErrClassifier, proto.ID)
	}
	if len(proto.Features) != poolDims {
		return fmt.Errorf("%w: prototype %s has %d features, expected %d",
			ErrClassifier, proto.ID, len(proto.Features), poolDims)
	}
	return nil
}

func normalizePrototypes(prototypes []SpectroPrototype) {
	for idx := range prototypes {
		NormaliseVectorInPlace(prototypes[idx].Features)
	}
}

func (c *prototypeClassifier) Classes() []string {
	return append([]string(nil), c.classes...)
}

func (c *prototypeClassifier) ModelVersion() string { return c.version }

// Classify pools the spectrogram to the prototype grid, ranks prototypes by
// cosine distance, and converts inverse-distance neighbor weights into a
// probability per class in Classes() order.
func (c *prototypeClassifier) Classify(spec *mat.Dense) ([]float64, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spectrogram", ErrClassifier)
	}
	features, err := poolSpectrogram(spec, poolGridRows, poolGridCols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifier, err)
	}
	NormaliseVectorInPlace(features)

	c.mu.RLock()
	prototypes := c.prototypes
	k := c.k
	c.mu.RUnlock()

	if len(prototypes) == 0 {
		return nil, fmt.Errorf("%w: no prototypes loaded", ErrClassifier)
	}
	if k > len(prototypes) {
		k = len(prototypes)
	}

	distances := make([]distancePair, len(prototypes))
	for i := range prototypes {
		similarity := cosineSimilarity(features, prototypes[i].Features)
		distances[i] = distancePair{index: i, distance: 1 - similarity}
	}
	sort.Slice(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	labelWeights := make(map[string]float64, len(c.classes))
	var totalWeight float64
	for idx := 0; idx < k; idx++ {
		neighbor := distances[idx]
		weight := 1.0 / (neighbor.distance + 1e-9)
		labelWeights[prototypes[neighbor.index].Label] += weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return make([]float64, len(c.classes)), nil
	}

	probs := make([]float64, len(c.classes))
	for i, class := range c.classes {
		probs[i] = labelWeights[class] / totalWeight
	}
	return probs, nil
}

// poolSpectrogram mean-pools a spectrogram onto a (gridRows x gridCols) grid
// and flattens it row-major.
func poolSpectrogram(spec *mat.Dense, gridRows, gridCols int) ([]float64, error) {
	rows, cols := spec.Dims()
	if rows < gridRows || cols < gridCols {
		return nil, fmt.Errorf("spectrogram %dx%d smaller than pooling grid %dx%d", rows, cols, gridRows, gridCols)
	}

	features := make([]float64, 0, gridRows*gridCols)
	for gr := 0; gr < gridRows; gr++ {
		rowStart := gr * rows / gridRows
		rowEnd := (gr + 1) * rows / gridRows
		for gc := 0; gc < gridCols; gc++ {
			colStart := gc * cols / gridCols
			colEnd := (gc + 1) * cols / gridCols

			var sum float64
			for r := rowStart; r < rowEnd; r++ {
				for col := colStart; col < colEnd; col++ {
					sum += spec.At(r, col)
				}
			}
			count := (rowEnd - rowStart) * (colEnd - colStart)
			features = append(features, sum/float64(count))
		}
	}
	return features, nil
}

// NormaliseVectorInPlace scales the vector to unit L2 length.
func NormaliseVectorInPlace(vector []float64) {
	var sum float64
	for _, v := range vector {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vector {
		vector[i] /= norm
	}
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// A higher value indicates greater similarity.
func cosineSimilarity(a, b []float64) float64 {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}

	var dotProduct, normA, normB float64
	for i := 0; i < limit; i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
