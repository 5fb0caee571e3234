package analysis

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DefaultClasses is the label set used when no class_names.txt accompanies
// the model. Order is the probability-vector order.
var DefaultClasses = []string{"blocks", "prolongations", "repetitions"}

// Classifier maps a normalized spectrogram to a probability per class.
// Classify returns probabilities aligned with Classes() order.
type Classifier interface {
	Classify(spec *mat.Dense) ([]float64, error)
	Classes() []string
	ModelVersion() string
}

// ModelFormat selects the on-disk prototype encoding.
type ModelFormat string

const (
	// FormatFull stores prototype features as float64 JSON arrays.
	FormatFull ModelFormat = "full"
	// FormatCompact stores prototype features quantized to uint8.
	FormatCompact ModelFormat = "compact"
)

// ClassifierConfig selects and parameterizes the model backend.
type ClassifierConfig struct {
	ModelPath string
	// Format may be left empty; it is then derived from the file name here,
	// the only place extension-based defaulting happens.
	Format    ModelFormat
	Neighbors int
}

// NewClassifier loads the prototype model at cfg.ModelPath and returns the
// backend matching its format.
func NewClassifier(cfg ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is required", ErrValidation)
	}
	k := cfg.Neighbors
	if k <= 0 {
		k = 5
	}

	format := cfg.Format
	if format == "" {
		if strings.HasSuffix(cfg.ModelPath, ".compact.json") {
			format = FormatCompact
		} else {
			format = FormatFull
		}
	}

	classes := loadClassNames(filepath.Dir(cfg.ModelPath), logger)

	switch format {
	case FormatFull:
		return newPrototypeClassifier(cfg.ModelPath, k, classes, logger)
	case FormatCompact:
		return newCompactClassifier(cfg.ModelPath, k, classes, logger)
	default:
		return nil, fmt.Errorf("%w: unknown model format %q", ErrValidation, format)
	}
}

// loadClassNames reads class_names.txt next to the model, one label per line.
// Falls back to the default label set when the file is absent or empty.
func loadClassNames(modelDir string, logger *slog.Logger) []string {
	path := filepath.Join(modelDir, "class_names.txt")
	file, err := os.Open(path)
	if err != nil {
		logger.Info("class names file not found, using defaults", "path", path)
		return append([]string(nil), DefaultClasses...)
	}
	defer file.Close()

	var classes []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			classes = append(classes, name)
		}
	}
	if err := scanner.Err(); err != nil || len(classes) == 0 {
		logger.Warn("class names file unusable, using defaults", "path", path, slog.Any("error", err))
		return append([]string(nil), DefaultClasses...)
	}
	return classes
}
