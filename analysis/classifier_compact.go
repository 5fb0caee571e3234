package analysis

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// compactPrototype stores features quantized to uint8 with a per-prototype
// affine decode: value = Min + Scale*q. Cuts the model file to roughly an
// eighth of the full-precision size.
type compactPrototype struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Min      float64 `json:"min"`
	Scale    float64 `json:"scale"`
	Features []uint8 `json:"features"`
}

// newCompactClassifier loads a quantized prototype file and dequantizes it
// into the regular prototype backend.
func newCompactClassifier(path string, k int, classes []string, logger *slog.Logger) (*prototypeClassifier, error) {
	resolvedPath := filepath.Clean(path)
	usingExample := false

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		ext := filepath.Ext(resolvedPath)
		base := strings.TrimSuffix(resolvedPath, ext)
		fallbackPath := base + ".example" + ext
		data, err = os.ReadFile(fallbackPath)
		if err != nil {
			return nil, fmt.Errorf("%w: model file %s", ErrNotFound, path)
		}
		logger.Warn("falling back to example prototypes", "path", fallbackPath)
		resolvedPath = fallbackPath
		usingExample = true
	}

	var compact []compactPrototype
	if err := json.Unmarshal(data, &compact); err != nil {
		return nil, fmt.Errorf("%w: unable to parse compact prototypes: %v", ErrClassifier, err)
	}

	prototypes := make([]SpectroPrototype, len(compact))
	for i, proto := range compact {
		prototypes[i] = DequantizePrototype(proto)
		if err := validatePrototype(prototypes[i]); err != nil {
			return nil, err
		}
	}
	normalizePrototypes(prototypes)

	if len(prototypes) == 0 {
		logger.Warn("no prototypes loaded; classifier will start empty", "path", resolvedPath)
	}
	if len(prototypes) > 0 && k > len(prototypes) {
		k = len(prototypes)
	}

	return &prototypeClassifier{
		prototypes:   prototypes,
		k:            k,
		classes:      classes,
		usingExample: usingExample,
		modelPath:    resolvedPath,
		version:      "knn_v1_compact",
		logger:       logger,
	}, nil
}

// DequantizePrototype expands a quantized prototype to full precision.
func DequantizePrototype(proto compactPrototype) SpectroPrototype {
	features := make([]float64, len(proto.Features))
	for i, q := range proto.Features {
		features[i] = proto.Min + proto.Scale*float64(q)
	}
	return SpectroPrototype{ID: proto.ID, Label: proto.Label, Features: features}
}

// QuantizePrototype compresses a full-precision prototype to the compact
// uint8 encoding.
func QuantizePrototype(proto SpectroPrototype) compactPrototype {
	minV, maxV := 0.0, 0.0
	if len(proto.Features) > 0 {
		minV, maxV = proto.Features[0], proto.Features[0]
		for _, v := range proto.Features {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}

	scale := (maxV - minV) / 255.0
	quantized := make([]uint8, len(proto.Features))
	if scale > 0 {
		for i, v := range proto.Features {
			quantized[i] = uint8((v-minV)/scale + 0.5)
		}
	}
	return compactPrototype{
		ID:       proto.ID,
		Label:    proto.Label,
		Min:      minV,
		Scale:    scale,
		Features: quantized,
	}
}

// WriteCompactModel quantizes prototypes and writes them as a compact model
// file. Used by the model conversion tool.
func WriteCompactModel(path string, prototypes []SpectroPrototype) error {
	compact := make([]compactPrototype, len(prototypes))
	for i, proto := range prototypes {
		compact[i] = QuantizePrototype(proto)
	}
	data, err := json.MarshalIndent(compact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal compact prototypes: %w", err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write compact prototypes: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
