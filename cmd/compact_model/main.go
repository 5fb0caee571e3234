package main

// Converts a full-precision prototype model into the quantized compact
// format for deployments where model size matters.

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"stutter-detection/analysis"
)

func main() {
	input := flag.String("input", filepath.Join("analysis", "prototypes.json"),
		"Path to the full-precision prototype model")
	output := flag.String("output", "", "Output path (default <input>.compact.json)")
	flag.Parse()

	outPath := *output
	if outPath == "" {
		base := strings.TrimSuffix(*input, filepath.Ext(*input))
		outPath = base + ".compact.json"
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("failed to read model: %v", err)
	}

	var prototypes []analysis.SpectroPrototype
	if err := json.Unmarshal(data, &prototypes); err != nil {
		log.Fatalf("failed to parse model: %v", err)
	}
	if len(prototypes) == 0 {
		log.Fatal("model contains no prototypes")
	}

	if err := analysis.WriteCompactModel(outPath, prototypes); err != nil {
		log.Fatalf("failed to write compact model: %v", err)
	}

	inInfo, _ := os.Stat(*input)
	outInfo, _ := os.Stat(outPath)
	if inInfo != nil && outInfo != nil {
		log.Printf("Compacted %d prototypes: %d -> %d bytes", len(prototypes), inInfo.Size(), outInfo.Size())
	} else {
		log.Printf("Compacted %d prototypes to %s", len(prototypes), outPath)
	}
}
