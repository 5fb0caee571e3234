package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stutter-detection/models"
	"stutter-detection/utils"
)

var (
	historyFile = "analyses.json"
	mu          sync.RWMutex
)

// loadRecordsInternal loads all records from the JSON file (without lock)
func loadRecordsInternal() ([]models.AnalysisRecord, error) {
	filePath := filepath.Join("storage", historyFile)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return []models.AnalysisRecord{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading history file: %v", err)
	}

	if len(data) == 0 {
		return []models.AnalysisRecord{}, nil
	}

	var records []models.AnalysisRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("error unmarshaling history: %v", err)
	}
	return records, nil
}

// LoadRecords loads all stored analysis records from the JSON file.
func LoadRecords() ([]models.AnalysisRecord, error) {
	mu.RLock()
	defer mu.RUnlock()
	return loadRecordsInternal()
}

// SaveRecord appends a new analysis record to the JSON file. Used as the
// lightweight store when no database is configured.
func SaveRecord(record *models.AnalysisRecord) error {
	mu.Lock()
	defer mu.Unlock()

	records, err := loadRecordsInternal()
	if err != nil {
		return err
	}

	if record.ID == 0 {
		record.ID = time.Now().UnixNano()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	records = append(records, *record)

	filePath := filepath.Join("storage", historyFile)
	dir := filepath.Dir(filePath)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling history: %v", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("error writing history file: %v", err)
	}
	return nil
}
