package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"stutter-detection/models"
	"stutter-detection/utils"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createAnalysesTable := `
    CREATE TABLE IF NOT EXISTS analyses (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        input_file TEXT NOT NULL,
        speaker TEXT,
        mode TEXT NOT NULL,
        dominant_type TEXT,
        event_count INTEGER NOT NULL DEFAULT 0,
        average_confidence REAL NOT NULL DEFAULT 0,
        has_events INTEGER NOT NULL DEFAULT 0,
        latency_ms REAL NOT NULL DEFAULT 0,
        report TEXT NOT NULL,
        narration TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
    CREATE INDEX IF NOT EXISTS idx_analyses_speaker ON analyses(speaker);
    `

	if _, err := db.Exec(createAnalysesTable); err != nil {
		return fmt.Errorf("error creating analyses table: %s", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StoreAnalysis persists one analysis run.
func (db *SQLiteClient) StoreAnalysis(record *models.AnalysisRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	reportJSON := record.Report
	if reportJSON == nil {
		reportJSON = json.RawMessage("{}")
	}

	hasEventsInt := 0
	if record.HasEvents {
		hasEventsInt = 1
	}

	result, err := db.db.Exec(`
		INSERT INTO analyses (
			timestamp, input_file, speaker, mode, dominant_type,
			event_count, average_confidence, has_events, latency_ms,
			report, narration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp,
		record.InputFile,
		record.Speaker,
		record.Mode,
		record.DominantType,
		record.EventCount,
		record.AverageConfidence,
		hasEventsInt,
		record.LatencyMs,
		string(reportJSON),
		record.Narration,
	)
	if err != nil {
		return fmt.Errorf("error storing analysis: %s", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// GetAllAnalyses retrieves all stored runs, newest first.
func (db *SQLiteClient) GetAllAnalyses() ([]models.AnalysisRecord, error) {
	return db.queryAnalyses(`
		SELECT id, timestamp, input_file, speaker, mode, dominant_type,
		       event_count, average_confidence, has_events, latency_ms,
		       report, narration
		FROM analyses
		ORDER BY timestamp DESC
	`)
}

// GetAnalysesBySpeaker retrieves runs for one speaker, newest first.
func (db *SQLiteClient) GetAnalysesBySpeaker(speaker string) ([]models.AnalysisRecord, error) {
	return db.queryAnalyses(`
		SELECT id, timestamp, input_file, speaker, mode, dominant_type,
		       event_count, average_confidence, has_events, latency_ms,
		       report, narration
		FROM analyses
		WHERE speaker = ?
		ORDER BY timestamp DESC
	`, speaker)
}

func (db *SQLiteClient) queryAnalyses(query string, args ...interface{}) ([]models.AnalysisRecord, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %s", err)
	}
	defer rows.Close()

	var records []models.AnalysisRecord
	for rows.Next() {
		var r models.AnalysisRecord
		var hasEventsInt int
		var reportJSON string
		var speaker, dominantType, narration sql.NullString

		err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.InputFile,
			&speaker,
			&r.Mode,
			&dominantType,
			&r.EventCount,
			&r.AverageConfidence,
			&hasEventsInt,
			&r.LatencyMs,
			&reportJSON,
			&narration,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning analysis: %s", err)
		}

		r.Speaker = speaker.String
		r.DominantType = dominantType.String
		r.Narration = narration.String
		r.HasEvents = hasEventsInt == 1
		r.Report = json.RawMessage(reportJSON)
		records = append(records, r)
	}
	return records, nil
}

func (db *SQLiteClient) TotalAnalyses() (int, error) {
	var count int
	err := db.db.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting analyses: %s", err)
	}
	return count, nil
}
