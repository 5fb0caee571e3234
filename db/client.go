package db

import (
	"fmt"
	"strings"

	"stutter-detection/models"
	"stutter-detection/utils"
)

// Client persists analysis runs and serves them back for review.
type Client interface {
	Close() error
	StoreAnalysis(record *models.AnalysisRecord) error
	GetAllAnalyses() ([]models.AnalysisRecord, error)
	GetAnalysesBySpeaker(speaker string) ([]models.AnalysisRecord, error)
	TotalAnalyses() (int, error)
}

// NewDBClient selects the storage backend from the DB_TYPE environment
// variable: sqlite (default) or mongo.
func NewDBClient() (Client, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		dsn := utils.GetEnv("SQLITE_DSN", "storage/analyses.db")
		return NewSQLiteClient(dsn)
	case "mongo", "mongodb":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		return NewMongoClient(uri)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
