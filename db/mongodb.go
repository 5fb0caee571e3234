package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stutter-detection/models"
	"stutter-detection/utils"
)

type MongoClient struct {
	client   *mongo.Client
	database string
}

func NewMongoClient(uri string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	return &MongoClient{
		client:   client,
		database: utils.GetEnv("MONGO_DB", "stutter_detection"),
	}, nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoClient) analyses() *mongo.Collection {
	return m.client.Database(m.database).Collection("analyses")
}

// StoreAnalysis persists one analysis run.
func (m *MongoClient) StoreAnalysis(record *models.AnalysisRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if record.ID == 0 {
		record.ID = time.Now().UnixNano()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc := bson.M{
		"_id":                record.ID,
		"timestamp":          record.Timestamp,
		"input_file":         record.InputFile,
		"speaker":            record.Speaker,
		"mode":               record.Mode,
		"dominant_type":      record.DominantType,
		"event_count":        record.EventCount,
		"average_confidence": record.AverageConfidence,
		"has_events":         record.HasEvents,
		"latency_ms":         record.LatencyMs,
		"report":             string(record.Report),
		"narration":          record.Narration,
	}

	if _, err := m.analyses().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error storing analysis: %s", err)
	}
	return nil
}

// GetAllAnalyses retrieves all stored runs, newest first.
func (m *MongoClient) GetAllAnalyses() ([]models.AnalysisRecord, error) {
	return m.findAnalyses(bson.M{})
}

// GetAnalysesBySpeaker retrieves runs for one speaker, newest first.
func (m *MongoClient) GetAnalysesBySpeaker(speaker string) ([]models.AnalysisRecord, error) {
	return m.findAnalyses(bson.M{"speaker": speaker})
}

func (m *MongoClient) findAnalyses(filter bson.M) ([]models.AnalysisRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := m.analyses().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %s", err)
	}
	defer cursor.Close(ctx)

	var records []models.AnalysisRecord
	for cursor.Next(ctx) {
		var doc struct {
			ID                int64     `bson:"_id"`
			Timestamp         time.Time `bson:"timestamp"`
			InputFile         string    `bson:"input_file"`
			Speaker           string    `bson:"speaker"`
			Mode              string    `bson:"mode"`
			DominantType      string    `bson:"dominant_type"`
			EventCount        int       `bson:"event_count"`
			AverageConfidence float64   `bson:"average_confidence"`
			HasEvents         bool      `bson:"has_events"`
			LatencyMs         float64   `bson:"latency_ms"`
			Report            string    `bson:"report"`
			Narration         string    `bson:"narration"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding analysis: %s", err)
		}
		records = append(records, models.AnalysisRecord{
			ID:                doc.ID,
			Timestamp:         doc.Timestamp,
			InputFile:         doc.InputFile,
			Speaker:           doc.Speaker,
			Mode:              doc.Mode,
			DominantType:      doc.DominantType,
			EventCount:        doc.EventCount,
			AverageConfidence: doc.AverageConfidence,
			HasEvents:         doc.HasEvents,
			LatencyMs:         doc.LatencyMs,
			Report:            []byte(doc.Report),
			Narration:         doc.Narration,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyses: %s", err)
	}
	return records, nil
}

func (m *MongoClient) TotalAnalyses() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := m.analyses().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("error counting analyses: %s", err)
	}
	return int(count), nil
}
