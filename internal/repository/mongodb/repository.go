package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

const consumptionCollection = "consumptions"

// Repository defines the consumption archive operations.
type Repository interface {
	SaveConsumption(ctx context.Context, record models.ConsumptionRecord) error
	ListConsumptions(ctx context.Context, from, to time.Time) ([]models.ConsumptionRecord, error)
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// Connect dials MongoDB and returns a repository on the given database.
func Connect(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return NewMongoDBRepository(client, dbName, logger), nil
}

// NewMongoDBRepository wraps an already connected client.
func NewMongoDBRepository(client *mongo.Client, dbName string, logger *zap.Logger) *MongoDBRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoDBRepository{
		client:     client,
		collection: client.Database(dbName).Collection(consumptionCollection),
		logger:     logger,
	}
}

// SaveConsumption archives a saved consumption.
func (r *MongoDBRepository) SaveConsumption(ctx context.Context, record models.ConsumptionRecord) error {
	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert consumption %s: %w", record.RecordID, err)
	}
	r.logger.Debug("consumption archived", zap.String("record_id", record.RecordID))
	return nil
}

// ListConsumptions returns the consumptions whose posting date falls in
// [from, to), oldest first.
func (r *MongoDBRepository) ListConsumptions(ctx context.Context, from, to time.Time) ([]models.ConsumptionRecord, error) {
	filter := bson.M{"posting_date": bson.M{"$gte": from, "$lt": to}}
	opts := options.Find().SetSort(bson.D{{Key: "posting_date", Value: 1}, {Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumptions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.ConsumptionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode consumptions: %w", err)
	}
	return records, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
