package mongo

import (
	"context"
	"errors"
	"time"

	"ontrak/internal/domain"
	"ontrak/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const exportCollectionName = "report_exports"

// mongoExportRepository implements repository.ExportRepository
type mongoExportRepository struct {
	collection *mongo.Collection
}

// NewMongoExportRepository creates a new ReportExport repository.
func NewMongoExportRepository(db *mongo.Database) repository.ExportRepository {
	return &mongoExportRepository{
		collection: db.Collection(exportCollectionName),
	}
}

// Create inserts metadata for one archived report.
func (r *mongoExportRepository) Create(ctx context.Context, export *domain.ReportExport) (primitive.ObjectID, error) {
	if export.RequestedBy == primitive.NilObjectID || export.ObjectKey == "" {
		return primitive.NilObjectID, errors.New("export requires requestedBy and objectKey")
	}
	export.ID = primitive.NewObjectID()
	export.CreatedAt = time.Now().UTC()

	result, err := r.collection.InsertOne(ctx, export)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted export ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single export record.
func (r *mongoExportRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ReportExport, error) {
	var export domain.ReportExport
	filter := bson.M{"_id": id}
	err := r.collection.FindOne(ctx, filter).Decode(&export)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &export, nil
}

// GetByRequester retrieves a user's archived exports, newest first.
func (r *mongoExportRepository) GetByRequester(ctx context.Context, userID primitive.ObjectID) ([]domain.ReportExport, error) {
	var exports []domain.ReportExport
	filter := bson.M{"requestedBy": userID}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &exports); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return exports, nil
}

// Delete removes an export record owned by the requester.
func (r *mongoExportRepository) Delete(ctx context.Context, id primitive.ObjectID, requestedBy primitive.ObjectID) error {
	filter := bson.M{
		"_id":         id,
		"requestedBy": requestedBy,
	}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureExportIndexes creates necessary indexes. Call during startup.
func EnsureExportIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "requestedBy", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
