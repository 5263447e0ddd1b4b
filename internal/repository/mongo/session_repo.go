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

const sessionCollectionName = "sessions"

// mongoSessionRepository implements repository.SessionRepository
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new ScheduleSession repository.
func NewMongoSessionRepository(db *mongo.Database) repository.SessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

// Create inserts a new schedule session.
func (r *mongoSessionRepository) Create(ctx context.Context, session *domain.ScheduleSession) (primitive.ObjectID, error) {
	if session.TemplateID == primitive.NilObjectID || session.TrainerID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("session requires templateId and trainerId")
	}
	session.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Version = 1

	result, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted session ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single session by its ID.
func (r *mongoSessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ScheduleSession, error) {
	var session domain.ScheduleSession
	filter := bson.M{"_id": id}
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetActiveByTrainer retrieves the trainer's active sessions, newest first.
// The single-active invariant means this is normally zero or one document,
// but StartDay sweeps the whole list to enforce it.
func (r *mongoSessionRepository) GetActiveByTrainer(ctx context.Context, trainerID primitive.ObjectID) ([]domain.ScheduleSession, error) {
	var sessions []domain.ScheduleSession
	filter := bson.M{
		"trainerId": trainerID,
		"status":    domain.SessionActive,
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetActive retrieves every active session across all trainers (admin view).
func (r *mongoSessionRepository) GetActive(ctx context.Context) ([]domain.ScheduleSession, error) {
	var sessions []domain.ScheduleSession
	filter := bson.M{"status": domain.SessionActive}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// FindCompleted retrieves completed sessions, optionally narrowed by
// trainer, template, day, and creation date. Used by the statistics engine,
// which never mutates what it reads.
func (r *mongoSessionRepository) FindCompleted(ctx context.Context, query repository.SessionQuery) ([]domain.ScheduleSession, error) {
	var sessions []domain.ScheduleSession
	filter := bson.M{"status": domain.SessionCompleted}
	if query.TrainerID != nil {
		filter["trainerId"] = *query.TrainerID
	}
	if query.TemplateID != nil {
		filter["templateId"] = *query.TemplateID
	}
	if query.Day > 0 {
		filter["day"] = query.Day
	}
	if query.Since != nil {
		filter["createdAt"] = bson.M{"$gte": *query.Since}
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateVersioned replaces the session document if and only if the stored
// version matches the version the caller loaded. A matched-but-stale write
// returns ErrVersionConflict so concurrent read-modify-write races surface
// instead of silently last-write-wins.
func (r *mongoSessionRepository) UpdateVersioned(ctx context.Context, session *domain.ScheduleSession) error {
	if session.ID == primitive.NilObjectID {
		return errors.New("session ID is required for update")
	}

	loadedVersion := session.Version
	session.Version = loadedVersion + 1
	session.UpdatedAt = time.Now().UTC()

	filter := bson.M{
		"_id":     session.ID,
		"version": loadedVersion,
	}

	result, err := r.collection.ReplaceOne(ctx, filter, session)
	if err != nil {
		session.Version = loadedVersion // Restore so the caller can reload and retry
		return err
	}
	if result.MatchedCount == 0 {
		session.Version = loadedVersion
		// Distinguish a missing document from a stale version.
		count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": session.ID})
		if countErr != nil {
			return countErr
		}
		if count == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}
	return nil
}

// EnsureSessionIndexes creates necessary indexes. Call during startup.
func EnsureSessionIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Main mutation lookup: a trainer's active session
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Statistics scan: completed sessions in a date window
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "templateId", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
