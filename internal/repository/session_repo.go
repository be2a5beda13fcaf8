package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"aireadiness/internal/model"
)

// SessionRepo stores the durable per-session record read by the results
// page: lifecycle status, answered-question transcript, and the
// partial-completion marker written on skip.
type SessionRepo interface {
	Upsert(ctx context.Context, record *model.SessionRecord) error
	AppendAnswer(ctx context.Context, sessionID string, answer *model.AnsweredQuestion) error
	MarkCompleted(ctx context.Context, sessionID string) error
	MarkPartial(ctx context.Context, sessionID string) error
	GetBySessionID(ctx context.Context, sessionID string) (*model.SessionRecord, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(client *mongo.Client) SessionRepo {
	db := client.Database("aireadiness")
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) Upsert(ctx context.Context, record *model.SessionRecord) error {
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now()
	}
	if record.Status == "" {
		record.Status = model.SessionStarted
	}

	update := bson.M{
		"$set": bson.M{
			"companyName": record.CompanyName,
			"industry":    record.Industry,
		},
		"$setOnInsert": bson.M{
			"sessionId":     record.SessionID,
			"status":        record.Status,
			"answeredCount": 0,
			"startedAt":     record.StartedAt,
		},
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"sessionId": record.SessionID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *sessionRepo) AppendAnswer(ctx context.Context, sessionID string, answer *model.AnsweredQuestion) error {
	if answer.AnsweredAt.IsZero() {
		answer.AnsweredAt = time.Now()
	}

	update := bson.M{
		"$push": bson.M{"answers": answer},
		"$inc":  bson.M{"answeredCount": 1},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"sessionId": sessionID}, update)
	return err
}

func (r *sessionRepo) MarkCompleted(ctx context.Context, sessionID string) error {
	return r.setStatus(ctx, sessionID, model.SessionCompleted)
}

func (r *sessionRepo) MarkPartial(ctx context.Context, sessionID string) error {
	return r.setStatus(ctx, sessionID, model.SessionPartial)
}

func (r *sessionRepo) setStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":      status,
			"completedAt": now,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"sessionId": sessionID}, update)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
