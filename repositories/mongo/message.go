package mongo

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageDocument struct {
	ID           string    `bson:"_id"`
	ChatID       string    `bson:"_chat"`
	AuthorUserID string    `bson:"authorUserId"`
	Body         string    `bson:"message"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func (d messageDocument) toMessage() domain.Message {
	return domain.Message{
		ID:           d.ID,
		ChatID:       d.ChatID,
		AuthorUserID: d.AuthorUserID,
		Body:         d.Body,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{coll: db.Collection(MessageCollection)}
}

func (r *MessageRepository) AppendMessage(ctx context.Context, chatID, authorUserID, body string, createdAt time.Time) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Message{}, errors.NewValidationError("message", errors.KindRequired)
	}
	doc := messageDocument{
		ID:           repositories.NewID(),
		ChatID:       chatID,
		AuthorUserID: authorUserID,
		Body:         body,
		// BSON dates carry milliseconds
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return domain.Message{}, errors.NewStoreError("append message", err)
	}
	return doc.toMessage(), nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	var doc messageDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Message{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, errors.NewStoreError("get message", err)
	}
	return doc.toMessage(), nil
}

func (r *MessageRepository) GetMessages(ctx context.Context, messageIDs []string) ([]domain.Message, error) {
	if len(messageIDs) == 0 {
		return []domain.Message{}, nil
	}
	return r.find(ctx, "get messages", bson.M{"_id": bson.M{"$in": messageIDs}}, options.Find())
}

func (r *MessageRepository) FindByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return r.find(ctx, "find messages by chat", bson.M{"_chat": chatID}, opts)
}

func (r *MessageRepository) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]domain.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.NewStoreError(op, err)
	}
	defer cur.Close(ctx)

	messages := []domain.Message{}
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.NewStoreError(op, err)
		}
		messages = append(messages, doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, errors.NewStoreError(op, err)
	}
	return messages, nil
}
