// Package mongo stores chats and messages in MongoDB.
// Collections and field names follow the historical schema of the chat service
// (chats: starterUserId, partners, numMessages, _lastMessage, lastUpdate;
// chatmessages: message, authorUserId, _chat, createdAt).
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ChatCollection    = "chats"
	MessageCollection = "chatmessages"
	connectTimeout    = 10 * time.Second
)

// NewClient connects to uri and checks the server answers.
// The caller owns the client and must Disconnect it.
func NewClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(MessageCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "_chat", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("chat_created_idx"),
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	_, err = db.Collection(ChatCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "starterUserId", Value: 1}}, Options: options.Index().SetName("starter_idx")},
		{Keys: bson.D{{Key: "partners", Value: 1}}, Options: options.Index().SetName("partners_idx")},
	})
	if err != nil {
		return fmt.Errorf("create chat indexes: %w", err)
	}
	return nil
}
