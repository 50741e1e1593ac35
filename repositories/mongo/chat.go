package mongo

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chatDocument struct {
	ID            string    `bson:"_id"`
	StarterUserID string    `bson:"starterUserId"`
	Partners      []string  `bson:"partners"`
	NumMessages   int       `bson:"numMessages"`
	LastMessageID string    `bson:"_lastMessage,omitempty"`
	LastUpdate    time.Time `bson:"lastUpdate"`
	CreatedAt     time.Time `bson:"createdAt"`
}

func fromChat(chat domain.Chat) chatDocument {
	return chatDocument{
		ID:            chat.ID,
		StarterUserID: chat.StarterUserID,
		Partners:      chat.Partners,
		NumMessages:   chat.NumMessages,
		LastMessageID: chat.LastMessageID,
		LastUpdate:    chat.LastUpdate,
		CreatedAt:     chat.CreatedAt,
	}
}

func (d chatDocument) toChat() domain.Chat {
	partners := d.Partners
	if partners == nil {
		partners = []string{}
	}
	return domain.Chat{
		ID:            d.ID,
		StarterUserID: d.StarterUserID,
		Partners:      partners,
		NumMessages:   d.NumMessages,
		LastMessageID: d.LastMessageID,
		LastUpdate:    d.LastUpdate.UTC(),
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

type ChatRepository struct {
	coll *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{coll: db.Collection(ChatCollection)}
}

func memberFilter(userID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"starterUserId": userID},
		bson.M{"partners": userID},
	}}
}

func (r *ChatRepository) CreateChat(ctx context.Context, starterUserID string, partners []string) (domain.Chat, error) {
	if starterUserID == "" {
		return domain.Chat{}, errors.NewValidationError("userId", errors.KindNotValid)
	}
	chat := domain.NewChat(repositories.NewID(), starterUserID, partners, repositories.Now())
	if _, err := r.coll.InsertOne(ctx, fromChat(chat)); err != nil {
		return domain.Chat{}, errors.NewStoreError("create chat", err)
	}
	return chat, nil
}

func (r *ChatRepository) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	return r.findOne(ctx, "get chat", bson.M{"_id": chatID})
}

// FindMemberChat filters on id and membership in a single query.
func (r *ChatRepository) FindMemberChat(ctx context.Context, chatID, userID string) (domain.Chat, bool, error) {
	filter := memberFilter(userID)
	filter["_id"] = chatID
	chat, err := r.findOne(ctx, "find member chat", filter)
	if errors.Is(err, errors.ErrNotFound) {
		return domain.Chat{}, false, nil
	}
	if err != nil {
		return domain.Chat{}, false, err
	}
	return chat, true, nil
}

func (r *ChatRepository) FindByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	cur, err := r.coll.Find(ctx, memberFilter(userID))
	if err != nil {
		return nil, errors.NewStoreError("find chats by member", err)
	}
	defer cur.Close(ctx)

	chats := []domain.Chat{}
	for cur.Next(ctx) {
		var doc chatDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.NewStoreError("decode chat", err)
		}
		chats = append(chats, doc.toChat())
	}
	if err := cur.Err(); err != nil {
		return nil, errors.NewStoreError("find chats by member", err)
	}
	return chats, nil
}

// IncrementMessage is a single pipeline update, atomic on the chat document.
// Every expression of the $set stage sees the document as it was before the
// update, so the counter always moves while the pointer only moves forward.
func (r *ChatRepository) IncrementMessage(ctx context.Context, chatID, messageID string, activityTime time.Time) error {
	at := activityTime.UTC().Truncate(time.Millisecond)
	lastMessage := bson.D{{Key: "$ifNull", Value: bson.A{"$_lastMessage", ""}}}
	newer := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{lastMessage, ""}}},
		bson.D{{Key: "$gt", Value: bson.A{at, "$lastUpdate"}}},
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{at, "$lastUpdate"}}},
			bson.D{{Key: "$gt", Value: bson.A{bson.D{{Key: "$literal", Value: messageID}}, lastMessage}}},
		}}},
	}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "numMessages", Value: bson.D{{Key: "$add", Value: bson.A{"$numMessages", 1}}}},
			{Key: "_lastMessage", Value: bson.D{{Key: "$cond", Value: bson.A{newer, bson.D{{Key: "$literal", Value: messageID}}, "$_lastMessage"}}}},
			{Key: "lastUpdate", Value: bson.D{{Key: "$cond", Value: bson.A{newer, at, "$lastUpdate"}}}},
		}}},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	if err != nil {
		return errors.NewStoreError("increment message", err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// RepairCounters filters on the counters read by the caller, so an increment
// landing in between makes the repair a no-op instead of being overwritten.
func (r *ChatRepository) RepairCounters(ctx context.Context, chatID string, expected, repaired domain.Counters) (bool, error) {
	filter := bson.M{
		"_id":          chatID,
		"numMessages":  expected.NumMessages,
		"lastUpdate":   expected.LastUpdate.UTC(),
		"_lastMessage": lastMessageValue(expected.LastMessageID),
	}
	update := bson.M{"$set": bson.M{"numMessages": repaired.NumMessages, "lastUpdate": repaired.LastUpdate.UTC()}}
	if repaired.LastMessageID == "" {
		update["$unset"] = bson.M{"_lastMessage": ""}
	} else {
		update["$set"].(bson.M)["_lastMessage"] = repaired.LastMessageID
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, errors.NewStoreError("repair counters", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetChat(ctx, chatID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// lastMessageValue matches an absent pointer with null, which also matches a missing field.
func lastMessageValue(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func (r *ChatRepository) ListChatIDs(ctx context.Context) ([]string, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.NewStoreError("list chats", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.NewStoreError("decode chat id", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.NewStoreError("list chats", err)
	}
	return ids, nil
}

func (r *ChatRepository) findOne(ctx context.Context, op string, filter bson.M) (domain.Chat, error) {
	var doc chatDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Chat{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Chat{}, errors.NewStoreError(op, err)
	}
	return doc.toChat(), nil
}
