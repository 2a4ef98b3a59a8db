package archive

import (
	"context"
	"fmt"
	"time"

	"chess-arena/internal/obslog"
	"chess-arena/internal/room"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const gamesCollection = "games"

type MongoStore struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		Client:   client,
		Database: client.Database(database),
	}

	go s.ensureIndexes()

	return s, nil
}

func (s *MongoStore) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "gameId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "whiteId", Value: 1}, {Key: "endedAt", Value: -1}}},
		{Keys: bson.D{{Key: "blackId", Value: 1}, {Key: "endedAt", Value: -1}}},
	}
	if _, err := s.Games().Indexes().CreateMany(ctx, models); err != nil {
		obslog.L().Warn("mongo_index_failed", zap.String("collection", gamesCollection), zap.Error(err))
		return
	}
	obslog.L().Debug("mongo_indexes_ensured", zap.String("collection", gamesCollection))
}

func (s *MongoStore) Games() *mongo.Collection {
	return s.Database.Collection(gamesCollection)
}

// SaveGame upserts by gameId so a retried write does not duplicate the game
func (s *MongoStore) SaveGame(ctx context.Context, sum room.Summary) error {
	rec := NewRecord(sum)
	_, err := s.Games().ReplaceOne(ctx,
		bson.M{"gameId": rec.GameID},
		rec,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.GameID, err)
	}
	return nil
}

// DeleteAll empties the games collection
func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.Games().DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
