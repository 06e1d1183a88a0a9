// Package mongostore implements the feedback, episode and user settings stores on MongoDB,
// using an Atlas Vector Search index for neighbour queries.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

// Collection and index names.
const (
	FeedbackCollection     = "feedback"
	EpisodesCollection     = "episodes"
	UserSettingsCollection = "user_settings"

	// VectorIndexName is the Atlas Vector Search index over feedback.embedding
	// (1536 dims, cosine, with "type" as a filter field).
	VectorIndexName = "feedback_embedding_index"
)

const connectTimeout = 10 * time.Second

// Store is the MongoDB backend.
type Store struct {
	client   *mongo.Client
	feedback *mongo.Collection
	episodes *mongo.Collection
	settings *mongo.Collection
}

// Connect opens a client for uri, verifies it with a ping and binds the collections of database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())

		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return New(client, database), nil
}

// New binds a Store to an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)

	return &Store{
		client:   client,
		feedback: db.Collection(FeedbackCollection),
		episodes: db.Collection(EpisodesCollection),
		settings: db.Collection(UserSettingsCollection),
	}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}

	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}

	return nil
}

// EnsureIndexes creates the window indexes on the feedback collection. The vector search
// index is managed in Atlas.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.feedback.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "episodeId", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create feedback indexes: %w", err)
	}

	return nil
}

// Create inserts a feedback event.
func (s *Store) Create(ctx context.Context, event *models.FeedbackEvent) error {
	doc, err := toDocument(event)
	if err != nil {
		return err
	}

	if _, err := s.feedback.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert feedback event: %w", err)
	}

	return nil
}

// ListSince returns events with timestamp >= since, newest first, optionally for one episode.
func (s *Store) ListSince(ctx context.Context, since time.Time, episodeID *string) ([]models.FeedbackEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.feedback.Find(ctx, listSinceFilter(since, episodeID), opts)
	if err != nil {
		return nil, fmt.Errorf("list feedback events: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeFeedbackEvents(ctx, cursor)
}

// NearestFreeText runs a $vectorSearch over free-text embeddings, excluding excludeID and blank texts.
func (s *Store) NearestFreeText(
	ctx context.Context, vector []float32, excludeID uuid.UUID, numCandidates, limit int,
) ([]models.Neighbor, error) {
	cursor, err := s.feedback.Aggregate(ctx, neighborPipeline(vector, excludeID, numCandidates, limit))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeNeighbors(ctx, cursor, limit)
}

// GetSummaries returns episode summaries keyed by id. Unknown ids are absent.
func (s *Store) GetSummaries(ctx context.Context, ids []string) (map[string]models.EpisodeSummary, error) {
	out := make(map[string]models.EpisodeSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := s.episodes.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("get episode summaries: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			ID       string `bson:"_id"`
			Title    string `bson:"title"`
			Category string `bson:"category"`
			Slug     string `bson:"slug"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode episode: %w", err)
		}

		out[doc.ID] = models.EpisodeSummary{ID: doc.ID, Title: doc.Title, Category: doc.Category, Slug: doc.Slug}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating episodes: %w", err)
	}

	return out, nil
}

// GetEmbeddingAPIKey returns the user's embedding API key, "" when unset, or a NotFoundError.
func (s *Store) GetEmbeddingAPIKey(ctx context.Context, userID string) (string, error) {
	var doc struct {
		EmbeddingAPIKey string `bson:"embeddingApiKey"`
	}

	err := s.settings.FindOne(ctx, bson.M{"userId": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", huberrors.NewNotFoundError("user settings", "user settings not found")
		}

		return "", fmt.Errorf("get embedding api key: %w", err)
	}

	return doc.EmbeddingAPIKey, nil
}

// decodeFeedbackEvents drains cursor into events. Documents that are not feedback events
// (foreign _id types, unknown type values) are logged and skipped so a single stray document
// cannot fail the whole window.
func decodeFeedbackEvents(ctx context.Context, cursor *mongo.Cursor) ([]models.FeedbackEvent, error) {
	events := make([]models.FeedbackEvent, 0)

	for cursor.Next(ctx) {
		var doc feedbackDocument
		if err := cursor.Decode(&doc); err != nil {
			slog.WarnContext(ctx, "skipping undecodable feedback document", "id", cursor.Current.Lookup("_id").String(), "error", err)

			continue
		}

		event, err := doc.toEvent()
		if err != nil {
			slog.WarnContext(ctx, "skipping invalid feedback document", "error", err)

			continue
		}

		events = append(events, event)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedback events: %w", err)
	}

	return events, nil
}

// decodeNeighbors drains a $vectorSearch cursor. Hits without a UUID _id cannot belong to
// any clustered event and are skipped.
func decodeNeighbors(ctx context.Context, cursor *mongo.Cursor, limit int) ([]models.Neighbor, error) {
	neighbors := make([]models.Neighbor, 0, limit)

	for cursor.Next(ctx) {
		var hit struct {
			ID    any     `bson:"_id"`
			Text  string  `bson:"text"`
			Score float64 `bson:"score"`
		}
		if err := cursor.Decode(&hit); err != nil {
			return nil, fmt.Errorf("decode neighbor: %w", err)
		}

		raw, _ := hit.ID.(string)

		id, err := uuid.Parse(raw)
		if err != nil {
			slog.DebugContext(ctx, "skipping neighbor without uuid id", "id", hit.ID)

			continue
		}

		neighbors = append(neighbors, models.Neighbor{ID: id, Text: hit.Text, Score: hit.Score})
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating neighbors: %w", err)
	}

	return neighbors, nil
}

func listSinceFilter(since time.Time, episodeID *string) bson.M {
	filter := bson.M{"timestamp": bson.M{"$gte": since}}
	if episodeID != nil && *episodeID != "" {
		filter["episodeId"] = *episodeID
	}

	return filter
}

// neighborPipeline asks the index for one extra hit so that dropping the seed still leaves limit results.
func neighborPipeline(vector []float32, excludeID uuid.UUID, numCandidates, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: VectorIndexName},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: max(numCandidates, limit+1)},
			{Key: "limit", Value: limit + 1},
			{Key: "filter", Value: bson.D{{Key: "type", Value: string(models.FeedbackTypeFreeText)}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: excludeID.String()}}},
			{Key: "text", Value: bson.D{{Key: "$regex", Value: `\S`}}},
		}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "text", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}
