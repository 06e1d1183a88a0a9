package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

func TestFeedbackDocumentRoundTrip(t *testing.T) {
	ep := "ep-3"
	user := "user-9"
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	payloads := []models.Payload{
		models.Satisfaction{Value: models.SatisfactionNotHelpful},
		models.FreeText{Text: "too fast", Embedding: []float32{0.5, 0.25}},
		models.FreeText{Text: "no vector"},
		models.Behavior{Action: "share"},
	}

	for _, payload := range payloads {
		event := &models.FeedbackEvent{
			ID: uuid.Must(uuid.NewV7()), EpisodeID: &ep, Page: models.PageEpisode, Payload: payload,
			UserID: &user, Timestamp: now, CreatedAt: now,
		}

		doc, err := toDocument(event)
		require.NoError(t, err)
		assert.Equal(t, string(payload.Kind()), doc.Type)

		raw, err := bson.Marshal(doc)
		require.NoError(t, err)

		var decoded feedbackDocument
		require.NoError(t, bson.Unmarshal(raw, &decoded))

		got, err := decoded.toEvent()
		require.NoError(t, err)
		assert.Equal(t, *event, got)
	}
}

func TestFeedbackDocumentUnknownType(t *testing.T) {
	doc := feedbackDocument{ID: uuid.NewString(), Type: "rating"}

	_, err := doc.toEvent()
	require.Error(t, err)
}

func TestNeighborPipeline(t *testing.T) {
	exclude := uuid.Must(uuid.NewV7())
	pipeline := neighborPipeline([]float32{1, 0}, exclude, 50, 10)

	require.Len(t, pipeline, 4)

	search := pipeline[0][0]
	assert.Equal(t, "$vectorSearch", search.Key)

	params, ok := search.Value.(bson.D)
	require.True(t, ok)

	got := params.Map()
	assert.Equal(t, VectorIndexName, got["index"])
	assert.Equal(t, 50, got["numCandidates"])
	assert.Equal(t, 11, got["limit"])

	match, ok := pipeline[1][0].Value.(bson.D)
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "$ne", Value: exclude.String()}}, match.Map()["_id"])

	assert.Equal(t, "$limit", pipeline[2][0].Key)
	assert.Equal(t, 10, pipeline[2][0].Value)
}

func TestListSinceFilter(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.M{"timestamp": bson.M{"$gte": since}}, listSinceFilter(since, nil))

	ep := "ep-1"
	assert.Equal(t, bson.M{"timestamp": bson.M{"$gte": since}, "episodeId": "ep-1"}, listSinceFilter(since, &ep))
}

func TestDecodeFeedbackEvents_SkipsForeignDocuments(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	valid := uuid.Must(uuid.NewV7())

	cursor, err := mongo.NewCursorFromDocuments([]any{
		bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "page", Value: "home"}, {Key: "type", Value: "satisfaction"}, {Key: "value", Value: "helpful"},
			{Key: "timestamp", Value: now}, {Key: "createdAt", Value: now},
		},
		bson.D{
			{Key: "_id", Value: "not-a-uuid"},
			{Key: "page", Value: "home"}, {Key: "type", Value: "behavior"}, {Key: "action", Value: "share"},
			{Key: "timestamp", Value: now}, {Key: "createdAt", Value: now},
		},
		bson.D{
			{Key: "_id", Value: valid.String()},
			{Key: "page", Value: "episode"}, {Key: "type", Value: "freeText"}, {Key: "text", Value: "great tip"},
			{Key: "timestamp", Value: now}, {Key: "createdAt", Value: now},
		},
	}, nil, nil)
	require.NoError(t, err)

	events, err := decodeFeedbackEvents(ctx, cursor)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, valid, events[0].ID)
	assert.Equal(t, models.FeedbackTypeFreeText, events[0].Kind())
}

func TestDecodeNeighbors_SkipsNonUUIDIDs(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())

	cursor, err := mongo.NewCursorFromDocuments([]any{
		bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "text", Value: "legacy"}, {Key: "score", Value: 0.99}},
		bson.D{{Key: "_id", Value: id.String()}, {Key: "text", Value: "close"}, {Key: "score", Value: 0.9}},
	}, nil, nil)
	require.NoError(t, err)

	neighbors, err := decodeNeighbors(ctx, cursor, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.Neighbor{{ID: id, Text: "close", Score: 0.9}}, neighbors)
}
