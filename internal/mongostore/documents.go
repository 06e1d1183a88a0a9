package mongostore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

// feedbackDocument is the stored shape of a feedback event. Only the fields of the
// event's own type are set.
type feedbackDocument struct {
	ID        string    `bson:"_id"`
	EpisodeID *string   `bson:"episodeId,omitempty"`
	Page      string    `bson:"page"`
	Type      string    `bson:"type"`
	Value     string    `bson:"value,omitempty"`
	Text      string    `bson:"text,omitempty"`
	Action    string    `bson:"action,omitempty"`
	Embedding []float32 `bson:"embedding,omitempty"`
	UserID    *string   `bson:"userId,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toDocument(event *models.FeedbackEvent) (*feedbackDocument, error) {
	doc := &feedbackDocument{
		ID:        event.ID.String(),
		EpisodeID: event.EpisodeID,
		Page:      string(event.Page),
		Type:      string(event.Kind()),
		UserID:    event.UserID,
		Timestamp: event.Timestamp,
		CreatedAt: event.CreatedAt,
	}

	switch p := event.Payload.(type) {
	case models.Satisfaction:
		doc.Value = string(p.Value)
	case models.FreeText:
		doc.Text = p.Text
		doc.Embedding = p.Embedding
	case models.Behavior:
		doc.Action = p.Action
	default:
		return nil, fmt.Errorf("feedback document: unsupported payload %T", event.Payload)
	}

	return doc, nil
}

func (d *feedbackDocument) toEvent() (models.FeedbackEvent, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.FeedbackEvent{}, fmt.Errorf("feedback document id %q: %w", d.ID, err)
	}

	event := models.FeedbackEvent{
		ID:        id,
		EpisodeID: d.EpisodeID,
		Page:      models.Page(d.Page),
		UserID:    d.UserID,
		Timestamp: d.Timestamp.UTC(),
		CreatedAt: d.CreatedAt.UTC(),
	}

	switch models.FeedbackType(d.Type) {
	case models.FeedbackTypeSatisfaction:
		event.Payload = models.Satisfaction{Value: models.SatisfactionValue(d.Value)}
	case models.FeedbackTypeFreeText:
		event.Payload = models.FreeText{Text: d.Text, Embedding: d.Embedding}
	case models.FeedbackTypeBehavior:
		event.Payload = models.Behavior{Action: d.Action}
	default:
		return models.FeedbackEvent{}, fmt.Errorf("feedback document %s: unknown type %q", d.ID, d.Type)
	}

	return event, nil
}
