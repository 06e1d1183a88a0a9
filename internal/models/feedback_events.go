package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
)

// EmbeddingDimensions is the length of every stored free-text embedding.
const EmbeddingDimensions = 1536

// Page is the site context a feedback event was submitted from.
type Page string

const (
	PageHome    Page = "home"
	PageEpisode Page = "episode"
)

// IsValid reports whether p is a known page.
func (p Page) IsValid() bool {
	return p == PageHome || p == PageEpisode
}

// FeedbackType discriminates the payload variant of a feedback event.
type FeedbackType string

const (
	FeedbackTypeSatisfaction FeedbackType = "satisfaction"
	FeedbackTypeFreeText     FeedbackType = "freeText"
	FeedbackTypeBehavior     FeedbackType = "behavior"
)

// IsValid reports whether t is a known feedback type.
func (t FeedbackType) IsValid() bool {
	switch t {
	case FeedbackTypeSatisfaction, FeedbackTypeFreeText, FeedbackTypeBehavior:
		return true
	default:
		return false
	}
}

// SatisfactionValue is the answer to "was this helpful?".
type SatisfactionValue string

const (
	SatisfactionHelpful    SatisfactionValue = "helpful"
	SatisfactionNotHelpful SatisfactionValue = "notHelpful"
)

// IsValid reports whether v is a known satisfaction value.
func (v SatisfactionValue) IsValid() bool {
	return v == SatisfactionHelpful || v == SatisfactionNotHelpful
}

// Payload is the type-specific body of a feedback event. Exactly one of
// Satisfaction, FreeText or Behavior.
type Payload interface {
	Kind() FeedbackType
	isPayload()
}

// Satisfaction is a helpful / not helpful vote.
type Satisfaction struct {
	Value SatisfactionValue
}

// FreeText is a free-form comment. Embedding is nil or exactly EmbeddingDimensions long.
type FreeText struct {
	Text      string
	Embedding []float32
}

// Behavior is a tracked UI action label.
type Behavior struct {
	Action string
}

func (Satisfaction) Kind() FeedbackType { return FeedbackTypeSatisfaction }
func (FreeText) Kind() FeedbackType     { return FeedbackTypeFreeText }
func (Behavior) Kind() FeedbackType     { return FeedbackTypeBehavior }

func (Satisfaction) isPayload() {}
func (FreeText) isPayload()     {}
func (Behavior) isPayload()     {}

// NewPayload builds the payload variant for kind from the loosely typed request fields.
// Fields that belong to other kinds are ignored.
func NewPayload(kind FeedbackType, value, text, action *string) (Payload, error) {
	switch kind {
	case FeedbackTypeSatisfaction:
		if value == nil || *value == "" {
			return nil, huberrors.NewValidationError("value", "value is required for satisfaction feedback")
		}

		v := SatisfactionValue(*value)
		if !v.IsValid() {
			return nil, huberrors.NewValidationError("value", "value must be one of: helpful, notHelpful")
		}

		return Satisfaction{Value: v}, nil
	case FeedbackTypeFreeText:
		if text == nil || strings.TrimSpace(*text) == "" {
			return nil, huberrors.NewValidationError("text", "text is required for freeText feedback")
		}

		return FreeText{Text: *text}, nil
	case FeedbackTypeBehavior:
		if action == nil || strings.TrimSpace(*action) == "" {
			return nil, huberrors.NewValidationError("action", "action is required for behavior feedback")
		}

		return Behavior{Action: *action}, nil
	default:
		return nil, huberrors.NewValidationError("type", "type must be one of: satisfaction, freeText, behavior")
	}
}

// FeedbackEvent is one user-submitted feedback signal. Events are append-only.
type FeedbackEvent struct {
	ID        uuid.UUID
	EpisodeID *string
	Page      Page
	Payload   Payload
	UserID    *string
	Timestamp time.Time
	CreatedAt time.Time
}

// Kind returns the feedback type derived from the payload variant.
func (e *FeedbackEvent) Kind() FeedbackType {
	if e.Payload == nil {
		return ""
	}

	return e.Payload.Kind()
}

// FreeText returns the free-text payload, if the event carries one.
func (e *FeedbackEvent) FreeText() (FreeText, bool) {
	ft, ok := e.Payload.(FreeText)

	return ft, ok
}

// HasEmbedding reports whether the event is free text with a stored embedding.
func (e *FeedbackEvent) HasEmbedding() bool {
	ft, ok := e.FreeText()

	return ok && len(ft.Embedding) > 0
}

// feedbackEventJSON is the flat wire shape of a feedback event.
// The embedding vector itself is never serialized.
type feedbackEventJSON struct {
	ID           uuid.UUID    `json:"id"`
	EpisodeID    *string      `json:"episodeId"`
	Page         Page         `json:"page"`
	Type         FeedbackType `json:"type"`
	Value        *string      `json:"value,omitempty"`
	Text         *string      `json:"text,omitempty"`
	Action       *string      `json:"action,omitempty"`
	UserID       *string      `json:"userId,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	CreatedAt    time.Time    `json:"createdAt"`
	HasEmbedding bool         `json:"hasEmbedding"`
}

// MarshalJSON flattens the payload variant into value/text/action.
func (e FeedbackEvent) MarshalJSON() ([]byte, error) {
	out := feedbackEventJSON{
		ID:           e.ID,
		EpisodeID:    e.EpisodeID,
		Page:         e.Page,
		Type:         e.Kind(),
		UserID:       e.UserID,
		Timestamp:    e.Timestamp,
		CreatedAt:    e.CreatedAt,
		HasEmbedding: e.HasEmbedding(),
	}

	switch p := e.Payload.(type) {
	case Satisfaction:
		v := string(p.Value)
		out.Value = &v
	case FreeText:
		out.Text = &p.Text
	case Behavior:
		out.Action = &p.Action
	case nil:
	default:
		return nil, fmt.Errorf("unknown feedback payload %T", p)
	}

	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the payload variant from the flat wire shape.
func (e *FeedbackEvent) UnmarshalJSON(data []byte) error {
	var in feedbackEventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	payload, err := NewPayload(in.Type, in.Value, in.Text, in.Action)
	if err != nil {
		return err
	}

	*e = FeedbackEvent{
		ID:        in.ID,
		EpisodeID: in.EpisodeID,
		Page:      in.Page,
		Payload:   payload,
		UserID:    in.UserID,
		Timestamp: in.Timestamp,
		CreatedAt: in.CreatedAt,
	}

	return nil
}

// CreateFeedbackRequest is the body of POST /api/feedback.
type CreateFeedbackRequest struct {
	EpisodeID *string    `json:"episodeId,omitempty" validate:"omitempty,min=1,max=255,no_null_bytes"`
	Page      string     `json:"page" validate:"required,oneof=home episode"`
	Type      string     `json:"type" validate:"required,oneof=satisfaction freeText behavior"`
	Value     *string    `json:"value,omitempty" validate:"omitempty,no_null_bytes"`
	Text      *string    `json:"text,omitempty" validate:"omitempty,max=10000,no_null_bytes"`
	Action    *string    `json:"action,omitempty" validate:"omitempty,max=255,no_null_bytes"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// CreateFeedbackResponse is returned after a successful ingestion.
type CreateFeedbackResponse struct {
	Success bool      `json:"success"`
	ID      uuid.UUID `json:"id"`
}

// Neighbor is one result of a nearest-neighbour query over free-text embeddings,
// ordered by the index's similarity ranking.
type Neighbor struct {
	ID    uuid.UUID
	Text  string
	Score float64
}
