// Package repository provides PostgreSQL data access for feedback events, episodes and user settings.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

const feedbackEventColumns = `id, episode_id, page, type, value, text, action, embedding, user_id, "timestamp", created_at`

// FeedbackEventsRepository handles data access for the append-only feedback_events table.
type FeedbackEventsRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackEventsRepository creates a new feedback events repository.
// The pool must have the pgvector types registered.
func NewFeedbackEventsRepository(db *pgxpool.Pool) *FeedbackEventsRepository {
	return &FeedbackEventsRepository{db: db}
}

// Ping checks database connectivity.
func (r *FeedbackEventsRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	return nil
}

// Create inserts a feedback event.
func (r *FeedbackEventsRepository) Create(ctx context.Context, event *models.FeedbackEvent) error {
	var value, text, action *string

	var embedding *pgvector.Vector

	switch p := event.Payload.(type) {
	case models.Satisfaction:
		v := string(p.Value)
		value = &v
	case models.FreeText:
		text = &p.Text
		if len(p.Embedding) > 0 {
			vec := pgvector.NewVector(p.Embedding)
			embedding = &vec
		}
	case models.Behavior:
		action = &p.Action
	default:
		return fmt.Errorf("create feedback event: unsupported payload %T", event.Payload)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO feedback_events (`+feedbackEventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.EpisodeID, string(event.Page), string(event.Kind()),
		value, text, action, embedding, event.UserID, event.Timestamp, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback event: %w", err)
	}

	return nil
}

// ListSince returns events with timestamp >= since, newest first, optionally for one episode.
func (r *FeedbackEventsRepository) ListSince(
	ctx context.Context, since time.Time, episodeID *string,
) ([]models.FeedbackEvent, error) {
	query, args := buildListSinceQuery(since, episodeID)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback events: %w", err)
	}
	defer rows.Close()

	events := make([]models.FeedbackEvent, 0)

	for rows.Next() {
		event, err := scanFeedbackEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedback events: %w", err)
	}

	return events, nil
}

// NearestFreeText returns up to limit free-text events closest to vector by cosine distance,
// excluding excludeID and blank texts. numCandidates sets the HNSW search breadth.
func (r *FeedbackEventsRepository) NearestFreeText(
	ctx context.Context, vector []float32, excludeID uuid.UUID, numCandidates, limit int,
) ([]models.Neighbor, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin neighbor search: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET does not accept bind parameters; numCandidates is an int.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", max(numCandidates, limit))); err != nil {
		return nil, fmt.Errorf("set hnsw.ef_search: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, text, 1 - (embedding <=> $1) AS score
		FROM feedback_events
		WHERE type = 'freeText'
		  AND embedding IS NOT NULL
		  AND id <> $2
		  AND btrim(text) <> ''
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("neighbor search: %w", err)
	}
	defer rows.Close()

	neighbors := make([]models.Neighbor, 0, limit)

	for rows.Next() {
		var n models.Neighbor
		if err := rows.Scan(&n.ID, &n.Text, &n.Score); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}

		neighbors = append(neighbors, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating neighbors: %w", err)
	}

	return neighbors, nil
}

// buildListSinceQuery builds the window query with its positional arguments.
func buildListSinceQuery(since time.Time, episodeID *string) (string, []any) {
	var b strings.Builder

	b.WriteString(`SELECT ` + feedbackEventColumns + ` FROM feedback_events WHERE "timestamp" >= $1`)

	args := []any{since}

	if episodeID != nil && *episodeID != "" {
		args = append(args, *episodeID)
		fmt.Fprintf(&b, " AND episode_id = $%d", len(args))
	}

	b.WriteString(` ORDER BY "timestamp" DESC, id DESC`)

	return b.String(), args
}

func scanFeedbackEvent(row pgx.Row) (models.FeedbackEvent, error) {
	var (
		event               models.FeedbackEvent
		page, kind          string
		value, text, action *string
		embedding           *pgvector.Vector
	)

	err := row.Scan(
		&event.ID, &event.EpisodeID, &page, &kind,
		&value, &text, &action, &embedding, &event.UserID, &event.Timestamp, &event.CreatedAt,
	)
	if err != nil {
		return models.FeedbackEvent{}, fmt.Errorf("scan feedback event: %w", err)
	}

	event.Page = models.Page(page)

	switch models.FeedbackType(kind) {
	case models.FeedbackTypeSatisfaction:
		event.Payload = models.Satisfaction{Value: models.SatisfactionValue(deref(value))}
	case models.FeedbackTypeFreeText:
		ft := models.FreeText{Text: deref(text)}
		if embedding != nil {
			ft.Embedding = embedding.Slice()
		}

		event.Payload = ft
	case models.FeedbackTypeBehavior:
		event.Payload = models.Behavior{Action: deref(action)}
	default:
		return models.FeedbackEvent{}, fmt.Errorf("scan feedback event %s: unknown type %q", event.ID, kind)
	}

	return event, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
