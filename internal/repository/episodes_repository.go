package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

// EpisodesRepository reads episode summaries. Episodes are owned by the content system;
// this service never writes them.
type EpisodesRepository struct {
	db *pgxpool.Pool
}

// NewEpisodesRepository creates a new episodes repository.
func NewEpisodesRepository(db *pgxpool.Pool) *EpisodesRepository {
	return &EpisodesRepository{db: db}
}

// GetSummaries returns the summaries of the given episodes keyed by id. Unknown ids are absent.
func (r *EpisodesRepository) GetSummaries(ctx context.Context, ids []string) (map[string]models.EpisodeSummary, error) {
	out := make(map[string]models.EpisodeSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, title, category, slug FROM episodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get episode summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.EpisodeSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Category, &s.Slug); err != nil {
			return nil, fmt.Errorf("scan episode summary: %w", err)
		}

		out[s.ID] = s
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating episode summaries: %w", err)
	}

	return out, nil
}
