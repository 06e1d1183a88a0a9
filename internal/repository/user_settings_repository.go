package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
)

// UserSettingsRepository reads per-user settings.
type UserSettingsRepository struct {
	db *pgxpool.Pool
}

// NewUserSettingsRepository creates a new user settings repository.
func NewUserSettingsRepository(db *pgxpool.Pool) *UserSettingsRepository {
	return &UserSettingsRepository{db: db}
}

// GetEmbeddingAPIKey returns the user's embedding API key, "" when the user has none,
// or a NotFoundError when the user has no settings row.
func (r *UserSettingsRepository) GetEmbeddingAPIKey(ctx context.Context, userID string) (string, error) {
	var key *string

	err := r.db.QueryRow(ctx, `SELECT embedding_api_key FROM user_settings WHERE user_id = $1`, userID).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", huberrors.NewNotFoundError("user settings", "user settings not found")
		}

		return "", fmt.Errorf("get embedding api key: %w", err)
	}

	return deref(key), nil
}
