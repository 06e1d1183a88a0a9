package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildListSinceQuery(t *testing.T) {
	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("window only", func(t *testing.T) {
		query, args := buildListSinceQuery(since, nil)

		assert.Contains(t, query, `WHERE "timestamp" >= $1`)
		assert.NotContains(t, query, "episode_id =")
		assert.Contains(t, query, `ORDER BY "timestamp" DESC, id DESC`)
		assert.Equal(t, []any{since}, args)
	})

	t.Run("episode filter", func(t *testing.T) {
		episode := "ep-7"
		query, args := buildListSinceQuery(since, &episode)

		assert.Contains(t, query, "AND episode_id = $2")
		assert.Equal(t, []any{since, "ep-7"}, args)
	})

	t.Run("empty episode is ignored", func(t *testing.T) {
		episode := ""
		query, args := buildListSinceQuery(since, &episode)

		assert.NotContains(t, query, "episode_id =")
		assert.Len(t, args, 1)
	})
}
