package database

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeMigrationCloser struct {
	sourceErr, dbErr error
	calls            int
}

func (f *fakeMigrationCloser) Close() (error, error) { //nolint:revive,stylecheck // mirrors *migrate.Migrate
	f.calls++

	return f.sourceErr, f.dbErr
}

func TestCloseMigrations(t *testing.T) {
	tests := []struct {
		name      string
		closer    *fakeMigrationCloser
		wantInLog []string
	}{
		{name: "clean close logs nothing", closer: &fakeMigrationCloser{}},
		{
			name:      "source error logged",
			closer:    &fakeMigrationCloser{sourceErr: errors.New("iofs closed twice")},
			wantInLog: []string{"failed to close source", "iofs closed twice"},
		},
		{
			name:      "both errors logged",
			closer:    &fakeMigrationCloser{sourceErr: errors.New("src"), dbErr: errors.New("conn reset")},
			wantInLog: []string{"failed to close source", "failed to close database driver", "conn reset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			closeMigrations(tt.closer, slog.New(slog.NewTextHandler(&buf, nil)))

			assert.Equal(t, 1, tt.closer.calls)

			if len(tt.wantInLog) == 0 {
				assert.Empty(t, buf.String())
			}

			for _, want := range tt.wantInLog {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
