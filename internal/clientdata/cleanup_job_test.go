package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJob_KeepsRecentlyExpiredEntries(t *testing.T) {
	repo := newTestRepo(t)
	job := NewCleanupJob(repo, 24*time.Hour, zerolog.Nop())
	assert.Equal(t, "client_data_cleanup", job.Name())

	require.NoError(t, repo.Store(TablePrices, "ANCIENT", quote{Price: "1"}, -48*time.Hour))
	require.NoError(t, repo.Store(TablePrices, "STALE", quote{Price: "2"}, -time.Hour))
	require.NoError(t, repo.Store(TablePrices, "FRESH", quote{Price: "3"}, time.Hour))

	require.NoError(t, job.Run())

	for key, want := range map[string]bool{"ANCIENT": false, "STALE": true, "FRESH": true} {
		found, err := repo.Get(TablePrices, key, &quote{})
		require.NoError(t, err)
		assert.Equal(t, want, found, key)
	}
}

func TestCleanupJob_DefaultRetention(t *testing.T) {
	job := NewCleanupJob(newTestRepo(t), 0, zerolog.Nop())
	assert.Equal(t, StaleRetention, job.retention)
	assert.NoError(t, job.Run())
}
