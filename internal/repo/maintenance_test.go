package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

func TestNotifications_MemoryOnlyAndBounded(t *testing.T) {
	r, clk, dir := newTestRepo(t)

	for i := 0; i < domain.MaxNotifications+5; i++ {
		r.AddNotification(domain.NewMediaNotification{ItemID: "it", Title: "T", MediaType: "Movie"})
		clk.Advance(time.Second)
	}
	all := r.GetNotificationsSince(nil)
	require.Len(t, all, domain.MaxNotifications)
	assert.NotEmpty(t, all[0].ID)

	cut := all[len(all)-3].CreatedAt
	assert.Len(t, r.GetNotificationsSince(&cut), 2)

	flushRepo(t, r)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "notification")
	}
	_, err = os.Stat(filepath.Join(dir, "notifications.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupOldNotifications(t *testing.T) {
	r, clk, _ := newTestRepo(t)
	r.AddNotification(domain.NewMediaNotification{ItemID: "old"})
	clk.Advance(2 * time.Hour)
	r.AddNotification(domain.NewMediaNotification{ItemID: "new"})

	assert.Equal(t, 1, r.CleanupOldNotifications(time.Hour))
	left := r.GetNotificationsSince(nil)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].ItemID)
}
