package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRating_UpsertKeepsOneRecord(t *testing.T) {
	r, clk, _ := newTestRepo(t)

	first := r.SetRating("u1", "i1", 4)
	clk.Advance(time.Minute)
	second := r.SetRating("u1", "i1", 9)

	assert.Equal(t, first.ID, second.ID)
	all := r.GetItemRatings("i1")
	require.Len(t, all, 1)
	assert.Equal(t, 9, all[0].Rating)
	assert.False(t, all[0].UpdatedAt.Before(all[0].CreatedAt))
	assert.True(t, all[0].UpdatedAt.After(all[0].CreatedAt))
}

func TestGetStats(t *testing.T) {
	r, _, _ := newTestRepo(t)

	empty := r.GetStats("none", "")
	assert.Zero(t, empty.TotalRatings)
	assert.Zero(t, empty.AverageRating)
	assert.Nil(t, empty.UserRating)

	r.SetRating("u1", "i1", 7)
	r.SetRating("u2", "i1", 8)
	r.SetRating("u3", "i1", 8)
	r.SetRating("u4", "other", 1)

	st := r.GetStats("i1", "u2")
	assert.Equal(t, 3, st.TotalRatings)
	assert.Equal(t, 7.67, st.AverageRating)
	assert.Equal(t, 1, st.Distribution[6])
	assert.Equal(t, 2, st.Distribution[7])
	sum := 0
	for _, n := range st.Distribution {
		sum += n
	}
	assert.Equal(t, st.TotalRatings, sum)
	require.NotNil(t, st.UserRating)
	assert.Equal(t, 8, *st.UserRating)

	assert.Nil(t, r.GetStats("i1", "u4").UserRating)
}

func TestDeleteRating_Idempotent(t *testing.T) {
	r, _, _ := newTestRepo(t)
	r.SetRating("u1", "i1", 5)

	assert.True(t, r.DeleteRating("u1", "i1"))
	assert.False(t, r.DeleteRating("u1", "i1"))
	_, ok := r.GetUserRating("u1", "i1")
	assert.False(t, ok)
}

func TestGetUserRatings_OldestFirst(t *testing.T) {
	r, clk, _ := newTestRepo(t)
	r.SetRating("u1", "b", 2)
	clk.Advance(time.Second)
	r.SetRating("u1", "a", 3)
	r.SetRating("u2", "a", 3)

	got := r.GetUserRatings("u1")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ItemID)
	assert.Equal(t, "a", got[1].ItemID)
}
