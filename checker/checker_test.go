package checker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "social-consistency/model"
	"social-consistency/store"
)

func seedActor(t *testing.T, s store.Store, actor *models.Actor) {
	t.Helper()
	_, err := store.PutJSON(context.Background(), s, models.ActorKey(actor.ID), actor)
	require.NoError(t, err)
}

func seedContent(t *testing.T, s store.Store, content *models.Content) {
	t.Helper()
	_, err := store.PutJSON(context.Background(), s, models.ContentKey(content.ID), content)
	require.NoError(t, err)
}

func getActor(t *testing.T, s store.Store, id uuid.UUID) *models.Actor {
	t.Helper()
	var actor models.Actor
	_, err := store.GetJSON(context.Background(), s, models.ActorKey(id), &actor)
	require.NoError(t, err)
	return &actor
}

func fields(report *Report) []string {
	var out []string
	for _, m := range report.Mismatches {
		out = append(out, m.Field)
	}
	return out
}

func TestCheckActorCleanGraph(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := models.NewActor(uuid.New()), models.NewActor(uuid.New())
	a.FollowingIDs.Add(b.ID)
	b.FollowerIDs.Add(a.ID)
	seedActor(t, s, a)
	seedActor(t, s, b)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		report, err := NewChecker(s, nil).CheckActor(ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Clean(), "mismatches: %v", report.Mismatches)
	}
}

func TestCheckActorDetectsOneSidedEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := models.NewActor(uuid.New()), models.NewActor(uuid.New())
	a.FollowingIDs.Add(b.ID) // mirror on b missing
	seedActor(t, s, a)
	seedActor(t, s, b)

	report, err := NewChecker(s, nil).CheckActor(ctx, a.ID)
	require.NoError(t, err)
	assert.Contains(t, fields(report), "following_ids")
}

func TestRepairActorCompletesForwardEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := models.NewActor(uuid.New()), models.NewActor(uuid.New())
	a.FollowingIDs.Add(b.ID)
	seedActor(t, s, a)
	seedActor(t, s, b)

	report, err := NewChecker(s, nil).RepairActor(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, report.Clean())

	assert.True(t, getActor(t, s, b.ID).FollowerIDs.Contains(a.ID),
		"repair must complete the missing mirror")

	report, err = NewChecker(s, nil).CheckActor(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestRepairActorDropsStrayReverseEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := models.NewActor(uuid.New()), models.NewActor(uuid.New())
	a.FollowerIDs.Add(b.ID) // b never followed a
	seedActor(t, s, a)
	seedActor(t, s, b)

	report, err := NewChecker(s, nil).RepairActor(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, report.Clean())

	assert.False(t, getActor(t, s, a.ID).FollowerIDs.Contains(b.ID),
		"stray reverse edge must be dropped, the forward side is authoritative")
}

func TestRepairActorEnforcesBlockDominance(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := models.NewActor(uuid.New()), models.NewActor(uuid.New())
	// Block landed but the cascade was interrupted, leaving follow edges.
	a.BlockedIDs.Add(b.ID)
	b.BlockedByIDs.Add(a.ID)
	b.FollowingIDs.Add(a.ID)
	a.FollowerIDs.Add(b.ID)
	seedActor(t, s, a)
	seedActor(t, s, b)

	report, err := NewChecker(s, nil).RepairActor(ctx, a.ID)
	require.NoError(t, err)
	assert.Contains(t, fields(report), "block_dominance")

	actorA, actorB := getActor(t, s, a.ID), getActor(t, s, b.ID)
	assert.False(t, actorA.FollowerIDs.Contains(b.ID))
	assert.False(t, actorB.FollowingIDs.Contains(a.ID))
	assert.True(t, actorA.BlockedIDs.Contains(b.ID), "block edges must survive repair")
	assert.True(t, actorB.BlockedByIDs.Contains(a.ID))
}

func TestCheckActorDetectsSelfEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a := models.NewActor(uuid.New())
	a.FollowingIDs.Add(a.ID)
	seedActor(t, s, a)

	report, err := NewChecker(s, nil).CheckActor(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, report.Clean())

	_, err = NewChecker(s, nil).RepairActor(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, getActor(t, s, a.ID).FollowingIDs.Contains(a.ID))
}

func TestCheckContentDetectsAndRepairsDrift(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	content := models.NewContent(uuid.New(), uuid.New(), models.ContentTypePost)
	content.LikerIDs.Add(uuid.New())
	content.LikerIDs.Add(uuid.New())
	content.ViewEvents = []models.ViewEvent{
		{ViewerID: uuid.New(), Timestamp: now},
		{ViewerID: uuid.New(), Timestamp: now.Add(time.Minute)},
	}
	content.CachedLikeCount = 9  // drifted
	content.CachedViewCount = 40 // drifted
	seedContent(t, s, content)

	chk := NewChecker(s, nil)
	report, err := chk.CheckContent(ctx, content.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cached_like_count", "cached_view_count"}, fields(report))

	_, err = chk.RepairContent(ctx, content.ID)
	require.NoError(t, err)

	report, err = chk.CheckContent(ctx, content.ID)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	var repaired models.Content
	_, err = store.GetJSON(ctx, s, models.ContentKey(content.ID), &repaired)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired.CachedLikeCount)
	assert.Equal(t, 2, repaired.CachedViewCount)
}

func TestSweepAggregates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	clean := models.NewActor(uuid.New())
	seedActor(t, s, clean)

	dirty := models.NewActor(uuid.New())
	dirty.FollowingIDs.Add(dirty.ID)
	seedActor(t, s, dirty)

	content := models.NewContent(uuid.New(), uuid.New(), models.ContentTypeStory)
	content.CachedLikeCount = 3
	seedContent(t, s, content)

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)

	report, err := NewChecker(s, nil).Sweep(ctx, keys, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 2, report.Dirty)
	assert.Len(t, report.Mismatch, 2)
}
