package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "social-consistency/model"
	"social-consistency/retry"
	"social-consistency/store"
)

type captureDelivery struct {
	delivered []*models.Notification
	err       error
}

func (d *captureDelivery) Deliver(ctx context.Context, n *models.Notification) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, n)
	return nil
}

func newTestGate(t *testing.T) (*Gate, *captureDelivery, *store.MemoryStore, *time.Time) {
	t.Helper()
	s := store.NewMemoryStore()
	delivery := &captureDelivery{}
	g := NewGate(s, delivery, nil, retry.Policy{Attempts: 5, BaseDelay: time.Microsecond}, nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	g.now = func() time.Time { return *clock }

	return g, delivery, s, clock
}

func TestNotifySuppressesSelf(t *testing.T) {
	g, delivery, _, _ := newTestGate(t)
	actor := uuid.New()

	result, n, err := g.Notify(context.Background(), actor, actor,
		models.NotificationTypeLike, uuid.New(), "liked your reel")
	require.NoError(t, err)
	assert.Equal(t, SuppressedSelf, result)
	assert.Nil(t, n)
	assert.Empty(t, delivery.delivered)
}

func TestNotifySuppressesDuplicateWithinWindow(t *testing.T) {
	ctx := context.Background()
	g, delivery, _, clock := newTestGate(t)
	recipient, sender, content := uuid.New(), uuid.New(), uuid.New()

	result, n, err := g.Notify(ctx, recipient, sender, models.NotificationTypeLike, content, "liked your post")
	require.NoError(t, err)
	assert.Equal(t, Created, result)
	require.NotNil(t, n)

	*clock = clock.Add(2 * time.Minute)
	result, n, err = g.Notify(ctx, recipient, sender, models.NotificationTypeLike, content, "liked your post")
	require.NoError(t, err)
	assert.Equal(t, SuppressedDuplicate, result)
	assert.Nil(t, n)

	// Past the window the same tuple is a fresh notification.
	*clock = clock.Add(6 * time.Minute)
	result, n, err = g.Notify(ctx, recipient, sender, models.NotificationTypeLike, content, "liked your post")
	require.NoError(t, err)
	assert.Equal(t, Created, result)
	require.NotNil(t, n)

	assert.Len(t, delivery.delivered, 2)
}

func TestNotifyDifferentTuplesAreNotDuplicates(t *testing.T) {
	ctx := context.Background()
	g, delivery, _, _ := newTestGate(t)
	recipient, sender := uuid.New(), uuid.New()
	content := uuid.New()

	tests := []struct {
		name    string
		sender  uuid.UUID
		typ     models.NotificationType
		content uuid.UUID
	}{
		{name: "baseline", sender: sender, typ: models.NotificationTypeLike, content: content},
		{name: "different sender", sender: uuid.New(), typ: models.NotificationTypeLike, content: content},
		{name: "different type", sender: sender, typ: models.NotificationTypeComment, content: content},
		{name: "different content", sender: sender, typ: models.NotificationTypeLike, content: uuid.New()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := g.Notify(ctx, recipient, tt.sender, tt.typ, tt.content, "hi")
			require.NoError(t, err)
			assert.Equal(t, Created, result)
		})
	}
	assert.Len(t, delivery.delivered, len(tests))
}

func TestNotifyStoresRecordAndSurvivesDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	g, delivery, s, _ := newTestGate(t)
	delivery.err = assert.AnError

	result, n, err := g.Notify(ctx, uuid.New(), uuid.New(),
		models.NotificationTypeFollow, uuid.Nil, "started following you")
	require.NoError(t, err, "delivery failure must not fail the notification")
	assert.Equal(t, Created, result)
	require.NotNil(t, n)

	var stored models.Notification
	_, err = store.GetJSON(ctx, s, models.NotificationKey(n.ID), &stored)
	require.NoError(t, err)
	assert.Equal(t, n.ID, stored.ID)
	assert.Equal(t, models.NotificationTypeFollow, stored.Type)
}

func TestNotifyPrunesRecentIndex(t *testing.T) {
	ctx := context.Background()
	g, _, s, clock := newTestGate(t)
	recipient := uuid.New()

	for i := 0; i < 3; i++ {
		_, _, err := g.Notify(ctx, recipient, uuid.New(), models.NotificationTypeLike, uuid.New(), "x")
		require.NoError(t, err)
		*clock = clock.Add(10 * time.Minute)
	}

	var recent models.RecentNotifications
	_, err := store.GetJSON(ctx, s, models.RecentNotificationsKey(recipient), &recent)
	require.NoError(t, err)
	assert.Len(t, recent.Entries, 1, "entries past the window must be pruned")
}
