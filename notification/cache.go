package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	models "social-consistency/model"
)

const recentTuplePrefix = "notif:recent:"

// RecentCache is a best-effort redis fast path in front of the authoritative
// recent-notifications document. Cache errors are treated as misses; a hit
// only ever suppresses, never creates, so staleness is harmless.
type RecentCache struct {
	client *redis.Client
}

func NewRecentCache(client *redis.Client) *RecentCache {
	return &RecentCache{client: client}
}

func tupleKey(recipientID, senderID uuid.UUID, typ models.NotificationType, relatedContentID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", recentTuplePrefix, recipientID, senderID, typ, relatedContentID)
}

func (c *RecentCache) Seen(ctx context.Context, recipientID, senderID uuid.UUID, typ models.NotificationType, relatedContentID uuid.UUID) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, tupleKey(recipientID, senderID, typ, relatedContentID)).Result()
	return err == nil && n > 0
}

func (c *RecentCache) Mark(ctx context.Context, recipientID, senderID uuid.UUID, typ models.NotificationType, relatedContentID uuid.UUID, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, tupleKey(recipientID, senderID, typ, relatedContentID), "1", ttl)
}
