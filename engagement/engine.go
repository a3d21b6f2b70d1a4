// Package engagement maintains like sets and deduplicated view logs per
// content item. Both live on a single document, so every operation is one
// CAS cycle; the delicate part is keeping the cached counters equal to what
// the authoritative set/log implies, which is why they are recomputed in full
// on every write instead of incremented.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	models "social-consistency/model"
	"social-consistency/retry"
	"social-consistency/store"
)

type Result string

const (
	Liked   Result = "LIKED"
	Unliked Result = "UNLIKED"
)

// DefaultDedupWindow is the trailing interval in which repeat views by the
// same viewer coalesce into one counted view.
const DefaultDedupWindow = 24 * time.Hour

type Engine struct {
	store store.Store
	retry retry.Policy
	log   *zap.Logger

	// DedupWindow applies to RecordView; zero means DefaultDedupWindow.
	DedupWindow time.Duration

	now func() time.Time
}

func NewEngine(s store.Store, policy retry.Policy, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:       s,
		retry:       policy,
		log:         log,
		DedupWindow: DefaultDedupWindow,
		now:         time.Now,
	}
}

func (e *Engine) window() time.Duration {
	if e.DedupWindow > 0 {
		return e.DedupWindow
	}
	return DefaultDedupWindow
}

func (e *Engine) mutateContent(ctx context.Context, op string, id uuid.UUID, fn func(c *models.Content) bool) error {
	key := models.ContentKey(id)
	return e.retry.Do(ctx, op, func() error {
		var content models.Content
		version, err := store.GetJSON(ctx, e.store, key, &content)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !fn(&content) {
			return nil
		}
		if _, err := store.SwapJSON(ctx, e.store, key, version, &content); err != nil {
			return err
		}
		return nil
	})
}

// ToggleLike flips actorID's membership in the content item's like set and
// recomputes the cached counter from the set in the same write.
func (e *Engine) ToggleLike(ctx context.Context, contentID, actorID uuid.UUID) (Result, error) {
	var result Result
	err := e.mutateContent(ctx, "toggle-like", contentID, func(c *models.Content) bool {
		if c.LikerIDs.Remove(actorID) {
			result = Unliked
		} else {
			c.LikerIDs.Add(actorID)
			result = Liked
		}
		c.CachedLikeCount = c.LikeCount()
		c.UpdatedAt = e.now()
		return true
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// RecordView counts a view by viewerID unless the viewer already has an
// event inside the dedup window, in which case that event's timestamp is
// refreshed and the count is unchanged. The window comparison uses the wall
// clock at read time, and the cached count is recomputed from the whole log
// rather than incremented, so the counter self-heals after out-of-band log
// mutation. Returns the new cached view count.
func (e *Engine) RecordView(ctx context.Context, contentID, viewerID uuid.UUID) (int, error) {
	var count int
	err := e.mutateContent(ctx, "record-view", contentID, func(c *models.Content) bool {
		now := e.now()
		cutoff := now.Add(-e.window())

		refreshed := false
		for i := range c.ViewEvents {
			ev := &c.ViewEvents[i]
			if ev.ViewerID == viewerID && ev.Timestamp.After(cutoff) {
				ev.Timestamp = now
				refreshed = true
				break
			}
		}
		if !refreshed {
			c.ViewEvents = append(c.ViewEvents, models.ViewEvent{ViewerID: viewerID, Timestamp: now})
		}

		c.CachedViewCount = c.WindowedViewCount(e.window())
		c.UpdatedAt = now
		count = c.CachedViewCount
		return true
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CleanupOldViews drops view events older than retention and recomputes the
// cached count from the shrunken log. The count stepping down here is
// expected, not drift. Returns the number of events removed.
func (e *Engine) CleanupOldViews(ctx context.Context, contentID uuid.UUID, retention time.Duration) (int, error) {
	var removed int
	err := e.mutateContent(ctx, "cleanup-views", contentID, func(c *models.Content) bool {
		cutoff := e.now().Add(-retention)

		kept := c.ViewEvents[:0]
		for _, ev := range c.ViewEvents {
			if ev.Timestamp.After(cutoff) {
				kept = append(kept, ev)
			}
		}
		removed = len(c.ViewEvents) - len(kept)
		if removed == 0 {
			return false
		}

		c.ViewEvents = kept
		c.CachedViewCount = c.WindowedViewCount(e.window())
		c.UpdatedAt = e.now()
		return true
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.log.Info("pruned view log",
			zap.String("content_id", contentID.String()),
			zap.Int("removed", removed))
	}
	return removed, nil
}
