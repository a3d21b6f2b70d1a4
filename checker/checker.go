// Package checker recomputes every cached or mirrored field from its
// authoritative source and reports mismatches. It never repairs unless
// invoked in explicit repair mode; silent repair on the read path could mask
// a live bug.
package checker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-consistency/metrics"
	models "social-consistency/model"
	"social-consistency/retry"
	"social-consistency/store"
)

// Mismatch is one derived field whose value disagrees with its source.
type Mismatch struct {
	Key    string `json:"key"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

type Report struct {
	Key        string     `json:"key"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}

func (r *Report) Clean() bool {
	return len(r.Mismatches) == 0
}

func (r *Report) add(key, field, detail string) {
	metrics.CheckerMismatches.WithLabelValues(field).Inc()
	r.Mismatches = append(r.Mismatches, Mismatch{Key: key, Field: field, Detail: detail})
}

// SweepReport aggregates a repair-job pass over many documents.
type SweepReport struct {
	Checked  int        `json:"checked"`
	Dirty    int        `json:"dirty"`
	Skipped  int        `json:"skipped"`
	Mismatch []Mismatch `json:"mismatches,omitempty"`
}

type Checker struct {
	store store.Store
	retry retry.Policy
	log   *zap.Logger

	// ViewWindow must match the engine's dedup window for view-count
	// recomputation; zero means the engine default.
	ViewWindow time.Duration

	now func() time.Time
}

func NewChecker(s store.Store, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{
		store:      s,
		retry:      retry.Policy{},
		log:        log,
		ViewWindow: 24 * time.Hour,
		now:        time.Now,
	}
}

func (c *Checker) loadActor(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	var actor models.Actor
	if _, err := store.GetJSON(ctx, c.store, models.ActorKey(id), &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

// CheckActor verifies the actor's edge sets against the mirror fields on the
// opposite documents, plus the no-self-edge and block-dominance invariants.
func (c *Checker) CheckActor(ctx context.Context, id uuid.UUID) (*Report, error) {
	return c.checkActor(ctx, id, false)
}

// RepairActor re-runs the actor checks and applies fixes: edges violating
// block dominance are removed from both sides, one-sided follow edges are
// completed on the mirror side (the forward followingIDs edge is treated as
// intent), self edges and edges to missing documents are dropped.
func (c *Checker) RepairActor(ctx context.Context, id uuid.UUID) (*Report, error) {
	return c.checkActor(ctx, id, true)
}

type edgeCheck struct {
	field  string
	mirror string
	// forward is true for edge sets expressing this actor's intent
	// (followingIDs, blockedIDs); one-sided forward edges are repaired by
	// completing the mirror, one-sided reverse edges by dropping the edge.
	forward bool
	local   func(a *models.Actor) *models.IDSet
	remote  func(a *models.Actor) *models.IDSet
}

var actorEdgeChecks = []edgeCheck{
	{
		field: "following_ids", mirror: "follower_ids", forward: true,
		local:  func(a *models.Actor) *models.IDSet { return &a.FollowingIDs },
		remote: func(a *models.Actor) *models.IDSet { return &a.FollowerIDs },
	},
	{
		field: "follower_ids", mirror: "following_ids", forward: false,
		local:  func(a *models.Actor) *models.IDSet { return &a.FollowerIDs },
		remote: func(a *models.Actor) *models.IDSet { return &a.FollowingIDs },
	},
	{
		field: "blocked_ids", mirror: "blocked_by_ids", forward: true,
		local:  func(a *models.Actor) *models.IDSet { return &a.BlockedIDs },
		remote: func(a *models.Actor) *models.IDSet { return &a.BlockedByIDs },
	},
	{
		field: "blocked_by_ids", mirror: "blocked_ids", forward: false,
		local:  func(a *models.Actor) *models.IDSet { return &a.BlockedByIDs },
		remote: func(a *models.Actor) *models.IDSet { return &a.BlockedIDs },
	},
}

func (c *Checker) checkActor(ctx context.Context, id uuid.UUID, repair bool) (*Report, error) {
	report := &Report{Key: models.ActorKey(id), CheckedAt: c.now()}

	actor, err := c.loadActor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor %s: %w", id, err)
	}

	for _, check := range actorEdgeChecks {
		for _, other := range check.local(actor).IDs() {
			if other == id {
				report.add(report.Key, check.field, "self edge")
				if repair {
					if err := c.dropEdge(ctx, id, check.field, other); err != nil {
						return report, err
					}
				}
				continue
			}

			peer, err := c.loadActor(ctx, other)
			if errors.Is(err, store.ErrNotFound) {
				report.add(report.Key, check.field, fmt.Sprintf("dangling edge to missing actor %s", other))
				if repair {
					if err := c.dropEdge(ctx, id, check.field, other); err != nil {
						return report, err
					}
				}
				continue
			}
			if err != nil {
				return report, err
			}

			if !check.remote(peer).Contains(id) {
				report.add(report.Key, check.field,
					fmt.Sprintf("edge to %s has no %s mirror", other, check.mirror))
				if repair {
					if err := c.repairOneSided(ctx, id, other, check); err != nil {
						return report, err
					}
				}
			}
		}
	}

	// Block dominance: no follow edges may coexist with a block in either
	// direction.
	for _, blocked := range append(actor.BlockedIDs.IDs(), actor.BlockedByIDs.IDs()...) {
		if actor.FollowingIDs.Contains(blocked) || actor.FollowerIDs.Contains(blocked) {
			report.add(report.Key, "block_dominance",
				fmt.Sprintf("follow edge with blocked actor %s", blocked))
			if repair {
				if err := c.removeFollowEdges(ctx, id, blocked); err != nil {
					return report, err
				}
			}
		}
	}

	if !report.Clean() {
		c.log.Warn("actor consistency check failed",
			zap.String("key", report.Key),
			zap.Int("mismatches", len(report.Mismatches)),
			zap.Bool("repaired", repair))
	}
	return report, nil
}

// CheckContent recomputes the cached like and view counters from the
// authoritative set and log.
func (c *Checker) CheckContent(ctx context.Context, id uuid.UUID) (*Report, error) {
	return c.checkContent(ctx, id, false)
}

func (c *Checker) RepairContent(ctx context.Context, id uuid.UUID) (*Report, error) {
	return c.checkContent(ctx, id, true)
}

func (c *Checker) checkContent(ctx context.Context, id uuid.UUID, repair bool) (*Report, error) {
	key := models.ContentKey(id)
	report := &Report{Key: key, CheckedAt: c.now()}

	var content models.Content
	if _, err := store.GetJSON(ctx, c.store, key, &content); err != nil {
		return nil, fmt.Errorf("failed to load content %s: %w", id, err)
	}

	wantLikes := content.LikeCount()
	if content.CachedLikeCount != wantLikes {
		report.add(key, "cached_like_count",
			fmt.Sprintf("cached %d, derived %d", content.CachedLikeCount, wantLikes))
	}
	wantViews := content.WindowedViewCount(c.ViewWindow)
	if content.CachedViewCount != wantViews {
		report.add(key, "cached_view_count",
			fmt.Sprintf("cached %d, derived %d", content.CachedViewCount, wantViews))
	}

	if repair && !report.Clean() {
		err := c.retry.Do(ctx, "repair-content", func() error {
			var cur models.Content
			version, err := store.GetJSON(ctx, c.store, key, &cur)
			if err != nil {
				return err
			}
			cur.CachedLikeCount = cur.LikeCount()
			cur.CachedViewCount = cur.WindowedViewCount(c.ViewWindow)
			cur.UpdatedAt = c.now()
			_, err = store.SwapJSON(ctx, c.store, key, version, &cur)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("failed to repair content %s: %w", id, err)
		}
	}

	if !report.Clean() {
		c.log.Warn("content consistency check failed",
			zap.String("key", key),
			zap.Int("mismatches", len(report.Mismatches)),
			zap.Bool("repaired", repair))
	}
	return report, nil
}

// Sweep checks (and optionally repairs) every actor/content key given and
// returns the aggregate discrepancy report. Keys with other prefixes are
// counted as skipped.
func (c *Checker) Sweep(ctx context.Context, keys []string, repair bool) (*SweepReport, error) {
	sweep := &SweepReport{}
	for _, key := range keys {
		report, err := c.checkKey(ctx, key, repair)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				sweep.Skipped++
				continue
			}
			return sweep, fmt.Errorf("sweep stopped at %q: %w", key, err)
		}
		if report == nil {
			sweep.Skipped++
			continue
		}
		sweep.Checked++
		if !report.Clean() {
			sweep.Dirty++
			sweep.Mismatch = append(sweep.Mismatch, report.Mismatches...)
		}
	}
	return sweep, nil
}

func (c *Checker) checkKey(ctx context.Context, key string, repair bool) (*Report, error) {
	switch {
	case strings.HasPrefix(key, "actor:"):
		id, err := uuid.Parse(strings.TrimPrefix(key, "actor:"))
		if err != nil {
			return nil, nil
		}
		return c.checkActor(ctx, id, repair)
	case strings.HasPrefix(key, "content:"):
		id, err := uuid.Parse(strings.TrimPrefix(key, "content:"))
		if err != nil {
			return nil, nil
		}
		return c.checkContent(ctx, id, repair)
	default:
		return nil, nil
	}
}

// dropEdge removes other from the named edge set on actor id.
func (c *Checker) dropEdge(ctx context.Context, id uuid.UUID, field string, other uuid.UUID) error {
	return c.mutateActor(ctx, id, func(a *models.Actor) bool {
		return setByField(a, field).Remove(other)
	})
}

func (c *Checker) repairOneSided(ctx context.Context, id, other uuid.UUID, check edgeCheck) error {
	if !check.forward {
		// Reverse edge without a matching forward edge on the peer: the
		// forward side is authoritative, drop the stray mirror entry.
		return c.dropEdge(ctx, id, check.field, other)
	}
	// Forward edge missing its mirror: complete the mirror on the peer.
	return c.mutateActor(ctx, other, func(a *models.Actor) bool {
		return setByField(a, check.mirror).Add(id)
	})
}

// removeFollowEdges strips follow edges between a and b from both documents.
func (c *Checker) removeFollowEdges(ctx context.Context, a, b uuid.UUID) error {
	if err := c.mutateActor(ctx, a, func(doc *models.Actor) bool {
		removed := doc.FollowingIDs.Remove(b)
		return doc.FollowerIDs.Remove(b) || removed
	}); err != nil {
		return err
	}
	return c.mutateActor(ctx, b, func(doc *models.Actor) bool {
		removed := doc.FollowingIDs.Remove(a)
		return doc.FollowerIDs.Remove(a) || removed
	})
}

func (c *Checker) mutateActor(ctx context.Context, id uuid.UUID, fn func(a *models.Actor) bool) error {
	key := models.ActorKey(id)
	return c.retry.Do(ctx, "repair-actor", func() error {
		var actor models.Actor
		version, err := store.GetJSON(ctx, c.store, key, &actor)
		if err != nil {
			return err
		}
		if !fn(&actor) {
			return nil
		}
		_, err = store.SwapJSON(ctx, c.store, key, version, &actor)
		return err
	})
}

func setByField(a *models.Actor, field string) *models.IDSet {
	switch field {
	case "following_ids":
		return &a.FollowingIDs
	case "follower_ids":
		return &a.FollowerIDs
	case "blocked_ids":
		return &a.BlockedIDs
	case "blocked_by_ids":
		return &a.BlockedByIDs
	}
	return nil
}
