// Package graph maintains the follow and block graphs. Edges are stored
// redundantly on both endpoint documents, so every mutation is a two-step
// write with a compensating inverse for the partial-failure case.
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	models "social-consistency/model"
	"social-consistency/retry"
	"social-consistency/saga"
	"social-consistency/store"
)

type Result string

const (
	Applied          Result = "APPLIED"
	AlreadyFollowing Result = "ALREADY_FOLLOWING"
	NotFollowing     Result = "NOT_FOLLOWING"
	SelfFollow       Result = "SELF_FOLLOW"
	SelfBlock        Result = "SELF_BLOCK"
	Blocked          Result = "BLOCKED"
	NotBlocked       Result = "NOT_BLOCKED"
)

type Manager struct {
	store store.Store
	retry retry.Policy
	saga  *saga.Runner
	log   *zap.Logger
}

func NewManager(s store.Store, policy retry.Policy, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store: s,
		retry: policy,
		saga:  saga.NewRunner(log),
		log:   log,
	}
}

// mutateActor runs one read-check-write cycle on an actor document with
// bounded CAS retries. fn reports whether the document changed; returning
// false skips the write and ends the loop.
func (m *Manager) mutateActor(ctx context.Context, op string, id uuid.UUID, fn func(a *models.Actor) bool) error {
	key := models.ActorKey(id)
	return m.retry.Do(ctx, op, func() error {
		var actor models.Actor
		version, err := store.GetJSON(ctx, m.store, key, &actor)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !fn(&actor) {
			return nil
		}
		if _, err := store.SwapJSON(ctx, m.store, key, version, &actor); err != nil {
			return err
		}
		return nil
	})
}

// Follow adds a directed follow edge from actor to target. The edge lands on
// the actor document first and the target mirror second; if the mirror write
// fails the first write is compensated away, so the caller observes
// all-or-nothing even though the store offers no cross-document atomicity.
func (m *Manager) Follow(ctx context.Context, actorID, targetID uuid.UUID) (Result, error) {
	if actorID == targetID {
		return SelfFollow, nil
	}

	result := Applied
	steps := []saga.Step{
		{
			Name: "add-following",
			Run: func(ctx context.Context) error {
				return m.mutateActor(ctx, "follow", actorID, func(a *models.Actor) bool {
					switch {
					case a.BlockedEither(targetID):
						result = Blocked
						return false
					case a.FollowingIDs.Contains(targetID):
						result = AlreadyFollowing
						return false
					}
					return a.FollowingIDs.Add(targetID)
				})
			},
			Compensate: func(ctx context.Context) error {
				return m.mutateActor(ctx, "follow-compensate", actorID, func(a *models.Actor) bool {
					return a.FollowingIDs.Remove(targetID)
				})
			},
		},
		{
			Name: "add-follower",
			Run: func(ctx context.Context) error {
				if result != Applied {
					return nil
				}
				return m.mutateActor(ctx, "follow", targetID, func(a *models.Actor) bool {
					return a.FollowerIDs.Add(actorID)
				})
			},
		},
	}

	if err := m.saga.Run(ctx, "follow", steps); err != nil {
		return "", err
	}
	return result, nil
}

// Unfollow removes the follow edge in both documents, compensating with a
// re-add when the mirror removal fails. Unfollowing a target that is not
// followed is an idempotent no-op.
func (m *Manager) Unfollow(ctx context.Context, actorID, targetID uuid.UUID) (Result, error) {
	if actorID == targetID {
		return SelfFollow, nil
	}

	result := Applied
	steps := []saga.Step{
		{
			Name: "remove-following",
			Run: func(ctx context.Context) error {
				return m.mutateActor(ctx, "unfollow", actorID, func(a *models.Actor) bool {
					if !a.FollowingIDs.Contains(targetID) {
						result = NotFollowing
						return false
					}
					return a.FollowingIDs.Remove(targetID)
				})
			},
			Compensate: func(ctx context.Context) error {
				return m.mutateActor(ctx, "unfollow-compensate", actorID, func(a *models.Actor) bool {
					return a.FollowingIDs.Add(targetID)
				})
			},
		},
		{
			Name: "remove-follower",
			Run: func(ctx context.Context) error {
				if result != Applied {
					return nil
				}
				return m.mutateActor(ctx, "unfollow", targetID, func(a *models.Actor) bool {
					return a.FollowerIDs.Remove(actorID)
				})
			},
		},
	}

	if err := m.saga.Run(ctx, "unfollow", steps); err != nil {
		return "", err
	}
	return result, nil
}

// Block writes block edges on both documents and then cascades a best-effort
// unfollow in both directions. Edge cleanup failures are logged, not
// surfaced: "blocked" must win even when cleanup is incomplete, and the
// repair pass removes leftover follow edges later.
func (m *Manager) Block(ctx context.Context, actorID, targetID uuid.UUID) (Result, error) {
	if actorID == targetID {
		return SelfBlock, nil
	}

	added := false
	steps := []saga.Step{
		{
			Name: "add-blocked",
			Run: func(ctx context.Context) error {
				return m.mutateActor(ctx, "block", actorID, func(a *models.Actor) bool {
					added = a.BlockedIDs.Add(targetID)
					return added
				})
			},
			Compensate: func(ctx context.Context) error {
				if !added {
					return nil
				}
				return m.mutateActor(ctx, "block-compensate", actorID, func(a *models.Actor) bool {
					return a.BlockedIDs.Remove(targetID)
				})
			},
		},
		{
			Name: "add-blocked-by",
			Run: func(ctx context.Context) error {
				return m.mutateActor(ctx, "block", targetID, func(a *models.Actor) bool {
					return a.BlockedByIDs.Add(actorID)
				})
			},
		},
	}

	if err := m.saga.Run(ctx, "block", steps); err != nil {
		return "", err
	}

	for _, pair := range [][2]uuid.UUID{{actorID, targetID}, {targetID, actorID}} {
		if _, err := m.Unfollow(ctx, pair[0], pair[1]); err != nil {
			m.log.Warn("block: follow edge cleanup failed, repair pass will finish it",
				zap.String("follower", pair[0].String()),
				zap.String("followee", pair[1].String()),
				zap.Error(err))
		}
	}
	return Applied, nil
}

// Unblock removes the block edges in both directions. It never restores
// follow edges removed by the block.
func (m *Manager) Unblock(ctx context.Context, actorID, targetID uuid.UUID) (Result, error) {
	if actorID == targetID {
		return SelfBlock, nil
	}

	result := Applied
	steps := []saga.Step{
		{
			Name: "remove-blocked",
			Run: func(ctx context.Context) error {
				return m.mutateActor(ctx, "unblock", actorID, func(a *models.Actor) bool {
					if !a.BlockedIDs.Contains(targetID) {
						result = NotBlocked
						return false
					}
					return a.BlockedIDs.Remove(targetID)
				})
			},
			Compensate: func(ctx context.Context) error {
				return m.mutateActor(ctx, "unblock-compensate", actorID, func(a *models.Actor) bool {
					return a.BlockedIDs.Add(targetID)
				})
			},
		},
		{
			Name: "remove-blocked-by",
			Run: func(ctx context.Context) error {
				if result != Applied {
					return nil
				}
				return m.mutateActor(ctx, "unblock", targetID, func(a *models.Actor) bool {
					return a.BlockedByIDs.Remove(actorID)
				})
			},
		},
	}

	if err := m.saga.Run(ctx, "unblock", steps); err != nil {
		return "", err
	}
	return result, nil
}
