// Package notification suppresses self and duplicate notifications before
// handing surviving records to the delivery collaborator.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-consistency/metrics"
	models "social-consistency/model"
	"social-consistency/retry"
	"social-consistency/store"
)

type Result string

const (
	Created             Result = "CREATED"
	SuppressedSelf      Result = "SUPPRESSED_SELF"
	SuppressedDuplicate Result = "SUPPRESSED_DUPLICATE"
)

// DefaultWindow is the trailing interval in which identical
// (recipient, sender, type, content) tuples are suppressed.
const DefaultWindow = 5 * time.Minute

// recentEntryCap bounds the per-recipient recent-tuples document against a
// notification storm inside a single window.
const recentEntryCap = 256

// Delivery receives notifications that pass the gate. Delivery failure does
// not roll back the stored record.
type Delivery interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

type Gate struct {
	store    store.Store
	delivery Delivery
	cache    *RecentCache
	retry    retry.Policy
	log      *zap.Logger

	// Window applies to duplicate suppression; zero means DefaultWindow.
	Window time.Duration

	now func() time.Time
}

// NewGate wires the dedup gate. cache may be nil, in which case every check
// goes straight to the store; delivery may be nil for installations that only
// keep an inbox.
func NewGate(s store.Store, delivery Delivery, cache *RecentCache, policy retry.Policy, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		store:    s,
		delivery: delivery,
		cache:    cache,
		retry:    policy,
		log:      log,
		Window:   DefaultWindow,
		now:      time.Now,
	}
}

func (g *Gate) window() time.Duration {
	if g.Window > 0 {
		return g.Window
	}
	return DefaultWindow
}

// Notify creates and delivers a notification unless it is a self-notification
// or a duplicate of one created inside the window. The duplicate check is
// read-then-write, not a uniqueness constraint: under heavy concurrency a
// duplicate can still slip through, which is an accepted limitation.
func (g *Gate) Notify(ctx context.Context, recipientID, senderID uuid.UUID, typ models.NotificationType, relatedContentID uuid.UUID, message string) (Result, *models.Notification, error) {
	if recipientID == senderID {
		metrics.NotificationOutcomes.WithLabelValues(string(SuppressedSelf)).Inc()
		return SuppressedSelf, nil, nil
	}

	now := g.now()
	if g.cache.Seen(ctx, recipientID, senderID, typ, relatedContentID) {
		metrics.NotificationOutcomes.WithLabelValues(string(SuppressedDuplicate)).Inc()
		return SuppressedDuplicate, nil, nil
	}

	dup, err := g.recentDuplicate(ctx, recipientID, senderID, typ, relatedContentID, now)
	if err != nil {
		return "", nil, err
	}
	if dup {
		metrics.NotificationOutcomes.WithLabelValues(string(SuppressedDuplicate)).Inc()
		return SuppressedDuplicate, nil, nil
	}

	n := &models.Notification{
		ID:               uuid.New(),
		RecipientID:      recipientID,
		SenderID:         senderID,
		Type:             typ,
		RelatedContentID: relatedContentID,
		Message:          message,
		CreatedAt:        now,
	}
	if _, err := store.PutJSON(ctx, g.store, models.NotificationKey(n.ID), n); err != nil {
		return "", nil, fmt.Errorf("failed to store notification: %w", err)
	}

	// The record exists from here on; index and delivery are best-effort.
	if err := g.recordRecent(ctx, n); err != nil {
		g.log.Warn("recent-notifications index update failed",
			zap.String("recipient_id", recipientID.String()),
			zap.Error(err))
	}
	g.cache.Mark(ctx, recipientID, senderID, typ, relatedContentID, g.window())

	if g.delivery != nil {
		if err := g.delivery.Deliver(ctx, n); err != nil {
			g.log.Warn("notification delivery failed",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err))
		}
	}

	metrics.NotificationOutcomes.WithLabelValues(string(Created)).Inc()
	return Created, n, nil
}

func (g *Gate) recentDuplicate(ctx context.Context, recipientID, senderID uuid.UUID, typ models.NotificationType, relatedContentID uuid.UUID, now time.Time) (bool, error) {
	var recent models.RecentNotifications
	_, err := store.GetJSON(ctx, g.store, models.RecentNotificationsKey(recipientID), &recent)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read recent notifications: %w", err)
	}

	cutoff := now.Add(-g.window())
	for _, e := range recent.Entries {
		if e.Matches(senderID, typ, relatedContentID) && e.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gate) recordRecent(ctx context.Context, n *models.Notification) error {
	key := models.RecentNotificationsKey(n.RecipientID)
	return g.retry.Do(ctx, "record-recent", func() error {
		var recent models.RecentNotifications
		version, err := store.GetJSON(ctx, g.store, key, &recent)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		recent.RecipientID = n.RecipientID
		recent.Prune(n.CreatedAt.Add(-g.window()))
		recent.Entries = append(recent.Entries, models.NotificationTuple{
			SenderID:         n.SenderID,
			Type:             n.Type,
			RelatedContentID: n.RelatedContentID,
			CreatedAt:        n.CreatedAt,
		})
		if len(recent.Entries) > recentEntryCap {
			recent.Entries = recent.Entries[len(recent.Entries)-recentEntryCap:]
		}

		_, err = store.SwapJSON(ctx, g.store, key, version, &recent)
		return err
	})
}
