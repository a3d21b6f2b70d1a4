package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeFollow  NotificationType = "FOLLOW"
	NotificationTypeLike    NotificationType = "LIKE"
	NotificationTypeComment NotificationType = "COMMENT"
	NotificationTypeMention NotificationType = "MENTION"
	NotificationTypeLive    NotificationType = "LIVE"
)

type Notification struct {
	ID               uuid.UUID        `json:"id"`
	RecipientID      uuid.UUID        `json:"recipient_id"`
	SenderID         uuid.UUID        `json:"sender_id"`
	Type             NotificationType `json:"type"`
	RelatedContentID uuid.UUID        `json:"related_content_id"`
	Message          string           `json:"message"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NotificationTuple identifies a notification for suppression purposes: two
// notifications with the same tuple inside the dedup window collapse to one.
type NotificationTuple struct {
	SenderID         uuid.UUID        `json:"sender_id"`
	Type             NotificationType `json:"type"`
	RelatedContentID uuid.UUID        `json:"related_content_id"`
	CreatedAt        time.Time        `json:"created_at"`
}

func (t NotificationTuple) Matches(senderID uuid.UUID, typ NotificationType, relatedContentID uuid.UUID) bool {
	return t.SenderID == senderID && t.Type == typ && t.RelatedContentID == relatedContentID
}

// RecentNotifications is a per-recipient ring of recently created
// notification tuples. A key-addressed store cannot query "same tuple in the
// last five minutes", so the gate keeps this document next to the records and
// prunes it to the window on every update.
type RecentNotifications struct {
	RecipientID uuid.UUID           `json:"recipient_id"`
	Entries     []NotificationTuple `json:"entries"`
}

// Prune drops entries at or older than cutoff, preserving order.
func (r *RecentNotifications) Prune(cutoff time.Time) {
	kept := r.Entries[:0]
	for _, e := range r.Entries {
		if e.CreatedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	r.Entries = kept
}

func NotificationKey(id uuid.UUID) string {
	return fmt.Sprintf("notification:%s", id)
}

func RecentNotificationsKey(recipientID uuid.UUID) string {
	return fmt.Sprintf("recent-notifications:%s", recipientID)
}
