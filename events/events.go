package events

import (
	"time"

	"github.com/google/uuid"

	models "social-consistency/model"
)

const NotificationCreated = "notification.created"

// NotificationCreatedEvent is the payload handed to the delivery collaborator
// for every notification that survives the dedup gate.
type NotificationCreatedEvent struct {
	NotificationID   uuid.UUID               `json:"notification_id"`
	RecipientID      uuid.UUID               `json:"recipient_id"`
	SenderID         uuid.UUID               `json:"sender_id"`
	Type             models.NotificationType `json:"type"`
	RelatedContentID uuid.UUID               `json:"related_content_id"`
	Message          string                  `json:"message"`
	CreatedAt        time.Time               `json:"created_at"`
}
