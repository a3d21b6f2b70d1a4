package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Actor is the graph-relevant slice of a user document. Profile fields
// (username, bio, media) belong to the CRUD handlers and are not modelled
// here; the consistency layer only ever mutates the edge sets below.
type Actor struct {
	ID           uuid.UUID `json:"id"`
	FollowingIDs IDSet     `json:"following_ids"`
	FollowerIDs  IDSet     `json:"follower_ids"`
	BlockedIDs   IDSet     `json:"blocked_ids"`
	BlockedByIDs IDSet     `json:"blocked_by_ids"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewActor(id uuid.UUID) *Actor {
	return &Actor{
		ID:           id,
		FollowingIDs: NewIDSet(),
		FollowerIDs:  NewIDSet(),
		BlockedIDs:   NewIDSet(),
		BlockedByIDs: NewIDSet(),
	}
}

// BlockedEither reports whether a block edge exists in either direction
// between this actor and other, judged from this document alone.
func (a *Actor) BlockedEither(other uuid.UUID) bool {
	return a.BlockedIDs.Contains(other) || a.BlockedByIDs.Contains(other)
}

func ActorKey(id uuid.UUID) string {
	return fmt.Sprintf("actor:%s", id)
}
