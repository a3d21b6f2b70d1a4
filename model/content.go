package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentTypePost  ContentType = "POST"
	ContentTypeReel  ContentType = "REEL"
	ContentTypeStory ContentType = "STORY"
	ContentTypeLive  ContentType = "LIVE"
)

// ViewEvent is one entry in a content item's authoritative view log.
type ViewEvent struct {
	ViewerID  uuid.UUID `json:"viewer_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Content is the engagement-relevant slice of a post/reel/story/live
// document. LikerIDs and ViewEvents are authoritative; the cached counts are
// derived and recomputed from them on every mutation, never incremented.
type Content struct {
	ID              uuid.UUID   `json:"id"`
	OwnerID         uuid.UUID   `json:"owner_id"`
	Type            ContentType `json:"type"`
	LikerIDs        IDSet       `json:"liker_ids"`
	ViewEvents      []ViewEvent `json:"view_events"`
	CachedLikeCount int         `json:"cached_like_count"`
	CachedViewCount int         `json:"cached_view_count"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func NewContent(id, ownerID uuid.UUID, typ ContentType) *Content {
	return &Content{
		ID:       id,
		OwnerID:  ownerID,
		Type:     typ,
		LikerIDs: NewIDSet(),
	}
}

// LikeCount recomputes the like counter from the authoritative set.
func (c *Content) LikeCount() int {
	return c.LikerIDs.Len()
}

// WindowedViewCount recomputes the view counter from the full log. Views by
// the same viewer closer together than window collapse into one; a re-view
// after the window counts again. The write path already coalesces in-window
// events, so this normally equals len(ViewEvents), but recomputing from the
// log keeps the counter honest if the log was mutated out of band.
func (c *Content) WindowedViewCount(window time.Duration) int {
	byViewer := make(map[uuid.UUID][]time.Time)
	for _, ev := range c.ViewEvents {
		byViewer[ev.ViewerID] = append(byViewer[ev.ViewerID], ev.Timestamp)
	}

	total := 0
	for _, stamps := range byViewer {
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
		var lastCounted time.Time
		for i, ts := range stamps {
			if i == 0 || ts.Sub(lastCounted) >= window {
				total++
				lastCounted = ts
			}
		}
	}
	return total
}

func ContentKey(id uuid.UUID) string {
	return fmt.Sprintf("content:%s", id)
}
