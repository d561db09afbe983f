package model

import "time"

// ChangeType describes what happened to a post document.
type ChangeType string

const (
	ChangeTypeCreated ChangeType = "CREATED"
	ChangeTypeUpdated ChangeType = "UPDATED"
	ChangeTypeDeleted ChangeType = "DELETED"
)

// PostChange is the notification a store emits after a committed mutation.
// It names the post only, subscribers re-read the ordered view.
type PostChange struct {
	Type   ChangeType `json:"type"`
	PostId string     `json:"postId"`
	At     time.Time  `json:"at"`
}

func NewPostChange(t ChangeType, postId string) *PostChange {
	return &PostChange{Type: t, PostId: postId, At: time.Now()}
}
