package model

import "github.com/google/uuid"

// Job is the transient unit of work consumed from the queue, one per
// uploaded item. It is reconstructible from the item it targets and is
// never persisted on its own. Attempt counts queue-level redeliveries.
type Job struct {
	UploadID   uuid.UUID `json:"uploadId"`
	ShopID     uuid.UUID `json:"shopId"`
	ItemID     uuid.UUID `json:"itemId"`
	StorageKey string    `json:"storageKey"`
	Attempt    int       `json:"attempt,omitempty"`
}
