package model

import "time"

// SlotLock is written first in every slot transaction so that two
// transactions on the same key conflict instead of interleaving.
type SlotLock struct {
	ID        string    `bson:"_id" json:"id"`
	Version   int64     `bson:"version" json:"version"`
	TouchedAt time.Time `bson:"touched_at" json:"touched_at"`
}
