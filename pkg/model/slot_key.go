package model

import "fmt"

// SlotKey identifies a contended (resource, day, start time) unit.
// Date is YYYY-MM-DD and StartTime is zero padded HH:MM.
type SlotKey struct {
	ResourceID string `json:"resource_id" bson:"resource_id"`
	Date       string `json:"date" bson:"date"`
	StartTime  string `json:"start_time" bson:"start_time"`
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.ResourceID, k.Date, k.StartTime)
}

// Slot is a resolved request: the contention key plus the carried end time.
type Slot struct {
	Key             SlotKey
	EndTime         string
	DurationMinutes int
}
