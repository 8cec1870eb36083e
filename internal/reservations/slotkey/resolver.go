package slotkey

import (
	"fmt"
	"strings"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/pkg/model"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

var timeLayouts = []string{
	TimeLayout,
	"15:04:05",
	"3:04PM",
	"3:04 PM",
	"3PM",
	"3 PM",
}

// Resolver derives canonical slot keys. Dates carrying a time or zone are
// projected onto the calendar day in loc.
type Resolver struct {
	loc *time.Location
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Key normalizes a slot identity without checking whether it lies in the
// past. Used by read paths.
func (r *Resolver) Key(resourceID, date, startTime string) (model.SlotKey, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return model.SlotKey{}, fmt.Errorf("%w: resource_id is required", reserrors.ErrInvalidSlot)
	}
	day, err := r.NormalizeDate(date)
	if err != nil {
		return model.SlotKey{}, err
	}
	start, err := NormalizeTime(startTime)
	if err != nil {
		return model.SlotKey{}, err
	}
	return model.SlotKey{ResourceID: resourceID, Date: day, StartTime: start}, nil
}

// Resolve validates a full request and returns its key. It fails when the
// end is not after the start or when the slot has already begun at now.
func (r *Resolver) Resolve(resourceID, date, startTime, endTime string, now time.Time) (model.Slot, error) {
	key, err := r.Key(resourceID, date, startTime)
	if err != nil {
		return model.Slot{}, err
	}
	end, err := NormalizeTime(endTime)
	if err != nil {
		return model.Slot{}, err
	}

	startAt, _ := time.ParseInLocation(DateLayout+" "+TimeLayout, key.Date+" "+key.StartTime, r.loc)
	endAt, _ := time.ParseInLocation(DateLayout+" "+TimeLayout, key.Date+" "+end, r.loc)
	if !endAt.After(startAt) {
		return model.Slot{}, fmt.Errorf("%w: end_time %s must be after start_time %s", reserrors.ErrInvalidSlot, end, key.StartTime)
	}
	if !startAt.After(now) {
		return model.Slot{}, fmt.Errorf("%w: slot %s %s is in the past", reserrors.ErrInvalidSlot, key.Date, key.StartTime)
	}

	return model.Slot{
		Key:             key,
		EndTime:         end,
		DurationMinutes: int(endAt.Sub(startAt) / time.Minute),
	}, nil
}

func (r *Resolver) NormalizeDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, date)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "Z07") {
			t = t.In(r.loc)
		}
		return t.Format(DateLayout), nil
	}
	return "", fmt.Errorf("%w: unrecognized date %q", reserrors.ErrInvalidSlot, date)
}

// NormalizeTime returns the zero padded 24-hour HH:MM form of value.
// Seconds are dropped.
func NormalizeTime(value string) (string, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized time %q", reserrors.ErrInvalidSlot, value)
}
