package repository

import (
	"reflect"
	"testing"

	"courtq/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

func TestExpiredHoldersFilter_CoversPendingHoldIndex(t *testing.T) {
	filter := expiredHoldersFilter(testNow)

	for field, want := range PendingHoldFilter() {
		got, ok := filter[field]
		if !ok {
			t.Errorf("filter is missing index term %q", field)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("filter[%q] = %v, want %v", field, got, want)
		}
	}
}

func TestExpiredHoldersFilter(t *testing.T) {
	tests := []struct {
		field string
		want  any
	}{
		{field: "holds_slot", want: true},
		{field: "status", want: model.StatusPending},
		{field: "is_in_queue", want: false},
		{field: "payment_expires_at", want: bson.M{"$lt": testNow}},
	}

	filter := expiredHoldersFilter(testNow)
	if len(filter) != len(tests) {
		t.Fatalf("filter = %v, want %d terms", filter, len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := filter[tt.field]; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filter[%q] = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestPendingHoldFilter_FreshCopy(t *testing.T) {
	a := PendingHoldFilter()
	a["status"] = model.StatusConfirmed
	if got := PendingHoldFilter()["status"]; got != model.StatusPending {
		t.Errorf("PendingHoldFilter() shared state, status = %v", got)
	}
}
