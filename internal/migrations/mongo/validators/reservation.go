package validators

import "go.mongodb.org/mongo-driver/bson"

var nullableDate = bson.M{"bsonType": []string{"date", "null"}}

var ReservationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"resource_id",
			"date",
			"start_time",
			"end_time",
			"requester_id",
			"status",
			"payment_status",
			"is_in_queue",
			"holds_slot",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  `^([01]\d|2[0-3]):[0-5]\d$`,
			},

			"end_time": bson.M{
				"bsonType": "string",
				"pattern":  `^([01]\d|2[0-3]):[0-5]\d$`,
			},

			"requester_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum":     []string{"PENDING", "CONFIRMED", "EXPIRED", "CANCELLED"},
			},

			"payment_status": bson.M{
				"bsonType": "string",
				"enum":     []string{"UNPAID", "PAID", "REFUNDED"},
			},

			"is_in_queue": bson.M{"bsonType": "bool"},
			"holds_slot":  bson.M{"bsonType": "bool"},

			"queue_position": bson.M{
				"bsonType": []string{"int", "long", "null"},
				"minimum":  1,
			},

			"payment_started_at": nullableDate,
			"payment_expires_at": nullableDate,

			"price_cents": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"duration_minutes": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"created_at": bson.M{"bsonType": "date"},
			"updated_at": bson.M{"bsonType": "date"},
		},
	},
}

var SlotLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "version"},
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"version":    bson.M{"bsonType": []string{"int", "long"}},
			"touched_at": bson.M{"bsonType": "date"},
		},
	},
}
