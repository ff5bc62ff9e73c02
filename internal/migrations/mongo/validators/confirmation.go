package validators

import "go.mongodb.org/mongo-driver/bson"

var objectIDString = bson.M{
	"bsonType":  "string",
	"minLength": 24,
	"maxLength": 24,
}

// ConfirmationValidator also enforces that exactly one of ride_id and
// trip_id is present.
var ConfirmationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"owner_id",
			"passenger_id",
			"seats_requested",
			"status",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,
		"oneOf": []bson.M{
			{"required": []string{"ride_id"}, "not": bson.M{"required": []string{"trip_id"}}},
			{"required": []string{"trip_id"}, "not": bson.M{"required": []string{"ride_id"}}},
		},

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"ride_id": objectIDString,
			"trip_id": objectIDString,

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"passenger_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"seats_requested": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  8,
			},

			"message": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"accepted",
					"rejected",
				},
			},

			"confirmed_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
