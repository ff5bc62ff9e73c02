package validators

import "go.mongodb.org/mongo-driver/bson"

func listingProperties() bson.M {
	return bson.M{
		"_id": bson.M{
			"bsonType": "objectId",
		},

		"kind": bson.M{
			"bsonType": "string",
			"enum":     []string{"ride", "trip"},
		},

		"owner_id": bson.M{
			"bsonType":  "string",
			"minLength": 36,
			"maxLength": 36,
		},

		"origin": bson.M{
			"bsonType":  "string",
			"minLength": 2,
			"maxLength": 100,
		},

		"destination": bson.M{
			"bsonType":  "string",
			"minLength": 2,
			"maxLength": 100,
		},

		"scheduled_at": bson.M{
			"bsonType": "date",
		},

		"seats_available": bson.M{
			"bsonType": []string{"int", "long"},
			"minimum":  0,
			"maximum":  8,
		},

		"price": bson.M{
			"bsonType": []string{"double", "int", "long", "decimal"},
			"minimum":  0,
		},

		"is_closed": bson.M{
			"bsonType": "bool",
		},

		"closed_at": bson.M{
			"bsonType": "date",
		},

		"closed_reason": bson.M{
			"bsonType":  "string",
			"maxLength": 200,
		},

		"created_at": bson.M{
			"bsonType": "date",
		},
	}
}

func listingValidator(kind string, extra bson.M, required ...string) bson.M {
	props := listingProperties()
	props["kind"] = bson.M{"bsonType": "string", "enum": []string{kind}}
	for k, v := range extra {
		props[k] = v
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": append([]string{
				"kind",
				"owner_id",
				"origin",
				"destination",
				"scheduled_at",
				"is_closed",
				"created_at",
			}, required...),
			"additionalProperties": true,
			"properties":           props,
		},
	}
}

var RideValidator = listingValidator("ride", nil, "seats_available")

var TripValidator = listingValidator("trip", bson.M{
	"trip": bson.M{
		"bsonType": "object",
		"required": []string{"airport", "direction"},
		"properties": bson.M{
			"airport": bson.M{
				"bsonType": "string",
				"pattern":  "^[A-Z]{3}$",
			},
			"direction": bson.M{
				"bsonType": "string",
				"enum":     []string{"to_airport", "from_airport"},
			},
			"flight_number": bson.M{
				"bsonType":  "string",
				"maxLength": 10,
			},
		},
	},
}, "trip")
