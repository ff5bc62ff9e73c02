package validators

import "go.mongodb.org/mongo-driver/bson"

var MessageValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"sender_id",
			"receiver_id",
			"content",
			"message_type",
			"is_read",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"sender_id": bson.M{
				"bsonType": "string",
			},
			"receiver_id": bson.M{
				"bsonType": "string",
			},
			"content": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 2000,
			},
			"message_type": bson.M{
				"bsonType": "string",
				"enum":     []string{"user", "system"},
			},
			"confirmation_id": objectIDString,
			"is_read": bson.M{
				"bsonType": "bool",
			},
			"read_at": bson.M{
				"bsonType": "date",
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var NotificationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"title",
			"message",
			"priority",
			"is_read",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"user_id": bson.M{
				"bsonType": "string",
			},
			"title": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"message": bson.M{
				"bsonType": "string",
			},
			"priority": bson.M{
				"bsonType": "string",
				"enum":     []string{"low", "normal", "high"},
			},
			"action_data": bson.M{
				"bsonType": "object",
			},
			"is_read": bson.M{
				"bsonType": "bool",
			},
			"read_at": bson.M{
				"bsonType": "date",
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
