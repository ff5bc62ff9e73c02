package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret      = "JWT_SECRET"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvConfirmationCooldown = "CONFIRMATION_COOLDOWN"

	EnvRetryMaxTries        = "RETRY_MAX_TRIES"
	EnvRetryInitialInterval = "RETRY_INITIAL_INTERVAL"
	EnvRetryMaxInterval     = "RETRY_MAX_INTERVAL"

	EnvKafkaEnabled        = "KAFKA_ENABLED"
	EnvEventsTopic         = "EVENTS_TOPIC"
	EnvEventsDLQTopic      = "EVENTS_DLQ_TOPIC"
	EnvEventsConsumerGroup = "EVENTS_CONSUMER_GROUP"
)
