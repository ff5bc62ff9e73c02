// Package events wires the dispatcher's event publisher to Kafka for the
// services that produce lifecycle events.
package events

import (
	"context"
	"fmt"

	"rideshare/internal/notifications/dispatcher"
	"rideshare/pkg/config"
	"rideshare/pkg/kafka"
	kafka_config "rideshare/pkg/kafka/config"
	kafka_middleware "rideshare/pkg/kafka/middleware"
)

// Shutdowner is the part of the application that runs closers on exit.
type Shutdowner interface {
	OnShutdown(fn func(ctx context.Context))
}

// NewKafkaPublisher builds a producer for the events topic with logging and
// metrics middleware, and registers its Close on app shutdown.
func NewKafkaPublisher(cfg *config.Config, kcfg *kafka_config.Config, metrics *kafka_middleware.Metrics, app Shutdowner, source string) (dispatcher.EventPublisher, error) {
	producer, err := kafka.NewProducer(kcfg, cfg.EventsTopic, cfg.EventsDLQTopic, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create events producer: %w", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(metrics.ProducerMiddleware())

	app.OnShutdown(func(ctx context.Context) {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close events producer", "error", err)
		}
	})

	cfg.Log.Info("Events producer configured", append([]any{"topic", cfg.EventsTopic}, kcfg.LogAttrs()...)...)
	return kafka.NewEventPublisher(producer, source), nil
}
