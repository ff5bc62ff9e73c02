package main

import (
	"context"
	"errors"
	"os"

	chathandler "rideshare/internal/chat/handler"
	chatrepository "rideshare/internal/chat/repository"
	chatservice "rideshare/internal/chat/service"
	chatvalidator "rideshare/internal/chat/validator"
	"rideshare/internal/notifications/consumer"
	"rideshare/internal/notifications/dispatcher"
	"rideshare/internal/notifications/events"
	notificationshandler "rideshare/internal/notifications/handler"
	notificationsrepository "rideshare/internal/notifications/repository"
	notificationsservice "rideshare/internal/notifications/service"
	"rideshare/pkg/app"
	"rideshare/pkg/config"
	"rideshare/pkg/kafka"
	kafka_config "rideshare/pkg/kafka/config"
	kafka_middleware "rideshare/pkg/kafka/middleware"
	"rideshare/pkg/realtime"
)

const ServiceName = "chat"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Chat service")
	serverApp := app.NewApplication(cfg, ServiceName)

	hub := realtime.NewHub(cfg.Log)
	publisher := initEvents(cfg, serverApp, hub)
	serverApp.OnShutdown(func(context.Context) { hub.Close() })

	notificationRepo := notificationsrepository.NewMongoNotificationRepository(cfg)
	messageRepo := chatrepository.NewMongoMessageRepository(cfg)
	notifier := dispatcher.NewDispatcher(messageRepo, notificationRepo, publisher, cfg.Log)

	messageService := chatservice.NewMessageService(messageRepo, chatvalidator.NewMessageValidator(), notifier, cfg)
	notificationService := notificationsservice.NewNotificationService(notificationRepo, cfg)

	messageHandler := chathandler.NewMessageHandler(messageService, hub, realtime.NewUpgrader(cfg.AllowedOrigins), cfg.Log)
	serverApp.SetApp(
		messageHandler,
		notificationshandler.NewNotificationHandler(notificationService, cfg.Log),
	)
	serverApp.Mount("/api/v1/subscribe", messageHandler.SubscribeHandler())
	serverApp.Run()
}

// initEvents returns the publisher for message.created events. With Kafka
// the service also consumes the events topic and fans each event out to the
// hub; without it, events go straight to the hub.
func initEvents(cfg *config.Config, serverApp *app.Application, hub *realtime.Hub) dispatcher.EventPublisher {
	if !cfg.KafkaEnabled {
		cfg.Log.Warn("Kafka disabled, delivering events in process only")
		return consumer.NewHubPublisher(hub, cfg.Log)
	}

	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	metrics := kafka_middleware.NewMetrics(serverApp.Registry())

	publisher, err := events.NewKafkaPublisher(cfg, kcfg, metrics, serverApp, ServiceName)
	if err != nil {
		cfg.Log.Fatal("Failed to set up events", "error", err)
	}

	// Every instance holds its own websockets, so each needs every event.
	groupID := cfg.EventsConsumerGroup
	if host, err := os.Hostname(); err == nil && host != "" {
		groupID += "-" + host
	}

	eventConsumer := consumer.NewEventConsumer(hub, cfg.Log)
	c, err := kafka.NewConsumer(kcfg, cfg.EventsTopic, groupID, cfg.EventsDLQTopic, eventConsumer.Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create events consumer", "error", err)
	}
	c.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	c.Use(metrics.ConsumerMiddleware())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, kafka.ErrConsumerClosed) {
			cfg.Log.Error("Events consumer stopped", "error", err)
		}
	}()
	serverApp.OnShutdown(func(context.Context) {
		cancel()
		if err := c.Close(); err != nil {
			cfg.Log.Error("Failed to close events consumer", "error", err)
		}
	})

	cfg.Log.Info("Events consumer started", "topic", cfg.EventsTopic, "group_id", groupID)
	return publisher
}
