package main

import (
	chatrepository "rideshare/internal/chat/repository"
	"rideshare/internal/confirmations/handler"
	"rideshare/internal/confirmations/repository"
	"rideshare/internal/confirmations/service"
	"rideshare/internal/confirmations/validator"
	listingsrepository "rideshare/internal/listings/repository"
	"rideshare/internal/notifications/dispatcher"
	"rideshare/internal/notifications/events"
	notificationsrepository "rideshare/internal/notifications/repository"
	"rideshare/pkg/app"
	"rideshare/pkg/config"
	kafka_config "rideshare/pkg/kafka/config"
	kafka_middleware "rideshare/pkg/kafka/middleware"
)

const ServiceName = "confirmations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Confirmations service")
	serverApp := app.NewApplication(cfg, ServiceName)
	confirmationService := initServices(cfg, serverApp)
	serverApp.SetApp(handler.NewConfirmationHandler(confirmationService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) service.ConfirmationService {
	var publisher dispatcher.EventPublisher
	if cfg.KafkaEnabled {
		kcfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		publisher, err = events.NewKafkaPublisher(cfg, kcfg, kafka_middleware.NewMetrics(serverApp.Registry()), serverApp, ServiceName)
		if err != nil {
			cfg.Log.Fatal("Failed to set up events", "error", err)
		}
	} else {
		cfg.Log.Warn("Kafka disabled, status events will not reach realtime subscribers")
	}

	notifier := dispatcher.NewDispatcher(
		chatrepository.NewMongoMessageRepository(cfg),
		notificationsrepository.NewMongoNotificationRepository(cfg),
		publisher,
		cfg.Log,
	)

	confirmationService := service.NewConfirmationService(
		repository.NewMongoConfirmationRepository(cfg),
		listingsrepository.NewMongoListingRepository(cfg),
		validator.NewConfirmationValidator(cfg.Log),
		notifier,
		cfg,
	)

	cfg.Log.Info("Confirmation service initialized",
		"database", cfg.MongoDatabaseName,
		"cooldown", cfg.ConfirmationCooldown,
	)
	return confirmationService
}
