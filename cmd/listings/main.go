package main

import (
	chatrepository "rideshare/internal/chat/repository"
	confirmationsrepository "rideshare/internal/confirmations/repository"
	"rideshare/internal/listings/handler"
	"rideshare/internal/listings/repository"
	"rideshare/internal/listings/service"
	"rideshare/internal/listings/validator"
	"rideshare/internal/notifications/dispatcher"
	"rideshare/internal/notifications/events"
	notificationsrepository "rideshare/internal/notifications/repository"
	"rideshare/pkg/app"
	"rideshare/pkg/config"
	kafka_config "rideshare/pkg/kafka/config"
	kafka_middleware "rideshare/pkg/kafka/middleware"
)

const ServiceName = "listings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Listings service")
	serverApp := app.NewApplication(cfg, ServiceName)
	listingService := initServices(cfg, serverApp)
	serverApp.SetApp(handler.NewListingHandler(listingService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, serverApp *app.Application) service.ListingService {
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
		cfg.Log.Warn("Kafka disabled, listing events will not reach realtime subscribers")
	}

	notifier := dispatcher.NewDispatcher(
		chatrepository.NewMongoMessageRepository(cfg),
		notificationsrepository.NewMongoNotificationRepository(cfg),
		publisher,
		cfg.Log,
	)

	listingService := service.NewListingService(
		repository.NewMongoListingRepository(cfg),
		validator.NewListingValidator(cfg.Log),
		confirmationsrepository.NewMongoConfirmationRepository(cfg),
		notifier,
		cfg,
	)

	cfg.Log.Info("Listing service initialized", "database", cfg.MongoDatabaseName)
	return listingService
}
