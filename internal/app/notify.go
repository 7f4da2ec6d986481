package app

import (
	"context"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/notify"
)

// initializeNotifier builds the websocket hub and whichever event sinks
// are configured. A sink that cannot connect is skipped.
func (app *App) initializeNotifier(ctx context.Context) {
	logger := logging.GetGlobalLogger()
	app.Hub = notify.NewHub(logger)

	if app.RedisClient != nil {
		broker := notify.NewRedisBroker(app.RedisClient, app.Config.NotifyChannel, app.Hub, logger)
		if err := broker.Start(ctx); err != nil {
			app.Logger.Warn("Redis subscription failed, delivering events locally", logging.Err(err))
		} else {
			app.Broker = broker
		}
	}

	var publishers []notify.Publisher
	if app.Config.RabbitMQURL != "" {
		publisher, err := notify.NewAMQPPublisher(app.Config.RabbitMQURL, app.Config.OrderQueue, logger)
		if err != nil {
			app.Logger.Warn("RabbitMQ unavailable, order events will not be queued", logging.Err(err))
		} else {
			publishers = append(publishers, publisher)
			app.Logger.Info("RabbitMQ: Connected", logging.String("queue", app.Config.OrderQueue))
		}
	}

	app.Dispatcher = notify.NewDispatcher(app.Hub, app.Broker, app.InstanceID, logger, publishers...)
}
