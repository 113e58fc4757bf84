package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shoply/orders/internal/config"
	"github.com/shoply/orders/internal/fulfillment"
	"github.com/shoply/orders/internal/inventory"
	kafkax "github.com/shoply/orders/internal/kafka"
	"github.com/shoply/orders/internal/orders"
	"github.com/shoply/orders/internal/payments"
	"github.com/shoply/orders/internal/postgres"
	"github.com/shoply/orders/internal/redisx"
)

// The worker applies payment-gateway events to orders: authorized payments
// become paid, failed ones become failed. It runs next to the API so webhook
// bursts never block checkout traffic.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName+"-worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	statusProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
	statusProd.Start(ctx)

	svc := &payments.Service{
		Fulfillment: &fulfillment.Service{
			Orders:      &orders.PGRepo{DB: db},
			Ledger:      &inventory.PGLedger{DB: db},
			Events:      statusProd,
			ServiceName: cfg.ServiceName + "-worker",
			Log:         log,
		},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-worker",
		Log:         log,
	}

	for _, topic := range []string{orders.TopicPaymentAuthorized, orders.TopicPaymentFailed} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, topic, cfg.WorkerConcurrency, log)
		go func(topic string) {
			log.Info().Str("topic", topic).Str("group", cfg.WorkerGroup).Msg("consumer started")
			if err := cons.Start(ctx, svc.HandleEvent); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("consumer exit")
				cancel()
			}
		}(topic)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()
	time.Sleep(500 * time.Millisecond)
	statusProd.Close()
	statusProd.WaitClosed()
}
