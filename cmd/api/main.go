package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shoply/orders/internal/billing"
	"github.com/shoply/orders/internal/cart"
	"github.com/shoply/orders/internal/checkout"
	"github.com/shoply/orders/internal/config"
	"github.com/shoply/orders/internal/fulfillment"
	"github.com/shoply/orders/internal/httpx"
	"github.com/shoply/orders/internal/inventory"
	kafkax "github.com/shoply/orders/internal/kafka"
	"github.com/shoply/orders/internal/orders"
	"github.com/shoply/orders/internal/postgres"
	"github.com/shoply/orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("db schema")
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, log)
	prod.Start(ctx)
	statusProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
	statusProd.Start(ctx)
	cancelProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024, log)
	cancelProd.Start(ctx)

	orderRepo := &orders.PGRepo{DB: db}
	ledger := &inventory.PGLedger{DB: db}
	carts := &cart.PGStore{DB: db}

	checkoutSvc := &checkout.Service{
		Carts:       carts,
		Ledger:      ledger,
		Orders:      orderRepo,
		Events:      prod,
		MaxUnits:    cfg.CheckoutMaxUnits,
		ShippingFee: cfg.ShippingFee,
		ServiceName: cfg.ServiceName,
		Log:         log,
	}
	fulfillmentSvc := &fulfillment.Service{
		Orders:      orderRepo,
		Ledger:      ledger,
		Events:      statusProd,
		Cancels:     cancelProd,
		ServiceName: cfg.ServiceName,
		Log:         log,
	}

	router := httpx.NewRouter(log)
	(&httpx.CartHandler{Store: carts, Log: log}).Register(router)
	(&httpx.OrdersHandler{
		Checkout:    checkoutSvc,
		Fulfillment: fulfillmentSvc,
		Repo:        orderRepo,
		Redis:       rdb,
		Bills:       billing.JSONGenerator{},
		Log:         log,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	prod.Close()
	statusProd.Close()
	cancelProd.Close()
	cancel()
	prod.WaitClosed()
	statusProd.WaitClosed()
	cancelProd.WaitClosed()
}
