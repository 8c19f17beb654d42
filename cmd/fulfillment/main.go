package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/config"
	"github.com/ariefcatur/go-marketplace-settlement/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-marketplace-settlement/internal/kafka"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/postgres"
	"github.com/ariefcatur/go-marketplace-settlement/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	name := cfg.ServiceName + "-fulfillment"
	log := cfg.NewLogger().WithField("service", name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Fatal("redis connect")
	}
	defer rdb.Close()

	completed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderFulfilled, 1024, log)
	completed.Start(ctx)

	svc := &fulfillment.Service{
		Orders:      postgres.NewStore(db),
		Dedup:       &redisx.Dedup{Client: rdb, Service: "fulfillment"},
		Completed:   completed,
		ServiceName: name,
		Log:         log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FulfillmentGroup, orders.TopicLineFulfilled, cfg.FulfillmentWorkers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.WithFields(logrus.Fields{
			"group":   cfg.FulfillmentGroup,
			"topic":   orders.TopicLineFulfilled,
			"workers": cfg.FulfillmentWorkers,
		}).Info("fulfillment consumer started")
		if err := cons.Start(ctx, svc.HandleLineFulfilled); err != nil {
			log.WithError(err).Error("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	<-done
	completed.Close()
	completed.WaitClosed()
}
