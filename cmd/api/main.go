package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-marketplace-settlement/internal/cart"
	"github.com/ariefcatur/go-marketplace-settlement/internal/config"
	"github.com/ariefcatur/go-marketplace-settlement/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace-settlement/internal/kafka"
	"github.com/ariefcatur/go-marketplace-settlement/internal/ledger"
	"github.com/ariefcatur/go-marketplace-settlement/internal/memstore"
	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
	"github.com/ariefcatur/go-marketplace-settlement/internal/postgres"
	"github.com/ariefcatur/go-marketplace-settlement/internal/redisx"
	"github.com/ariefcatur/go-marketplace-settlement/internal/settlement"
)

type backend interface {
	cart.Store
	ledger.Store
	settlement.Store
	settlement.OrderReader
	httpx.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := cfg.NewLogger().WithField("service", cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store backend
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, state is lost on exit")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.WithError(err).Fatal("db connect")
		}
		defer db.Close()
		store = postgres.NewStore(db)
	}

	ordersH := &httpx.OrdersHandler{
		Engine:  &settlement.Engine{Store: store, Log: log},
		History: &settlement.History{Reader: store},
		Service: cfg.ServiceName,
		Log:     log,
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Fatal("redis connect")
		}
		defer rdb.Close()
		ordersH.Idem = &redisx.Idempotency{Client: rdb}
	}

	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, log)
		prod.Start(ctx)
		ordersH.Producer = prod
	}

	carts := &httpx.CartsHandler{
		Cart:   &cart.Manager{Store: store, Stock: store, Log: log},
		Ledger: &ledger.Ledger{Store: store, Log: log},
		Log:    log,
	}
	router := httpx.NewRouter(log, cfg.RequestTimeout, store)
	httpx.Mount(router, &httpx.Auth{Secret: []byte(cfg.JWTSecret)}, carts, ordersH)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}
