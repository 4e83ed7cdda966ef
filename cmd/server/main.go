package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/calebferro/slotbook/internal/booking"
	"github.com/calebferro/slotbook/internal/config"
	"github.com/calebferro/slotbook/internal/database"
	"github.com/calebferro/slotbook/internal/handler"
	"github.com/calebferro/slotbook/internal/notify"
	"github.com/calebferro/slotbook/internal/payment"
	"github.com/calebferro/slotbook/internal/queue"
	"github.com/calebferro/slotbook/internal/router"
	"github.com/calebferro/slotbook/internal/storage"
	"github.com/calebferro/slotbook/internal/storage/memory"
	"github.com/calebferro/slotbook/internal/storage/mysql"
	"github.com/calebferro/slotbook/internal/waitlist"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var store storage.Store
	switch cfg.StoreDriver {
	case "memory":
		store = memory.New()
		log.Printf("using in-memory store; data will not survive a restart")
	default:
		db, err := database.Open(context.Background(), cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		store = mysql.New(db)
	}

	pub := queue.NewPublisher(cfg.AMQPURL)
	notifier := notify.NewQueueNotifier(pub)

	promoter := waitlist.NewPromoter(store, notifier, waitlist.Config{
		ClaimWindow: time.Duration(cfg.ClaimWindowMin) * time.Minute,
	})

	var gateway payment.Gateway
	switch cfg.PaymentGateway {
	case "log":
		gateway = payment.LogGateway{}
	default:
		log.Printf("unknown payment gateway %q; falling back to log", cfg.PaymentGateway)
		gateway = payment.LogGateway{}
	}

	coord := booking.NewCoordinator(store, gateway, notifier, pub, booking.Config{
		WindowHours: cfg.ModWindowHours,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Claim-window expiry is database-backed; the worker picks up
	// whatever was NOTIFIED before a restart.
	go waitlist.NewWorker(promoter, time.Duration(cfg.ExpirySweepSec)*time.Second).Run(ctx)
	go func() {
		if err := queue.StartSpotFreedConsumer(cfg.AMQPURL, promoter); err != nil {
			log.Printf("spot-freed consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := queue.StartNotificationConsumer(cfg.AMQPURL); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and response cache disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(cfg, store),
		Booking:  handler.NewBookingHandler(coord, store),
		Waitlist: handler.NewWaitlistHandler(coord, promoter),
		Browse:   handler.NewBrowseHandler(store),
	}, cfg, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s store=%s)", addr, cfg.Env, cfg.StoreDriver)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
