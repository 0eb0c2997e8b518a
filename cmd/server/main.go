package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/cart"
	"github.com/eventloom/tickethub/internal/config"
	"github.com/eventloom/tickethub/internal/database"
	"github.com/eventloom/tickethub/internal/handler"
	"github.com/eventloom/tickethub/internal/money"
	"github.com/eventloom/tickethub/internal/order"
	"github.com/eventloom/tickethub/internal/queue"
	"github.com/eventloom/tickethub/internal/repository"
	"github.com/eventloom/tickethub/internal/router"
	queue_publisher "github.com/eventloom/tickethub/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load(".env")
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cur, ok := money.ByCode(cfg.CurrencyCode)
	if !ok {
		log.Fatalf("unknown currency code: %s", cfg.CurrencyCode)
	}

	// Redis backs the cart; without it every instance keeps its own
	// carts, which is fine for a single-node deployment.
	var carts cart.Store
	if rdb := config.NewRedisClient(); rdb != nil {
		carts = cart.NewRedisStore(rdb, "cart")
	} else {
		log.Println("redis unavailable, using in-process cart store")
		carts = cart.NewMemoryStore()
	}

	orders := repository.NewOrderRepo(db)
	tickets := repository.NewTicketRepo(db)
	attendees := repository.NewAttendeeRepo(db)
	events := repository.NewEventRepo(db)
	users := repository.NewUserRepo(db)

	publisher := queue_publisher.New(cfg.AMQPURL)
	svc := order.NewService(orders, tickets, attendees, carts, cur, publisher)
	processor := order.NewProcessor(orders, svc, publisher)

	go func() {
		if err := queue.StartRetryConsumer(cfg.AMQPURL, processor); err != nil {
			log.Printf("retry consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)

	authH := handler.NewAuthHandler(cfg, users)
	eventH := handler.NewEventHandler(events, tickets, cur)
	cartH := handler.NewCartHandler(carts, tickets)
	checkoutH := handler.NewCheckoutHandler(svc, users, cur)
	orderH := handler.NewOrderHandler(orders, tickets, svc, cur)
	attendeeH := handler.NewAttendeeHandler(attendees, orders, cfg.QRSecret)
	webhookH := handler.NewWebhookHandler(orders, publisher, cfg.WebhookSecret)

	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, eventH)
	router.RegisterCustomer(e, cartH, checkoutH, orderH, attendeeH, cfg.JWTSecret)
	router.RegisterOrganizer(e, eventH, attendeeH, cfg.JWTSecret)
	router.RegisterAdmin(e, orderH, cfg.JWTSecret)
	router.RegisterWebhooks(e, webhookH)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
