package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/realtime"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

func main() {
	cfg := config.MustLoad()
	ctx := context.Background()

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint, "chat-sync")
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	emitter := telemetry.NewEmitter(publisher, cfg.AMQP.RoutingKey, "chat-sync", cfg.Telemetry.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)

	broker := realtime.NewBroker()
	if cfg.Realtime.FeedURL != "" {
		feed := realtime.NewFeed(cfg.Realtime.FeedURL, broker)
		if err := feed.Start(ctx); err != nil {
			log.Fatalf("failed to start realtime feed: %v", err)
		}
		defer feed.Stop()
	}

	threadHandler := handlers.NewThreadHandler(messageRepo, broker, emitter, cfg.Chat.EchoTolerance)
	inboxHandler := handlers.NewInboxHandler(messageRepo, profileRepo)
	threadWS := ws.NewThreadSessionHandler(messageRepo, broker, broker, emitter, cfg.Chat.EchoTolerance)
	inboxWS := ws.NewInboxSessionHandler(messageRepo, profileRepo, broker, broker, emitter)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-sync"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(cfg.Auth.JWTSecret)

	router.GET("/inbox", authMiddleware, inboxHandler.GetInbox)
	router.GET("/threads/:counterpart_id/messages", authMiddleware, threadHandler.GetThread)
	router.POST("/threads/:counterpart_id/messages", authMiddleware, threadHandler.PostMessage)
	router.POST("/threads/:counterpart_id/read", authMiddleware, threadHandler.MarkRead)

	router.GET("/ws/inbox", authMiddleware, inboxWS.Handle)
	router.GET("/ws/threads/:counterpart_id", authMiddleware, threadWS.Handle)

	if err := router.Run(cfg.Server.Address()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
