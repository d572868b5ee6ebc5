package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"casechat-sync/internal/api"
	"casechat-sync/internal/cache"
	"casechat-sync/internal/config"
	"casechat-sync/internal/engine"
	"casechat-sync/internal/handlers"
	"casechat-sync/internal/middleware"
	"casechat-sync/internal/observability"
	"casechat-sync/internal/readreceipt"
	"casechat-sync/internal/resolver"
	"casechat-sync/internal/store"
	"casechat-sync/internal/telemetry"
	"casechat-sync/internal/transport"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	snapshot, err := cache.Open(cfg.CacheDSN)
	if err != nil {
		log.Fatalf("failed to open snapshot cache: %v", err)
	}
	defer snapshot.Close()

	publisher := observability.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	observability.SetPublisher(publisher)
	defer publisher.Close()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, "casechat-sync", cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	client := api.NewClient(cfg.APIBaseURL, cfg.AuthToken)

	conn, err := transport.Dial(ctx, transport.Options{
		URL:                  cfg.PushURL,
		Token:                cfg.AuthToken,
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
	})
	if err != nil {
		log.Fatalf("failed to connect push channel: %v", err)
	}

	rooms := transport.NewRooms(conn, cfg.JoinAckTimeout)
	messages := store.New()
	recipients := resolver.New(client, messages)
	pipeline := store.NewSendPipeline(messages, client, recipients, cfg.ViewerID)
	tracker := readreceipt.New(client, messages, cfg.ViewerID)
	audit := telemetry.NewAuditEmitter("casechat.sync.audit", "casechat-sync", cfg.Environment)

	eng := engine.New(engine.Deps{
		Conn:     conn,
		Rooms:    rooms,
		API:      client,
		Store:    messages,
		Pipeline: pipeline,
		Tracker:  tracker,
		Snapshot: snapshot,
		Audit:    audit,
	})
	defer eng.Close()

	syncHandler := handlers.NewSyncHandler(eng)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware("casechat-sync"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "connection": eng.Status().Connection})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.TokenAuth(cfg.LocalToken)

	router.POST("/cases/:case_id/watch", auth, syncHandler.WatchCase)
	router.DELETE("/cases/:case_id/watch", auth, syncHandler.UnwatchCase)
	router.GET("/cases/:case_id/messages", auth, syncHandler.GetCaseMessages)
	router.GET("/cases/:case_id/messages/grouped", auth, syncHandler.GetCaseMessagesGrouped)
	router.POST("/cases/:case_id/messages", auth, syncHandler.PostCaseMessage)
	router.GET("/cases/:case_id/status", auth, syncHandler.GetCaseStatus)

	handlers.RegisterDebugRoutes(router, eng, audit, cfg.Environment != "production")

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
