package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"community-chat/internal/config"
	"community-chat/internal/db"
	"community-chat/internal/handlers"
	"community-chat/internal/identity"
	"community-chat/internal/middleware"
	"community-chat/internal/observability"
	"community-chat/internal/rabbitmq"
	"community-chat/internal/repositories"
	"community-chat/internal/telemetry"
	"community-chat/internal/ws"
)

func main() {
	cfg := config.Load()
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to db")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	logrus.WithField("mode", rabbitmq.PublisherMode(publisher)).Info("event publisher ready")

	audit := telemetry.NewAuditEmitter(publisher, "audit.community_chat", "community-chat", cfg.Env)
	verifier := identity.NewJWTVerifier(cfg.JWTSecret)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub(cfg.PresenceIdleAfter)
	chatWS := ws.NewChatHandler(hub, roomRepo, messageRepo, verifier, publisher, audit, cfg.HistoryLimit)
	roomHandler := handlers.NewRoomHandler(roomRepo, messageRepo, audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/rooms", roomHandler.ListPublicRooms)
	router.GET("/rooms/mine", authMiddleware, roomHandler.ListMyPrivateRooms)
	router.GET("/rooms/:room_id/messages", authMiddleware, roomHandler.GetRoomHistory)

	router.GET("/ws/chat", chatWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	logrus.WithField("port", cfg.Port).Info("community chat service listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("server error")
	}
}
