package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-collab/auth"
	"school-collab/internal/config"
	"school-collab/internal/db"
	"school-collab/internal/feed"
	"school-collab/internal/middleware"
	"school-collab/internal/relay"
	"school-collab/internal/user"
	"school-collab/internal/worker"
	"school-collab/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
)

const presenceTTL = 2 * time.Minute

func main() {
	flag.Parse()
	defer glog.Flush()

	// Load configuration
	config.LoadConfig()

	// Optional user directory
	var directory user.Directory
	if config.AppConfig.DatabaseURL != "" {
		if err := db.ConnectDb(); err != nil {
			glog.Warningf("[main]database not available, profiles are taken from tokens: %v", err)
		} else {
			defer db.CloseDb()
			if err := db.Migrate(db.AppDb); err != nil {
				glog.Fatalf("[main]migrate: %v", err)
			}
			store := user.NewStore(db.AppDb)
			if config.AppConfig.IsDevelopment() {
				// Seed database with initial data (for development)
				db.SeedData(store)
			}
			directory = user.NewDirectory(store)
		}
	}

	// Background work for the mirror and the feed
	pool := worker.NewWorkerPool(config.AppConfig.WorkerPoolSize, 5*time.Second)

	// Initialize Redis
	var mirror relay.PresenceStore
	if client := redis.InitRedis(config.AppConfig.RedisAddress); client != nil {
		defer client.Close()
		mirror = redis.NewPresenceMirror(client, presenceTTL)
	}

	// Operation feed
	var operationFeed relay.Feed
	var dispatcher *feed.KafkaDispatcher
	if 0 < len(config.AppConfig.KafkaBrokers) {
		producer, err := feed.NewSyncProducer(config.AppConfig.KafkaBrokers)
		if err != nil {
			glog.Warningf("[main]kafka not available, operation feed disabled: %v", err)
		} else {
			dispatcher = feed.NewKafkaDispatcher(producer, config.AppConfig.KafkaTopic, feed.DefaultOptions())
			operationFeed = dispatcher
		}
	}

	hub := relay.NewHub(mirror, operationFeed, pool)

	origins := []string{}
	if !config.AppConfig.IsDevelopment() {
		origins = []string{config.AppConfig.FrontendAddress}
	}
	server := relay.NewServer(hub, relay.Options{
		Verifier:       auth.NewVerifier(config.AppConfig.JWTSecret),
		RequireAuth:    config.AppConfig.RequireAuth,
		Directory:      directory,
		InternalSecret: config.AppConfig.InternalSecret,
		AllowedOrigins: origins,
	})

	// Initialize Gin router
	router := gin.Default()

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.IsDevelopment() {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = origins
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.ErrorHandler())

	server.Register(router)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		glog.Infof("[main]listening on port %s", serverPort)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			glog.Fatalf("[main]server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Infof("[main]shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		glog.Errorf("[main]server shutdown error: %v", err)
	}
	// hijacked websockets are not closed by Shutdown
	hub.CloseAll()
	pool.Shutdown()
	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			glog.Errorf("[main]feed close error: %v", err)
		}
	}
	glog.Infof("[main]server shutdown complete")
}
