package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"aireadiness/internal/cache"
	"aireadiness/internal/config"
	"aireadiness/internal/quiz"
	"aireadiness/internal/repository"
	"aireadiness/internal/service"
	"aireadiness/internal/transport/rest"
	"aireadiness/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	deck, err := config.LoadCopyDeck(cfg.CopyDeckPath)
	if err != nil {
		log.Printf("Warning: copy deck %s not loaded (%v), using defaults", cfg.CopyDeckPath, err)
		deck = config.DefaultCopyDeck()
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	// Redis connection
	redisAddr := cfg.RedisAddr
	// Remove redis:// prefix if present
	if len(redisAddr) > 8 && redisAddr[:8] == "redis://" {
		redisAddr = redisAddr[8:]
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Upstream engine client
	engine := quiz.NewClient(cfg.UpstreamURL)

	// Initialize repositories and caches
	sessionRepo := repository.NewSessionRepo(mongoClient)
	snapshots := cache.NewSnapshotCache(rdb)

	// Speech synthesis backend: dedicated OpenAI voice when configured,
	// otherwise the engine's own /tts endpoint.
	var synth service.Synthesizer = engine
	if cfg.TTSProvider == "openai" && cfg.OpenAIAPIKey != "" {
		synth = service.NewOpenAISynthesizer(cfg.OpenAIAPIKey, cfg.TTSModel, cfg.TTSVoice)
		log.Println("TTS provider: openai")
	} else {
		log.Println("TTS provider: upstream engine")
	}

	// Initialize services
	speechSvc := service.NewSpeechService(synth)
	tokenSvc := service.NewTokenService()
	sched := service.NewScheduler()
	sessionSvc := service.NewSessionService(engine, snapshots, sessionRepo, speechSvc, tokenSvc, sched, deck, cfg.ResultsURL)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	sessionSvc.SetBroadcaster(wsHub)
	speechSvc.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		SessionService: sessionSvc,
		TokenService:   tokenSvc,
		SessionRepo:    sessionRepo,
		CopyDeck:       deck,
		WSHub:          wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Printf("Upstream engine: %s", cfg.UpstreamURL)
		log.Println("Endpoints:")
		log.Println("  GET  /v1/session")
		log.Println("  POST /v1/session/start")
		log.Println("  POST /v1/session/resume")
		log.Println("  POST /v1/session/answers")
		log.Println("  POST /v1/session/skip")
		log.Println("  POST /v1/session/speak")
		log.Println("  POST /v1/session/speech/ended")
		log.Println("  GET  /v1/results/{sessionId}")
		log.Println("  WS   /v1/ws/session")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	sessionSvc.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
