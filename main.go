package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	api "mailagent-backend/cmd/api"
	"mailagent-backend/internal/agent/domain"
	agentRepo "mailagent-backend/internal/agent/repository"
	"mailagent-backend/internal/agent/scheduler"
	agentUsecase "mailagent-backend/internal/agent/usecase"
	"mailagent-backend/internal/notification"
	"mailagent-backend/pkg/ai"
	"mailagent-backend/pkg/config"
	"mailagent-backend/pkg/database"
	"mailagent-backend/pkg/fcm"
	"mailagent-backend/pkg/gmail"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&domain.Credential{}, &domain.EmailLog{}, &domain.Activity{}, &domain.DeviceToken{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	if cfg.EncryptionKey == "" {
		log.Printf("[WARN] ENCRYPTION_KEY not set, credentials are stored unencrypted")
	}

	// Initialize repositories (dependency injection)
	credentialRepo := agentRepo.NewCredentialRepository(db)
	emailLogRepo := agentRepo.NewEmailLogRepository(db)
	activityRepo := agentRepo.NewActivityRepository(db)
	deviceTokenRepo := agentRepo.NewDeviceTokenRepository(db)

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	mailClient := agentUsecase.NewGmailMailClient(gmailService, credentialRepo, cfg.EncryptionKey)

	aiCfg := ai.Config{
		Provider:       ai.ParseProvider(cfg.AIProvider),
		GeminiAPIKey:   cfg.GeminiApiKey,
		GeminiBreakers: ai.NewBreakerSet("gemini"),
		OllamaBaseURL:  cfg.OllamaBaseURL,
		OllamaModel:    cfg.OllamaModel,
	}
	classifier := agentUsecase.NewAIClassifier(credentialRepo, aiCfg, cfg.EncryptionKey)
	log.Printf("[AI] Classifier provider: %s", aiCfg.Provider)

	// Activity sink, with device push when Firebase is configured
	var sink agentUsecase.LogSink = agentUsecase.NewRepositorySink(emailLogRepo, activityRepo)
	var notifier *notification.ActivityNotifier
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(context.Background(), cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		} else {
			notifier = notification.NewActivityNotifier(sink, deviceTokenRepo, fcmClient)
			sink = notifier
			log.Printf("[FCM] Activity push enabled")
		}
	} else {
		log.Printf("[FCM] No Firebase credentials configured, activity push disabled")
	}

	pipeline := agentUsecase.NewPipeline(credentialRepo, mailClient, classifier, sink, agentUsecase.PipelineConfig{
		BatchSize:         cfg.BatchSize,
		CallTimeout:       cfg.CallTimeout,
		PendingRetryAfter: cfg.PendingRetryAfter,
	})
	monitor := scheduler.NewMonitor(pipeline, cfg.PollInterval)

	// Gmail push (Watch + Pub/Sub) only when a project is configured
	pushCtx, cancelPush := context.WithCancel(context.Background())
	defer cancelPush()

	var watcher scheduler.Watcher
	var notifService *notification.Service
	if cfg.GoogleProjectID != "" {
		topicName := shortTopicName(cfg.GooglePubSubTopic)
		watcher = agentUsecase.NewMailboxWatcher(gmailService, credentialRepo, cfg.EncryptionKey,
			fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleProjectID, topicName))

		notifService, err = notification.NewService(pushCtx, cfg.GoogleProjectID, topicName, credentialRepo, monitor, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(pushCtx)
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, Gmail push disabled; polling only")
	}

	reconciler := scheduler.NewReconciler(monitor, credentialRepo, watcher, cfg.ReconcileInterval)
	reconciler.Start()

	handler := api.NewHandler(monitor, activityRepo, deviceTokenRepo)
	go func() {
		if err := handler.Start(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	reconciler.Stop()
	cancelPush()
	if notifService != nil {
		if err := notifService.Close(); err != nil {
			log.Printf("[PubSub] Close failed: %v", err)
		}
	}
	if err := monitor.StopAll(ctx); err != nil {
		log.Printf("[Monitor] Timed out waiting for runs: %v", err)
	}
	if notifier != nil {
		notifier.Close()
	}
	if err := handler.Shutdown(ctx); err != nil {
		log.Printf("[API] Shutdown failed: %v", err)
	}
	log.Println("Shutdown complete")
}

// shortTopicName accepts either "gmail-push" or "projects/p/topics/gmail-push"
func shortTopicName(topic string) string {
	if parts := strings.Split(topic, "/"); len(parts) > 1 {
		topic = parts[len(parts)-1]
	}
	if topic == "" {
		topic = "gmail-updates"
	}
	return topic
}
