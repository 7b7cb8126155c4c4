package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"transportchat/internal/adapter/api"
	"transportchat/internal/adapter/api/handler"
	apimiddleware "transportchat/internal/adapter/api/middleware"
	"transportchat/internal/adapter/api/router"
	"transportchat/internal/adapter/repository"
	domainrepo "transportchat/internal/domain/repository"
	"transportchat/internal/domain/service"
	"transportchat/internal/infrastructure/firebase"
	"transportchat/internal/infrastructure/push"
	"transportchat/internal/infrastructure/ratelimit"
	"transportchat/internal/infrastructure/websocket"
	"transportchat/internal/usecase"
	"transportchat/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service.InitDisplayPolicy(service.DisplayPolicy{
		ShowAlert: cfg.NotifyShowAlert,
		PlaySound: cfg.NotifyPlaySound,
		SetBadge:  cfg.NotifySetBadge,
	})

	var firebaseApp *fbapp.App
	var opts []option.ClientOption
	if cfg.NeedsFirebase() {
		if cfg.ServiceAccountJSON != "" {
			log.Printf("Using Firebase service account from environment variable")
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
		} else if cfg.ServiceAccountPath != "" {
			if _, err := os.Stat(cfg.ServiceAccountPath); os.IsNotExist(err) {
				log.Fatalf("Service account file does not exist: %s", cfg.ServiceAccountPath)
			}
			log.Printf("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
			opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
		} else {
			log.Printf("Using application default credentials")
		}

		firebaseApp, err = fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	var (
		messageRepo domainrepo.MessageRepository
		summaryRepo domainrepo.SummaryRepository
		profileRepo domainrepo.ProfileRepository
	)
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		messageRepo = repository.NewFirestoreMessageRepository(firestoreClient)
		summaryRepo = repository.NewFirestoreSummaryRepository(firestoreClient)
		profileRepo = repository.NewFirestoreProfileRepository(firestoreClient)
	default:
		log.Printf("Using in-memory store; data is lost on restart")
		messageRepo = repository.NewMemoryMessageRepository(nil)
		summaryRepo = repository.NewMemorySummaryRepository(nil)
		profileRepo = repository.NewMemoryProfileRepository()
	}

	var dispatcher service.NotificationDispatcher
	switch cfg.PushProvider {
	case config.PushExpo:
		dispatcher = push.NewExpoClient(cfg.ExpoHost, cfg.ExpoAccessToken, cfg.PushTimeout)
	case config.PushFCM:
		messagingClient, err := firebaseApp.Messaging(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Messaging: %v", err)
		}
		dispatcher = push.NewFCMClient(messagingClient)
	default:
		dispatcher = service.NoopDispatcher{}
	}

	var verifier firebase.TokenVerifier
	if firebaseApp != nil {
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	}
	if cfg.IsDevelopment() {
		verifier = firebase.NewDevTokenVerifier(verifier, 24*time.Hour)
	}
	if verifier == nil {
		log.Fatalf("No token verifier: set FIREBASE_PROJECT_ID or ENVIRONMENT=development")
	}

	limiter := ratelimit.NewRateLimiter(ratelimit.Policy{
		PerMinute: cfg.SendRatePerMinute,
		Burst:     cfg.SendBurst,
	})

	chatUseCase := usecase.NewChatUseCase(messageRepo, summaryRepo, profileRepo, dispatcher, limiter, usecase.ChatUseCaseConfig{
		NotificationTitle: cfg.NotificationTitle,
		PushTimeout:       cfg.PushTimeout,
	})

	wsManager := websocket.NewManager()

	handler.Setup(chatUseCase, wsManager, cfg.WSSendBuffer)
	handler.SetupHealthHandler(cfg.StoreBackend, cfg.PushProvider, wsManager)
	handler.SetupDevTokenHandler()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	router.Setup(e, authMiddleware, limiter, cfg.Environment)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsManager.Run(gctx)
	})

	limiter.StartCleanupRoutine(gctx, 30*time.Minute)

	g.Go(func() error {
		log.Printf("Starting server on port %s (store=%s, push=%s)...", cfg.ServerPort, cfg.StoreBackend, cfg.PushProvider)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
	}

	chatUseCase.Wait()
	log.Printf("Server stopped")
}
