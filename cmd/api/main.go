package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"rentex/internal/adapter/api"
	"rentex/internal/adapter/api/handler"
	apimiddleware "rentex/internal/adapter/api/middleware"
	"rentex/internal/adapter/api/router"
	"rentex/internal/adapter/repository"
	domainrepo "rentex/internal/domain/repository"
	"rentex/internal/infrastructure/firebase"
	"rentex/internal/infrastructure/websocket"
	"rentex/internal/usecase"
	"rentex/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption

	// Service account from environment variable (production) with a file
	// path fallback (local development).
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./service-account.json"
		}

		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}

		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	var messageRepo domainrepo.MessageRepository
	var userRepo domainrepo.UserRepository

	if cfg.StoreBackend == "memory" {
		log.Printf("STORE_BACKEND=memory: messages will not survive a restart")
		messageRepo = repository.NewMemoryMessageRepository()
		userRepo = repository.NewMemoryUserRepository()
	} else {
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		messageRepo = repository.NewFirestoreMessageRepository(firestoreClient)
		userRepo = repository.NewFirestoreUserRepository(firestoreClient)
	}

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)

	wsManager := websocket.NewManager()

	messagingUseCase := usecase.NewMessagingUseCase(messageRepo, userRepo, wsManager, cfg.StoreTimeout)
	presenceUseCase := usecase.NewPresenceUseCase(wsManager, cfg.TypingDecayWindow)

	wsManager.Bind(messagingUseCase, presenceUseCase)
	wsManager.Start(ctx)
	presenceUseCase.StartDecaySweeper(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(firebaseAuthClient)

	messageHandler := handler.NewMessageHandler(messagingUseCase)
	historyHandler := handler.NewHistoryHandler(messagingUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	router.SetupMessageRouter(e, messageHandler, historyHandler, authMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
