package routes

import (
	"github.com/NdodaEnde/Telehealth-sub000/internal/config"
	"github.com/NdodaEnde/Telehealth-sub000/internal/handlers"
	"github.com/NdodaEnde/Telehealth-sub000/internal/middleware"
	"github.com/NdodaEnde/Telehealth-sub000/internal/realtime"
	"github.com/NdodaEnde/Telehealth-sub000/internal/repository"
	"github.com/NdodaEnde/Telehealth-sub000/internal/services"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	hub := realtime.NewHub()
	go hub.Run()

	chatService := services.NewChatService(db, conversationRepo, messageRepo, userRepo, hub)

	authHandler := handlers.NewAuthHandler(db, userRepo, cfg.JWTSecret)
	chatHandler := handlers.NewChatHandler(chatService, hub, storageService, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	chat := protected.Group("/chat")
	chat.Get("/conversations", chatHandler.ListConversations)
	chat.Post("/conversations", chatHandler.CreateConversation)
	chat.Get("/conversations/unassigned", chatHandler.UnassignedConversations)
	chat.Get("/conversations/my-chats", chatHandler.MyChats)
	chat.Get("/conversations/:id", chatHandler.GetConversation)
	chat.Post("/conversations/:id/claim", chatHandler.ClaimConversation)
	chat.Post("/conversations/:id/reassign", chatHandler.ReassignConversation)
	chat.Patch("/conversations/:id/status", chatHandler.UpdateStatus)
	chat.Patch("/conversations/:id/patient-type", chatHandler.UpdatePatientType)
	chat.Get("/conversations/:id/messages", chatHandler.GetMessages)
	chat.Post("/conversations/:id/messages", chatHandler.SendMessage)
	chat.Post("/conversations/:id/read", chatHandler.MarkRead)
	chat.Post("/conversations/:id/upload", chatHandler.UploadFile)
	chat.Get("/conversations/:id/files", chatHandler.GetFileLink)
	chat.Get("/stats", chatHandler.Stats)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
