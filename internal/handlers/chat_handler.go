package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
	"github.com/NdodaEnde/Telehealth-sub000/internal/realtime"
	"github.com/NdodaEnde/Telehealth-sub000/internal/services"
	"github.com/NdodaEnde/Telehealth-sub000/pkg/utils"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type chatApplicationService interface {
	CreateConversation(ctx context.Context, actorID, role, initialMessage string) (*models.Conversation, error)
	ListConversations(ctx context.Context, actorID, role string, opts services.ListOptions) ([]models.Conversation, error)
	UnassignedConversations(ctx context.Context, role string, limit int) ([]models.Conversation, error)
	MyChats(ctx context.Context, actorID, role string, limit int) ([]models.Conversation, error)
	GetConversation(ctx context.Context, actorID, role, conversationID string) (*models.Conversation, error)
	ClaimConversation(ctx context.Context, actorID, role, conversationID string) (*models.Conversation, error)
	ReassignConversation(ctx context.Context, role, conversationID, receptionistID string) (*models.Conversation, error)
	UpdateStatus(ctx context.Context, role, conversationID, status string) (*models.Conversation, error)
	UpdatePatientType(ctx context.Context, role, conversationID, patientType string) (*models.Conversation, error)
	SendMessage(ctx context.Context, actorID, role, conversationID string, input services.SendInput) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, actorID, role, conversationID string, limit int, before *time.Time) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, actorID, conversationID string) (*models.Conversation, error)
	Stats(ctx context.Context, actorID, role string) (*models.ChatStats, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *realtime.Hub
	storage   services.StorageService
	jwtSecret string
}

func NewChatHandler(
	service chatApplicationService,
	hub *realtime.Hub,
	storage services.StorageService,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		storage:   storage,
		jwtSecret: jwtSecret,
	}
}

type createConversationRequest struct {
	InitialMessage string `json:"initial_message"`
}

type sendMessageRequest struct {
	Content     string  `json:"content"`
	MessageType string  `json:"message_type"`
	FileURL     *string `json:"file_url"`
	FileName    *string `json:"file_name"`
	FileSize    *int64  `json:"file_size"`
}

type reassignRequest struct {
	ReceptionistID string `json:"receptionist_id"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

type patientTypeRequest struct {
	PatientType string `json:"patient_type"`
}

func actorFromLocals(c *fiber.Ctx) (string, string, bool) {
	userID, okID := c.Locals("user_id").(string)
	role, okRole := c.Locals("role").(string)
	return userID, role, okID && okRole && userID != "" && role != ""
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.CreateConversation(c.Context(), userID, role, req.InitialMessage)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	opts := services.ListOptions{
		Status:         c.Query("status"),
		AssignedToMe:   c.QueryBool("assigned_to_me"),
		UnassignedOnly: c.QueryBool("unassigned_only"),
		Limit:          parsePositiveInt(c.Query("limit"), defaultListLimit),
	}
	if opts.Status != "" && !models.ValidStatus(opts.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	conversations, err := h.service.ListConversations(c.Context(), userID, role, opts)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) UnassignedConversations(c *fiber.Ctx) error {
	_, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.UnassignedConversations(
		c.Context(), role, parsePositiveInt(c.Query("limit"), defaultListLimit),
	)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) MyChats(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.MyChats(
		c.Context(), userID, role, parsePositiveInt(c.Query("limit"), defaultListLimit),
	)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversation, err := h.service.GetConversation(c.Context(), userID, role, c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) ClaimConversation(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversation, err := h.service.ClaimConversation(c.Context(), userID, role, c.Params("id"))
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) ReassignConversation(c *fiber.Ctx) error {
	_, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req reassignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.ReassignConversation(c.Context(), role, c.Params("id"), req.ReceptionistID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) UpdateStatus(c *fiber.Ctx) error {
	_, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req statusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.UpdateStatus(c.Context(), role, c.Params("id"), req.Status)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) UpdatePatientType(c *fiber.Ctx) error {
	_, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req patientTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.UpdatePatientType(c.Context(), role, c.Params("id"), req.PatientType)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(c.Context(), userID, role, c.Params("id"), services.SendInput{
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	limit := parsePositiveInt(c.Query("limit"), defaultMessageLimit)
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid before cursor"})
		}
		before = &parsed
	}

	messages, err := h.service.ListMessages(c.Context(), userID, role, c.Params("id"), limit, before)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, _, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if _, err := h.service.MarkRead(c.Context(), userID, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *ChatHandler) Stats(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	stats, err := h.service.Stats(c.Context(), userID, role)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"stats": stats})
}

var allowedUploadTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"application/pdf": {},
}

func (h *ChatHandler) UploadFile(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage not configured"})
	}

	// access check piggybacks on the conversation fetch
	if _, err := h.service.GetConversation(c.Context(), userID, role, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing file"})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if _, allowed := allowedUploadTypes[contentType]; !allowed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File type not allowed"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read file"})
	}
	defer file.Close()

	storedName := uuid.NewString() + filepath.Ext(fileHeader.Filename)
	fileURL, err := h.storage.UploadFile(c.Context(), file, storedName, "chat/"+c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store file"})
	}

	return c.JSON(fiber.Map{
		"file_url":  fileURL,
		"file_name": fileHeader.Filename,
		"file_size": fileHeader.Size,
	})
}

// GetFileLink exchanges a stored attachment URL for a short-lived signed one.
func (h *ChatHandler) GetFileLink(c *fiber.Ctx) error {
	userID, role, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage not configured"})
	}

	// access check piggybacks on the conversation fetch
	if _, err := h.service.GetConversation(c.Context(), userID, role, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}

	fileURL := c.Query("file_url")
	if fileURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing file_url"})
	}

	signedURL, err := h.storage.GetSignedURL(c.Context(), fileURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sign file url"})
	}

	return c.JSON(fiber.Map{"signed_url": signedURL})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := realtime.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrAlreadyAssigned):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Conversation already assigned"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
