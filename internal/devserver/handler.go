// Package devserver is a local stand-in for the match service: the HTTP
// and WebSocket contracts the client engine talks to, backed by a simple
// first-come matcher. It exists for development and end-to-end tests.
package devserver

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

const (
	userIDKey         = "user_id"
	minPasswordLength = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	Storage storage.Storage
	Tokens  *TokenService
	Hub     *Hub
	Matcher *Matcher
	now     func() time.Time
}

func NewHandler(s storage.Storage, tokens *TokenService, hub *Hub, matcher *Matcher) *Handler {
	return &Handler{Storage: s, Tokens: tokens, Hub: hub, Matcher: matcher, now: time.Now}
}

// Router wires every route under /api.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, ".") })

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
	}

	authed := api.Group("", h.AuthRequired())
	authed.GET("/users/me", h.Me)
	authed.PUT("/users/me/location", h.UpdateLocation)
	authed.GET("/match/today", h.TodayMatch)
	authed.POST("/match/find", h.FindMatch)
	authed.GET("/chat/ws", h.ServeWebSocket)
	authed.GET("/chat/:sessionId/messages", h.Messages)
	authed.POST("/chat/:sessionId/end", h.EndChat)
	return r
}

// AuthRequired accepts an access token as a bearer header or, for the
// socket handshake, as the token query parameter.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		userID, err := h.Tokens.Validate(token, tokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *Handler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password, and username are required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password, and username are required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := &models.User{Email: email, Username: username, PasswordHash: string(hash)}
	if err := h.Storage.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.issueTokens(c, user.ID, http.StatusCreated)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.Storage.UserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	h.issueTokens(c, user.ID, http.StatusOK)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID, err := h.Tokens.Validate(req.RefreshToken, tokenRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	h.issueTokens(c, userID, http.StatusOK)
}

func (h *Handler) issueTokens(c *gin.Context, userID string, status int) {
	tokens, err := h.Tokens.GenerateTokenPair(userID)
	if err != nil {
		log.Printf("ERROR: Failed to create tokens for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate tokens"})
		return
	}
	c.JSON(status, tokens)
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.Storage.UserByID(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user.Profile())
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	var req models.LocationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !req.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coordinates"})
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	err := h.Storage.UpdateLocation(c.Request.Context(), c.GetString(userIDKey), req)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) TodayMatch(c *gin.Context) {
	resp, err := h.Matcher.Today(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check match"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) FindMatch(c *gin.Context) {
	resp, err := h.Matcher.Find(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to find match"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// memberSession loads the session named in the path and checks that the
// caller takes part in it. It writes the error response itself.
func (h *Handler) memberSession(c *gin.Context, sessionID string) (*models.ChatSession, bool) {
	session, err := h.Storage.SessionByID(c.Request.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	if !session.Includes(c.GetString(userIDKey)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for this session"})
		return nil, false
	}
	return session, true
}

func (h *Handler) Messages(c *gin.Context) {
	session, ok := h.memberSession(c, c.Param("sessionId"))
	if !ok {
		return
	}

	history, err := h.Storage.GetChatHistory(c.Request.Context(), session.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}
	messages := make([]models.ChatMessage, 0, len(history))
	for _, row := range history {
		messages = append(messages, row.Message())
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) EndChat(c *gin.Context) {
	session, ok := h.memberSession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	userID := c.GetString(userIDKey)
	now := h.now().UTC()

	err := h.Storage.EndSession(c.Request.Context(), session.SessionID, models.SessionEndedByUser, now)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "active session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end chat"})
		return
	}

	err = h.Hub.Broadcast(models.WSMessage{
		Type:      models.TypeChatEnded,
		SessionID: session.SessionID,
		SenderID:  userID,
		Timestamp: now.Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("WARNING: chat_ended for %s not broadcast: %v", session.SessionID, err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

// ServeWebSocket upgrades the request and joins the caller to the
// session room. Only members of an active session may join.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	session, ok := h.memberSession(c, sessionID)
	if !ok {
		return
	}
	if !session.IsActive() {
		c.JSON(http.StatusForbidden, gin.H{"error": "session has ended"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARNING: websocket upgrade: %v", err)
		return
	}
	NewClient(h.Hub, conn, c.GetString(userIDKey), sessionID).Run()
}
