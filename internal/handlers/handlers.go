// Package handlers exposes the orchestrator to the chat UI over JSON HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/retailchat-ai/server/internal/agent/graph"
	"github.com/retailchat-ai/server/internal/agent/model"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/ingest"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// Assistant is what the chat endpoints need from the orchestrator.
type Assistant interface {
	Open(ctx context.Context) (string, error)
	Reset(ctx context.Context, sessionID string) error
	Upload(ctx context.Context, sessionID string, f graph.File) (*ingest.Upload, error)
	Turn(ctx context.Context, in graph.TurnInput) (*model.TurnResult, error)
	Transcript(ctx context.Context, sessionID string) ([]model.Message, error)
	Cart(ctx context.Context, sessionID string) ([]model.CartItem, error)
}

var _ Assistant = (*graph.Orchestrator)(nil)

type ChatHandler struct {
	assistant Assistant
}

func NewChatHandler(assistant Assistant) *ChatHandler {
	return &ChatHandler{assistant: assistant}
}

type chatRequest struct {
	Message string      `json:"message"`
	Submit  *bool       `json:"submit"`
	File    *graph.File `json:"file"`
}

type uploadResponse struct {
	Accepted bool        `json:"accepted"`
	Reason   string      `json:"reason"`
	Kind     ingest.Kind `json:"kind,omitempty"`
	Rows     int         `json:"rows,omitempty"`
}

type cartLine struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description"`
	Company     string `json:"company"`
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "retailchat-ai",
	})
}

// OpenSession starts a session the way a page load does.
func (h *ChatHandler) OpenSession(c *gin.Context) {
	id, err := h.assistant.Open(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (h *ChatHandler) ResetSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.assistant.Reset(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "reset": true})
}

// UploadFile stores a file without running a turn. A rejected file is not an
// HTTP error: the UI shows the reason.
func (h *ChatHandler) UploadFile(c *gin.Context) {
	var req graph.File
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errx.Validation("request body must be JSON with filename and content", err))
		return
	}

	up, err := h.assistant.Upload(c.Request.Context(), c.Param("id"), req)
	if errors.Is(err, errx.ErrValidation) {
		c.JSON(http.StatusOK, uploadResponse{Accepted: false, Reason: errx.MessageOf(err)})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	_, reason := ingest.Validate(up.Filename)
	c.JSON(http.StatusOK, uploadResponse{Accepted: true, Reason: reason, Kind: up.Kind, Rows: up.Rows})
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errx.Validation("request body must be JSON with a message", err))
		return
	}

	res, err := h.assistant.Turn(c.Request.Context(), graph.TurnInput{
		SessionID: c.Param("id"),
		Message:   req.Message,
		Submit:    req.Submit,
		File:      req.File,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) Messages(c *gin.Context) {
	transcript, err := h.assistant.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": transcript})
}

func (h *ChatHandler) Cart(c *gin.Context) {
	items, err := h.assistant.Cart(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	lines := make([]cartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, cartLine{
			Name:        it.Name,
			Quantity:    it.Quantity,
			Description: it.Description,
			Company:     it.CompanyName,
		})
	}
	c.JSON(http.StatusOK, lines)
}

// writeError maps an AppError onto its HTTP status. Anything unclassified is
// a 500 with the generic message.
func writeError(c *gin.Context, err error) {
	status := errx.StatusOf(err)
	ev := logx.Warn()
	if status >= http.StatusInternalServerError {
		ev = logx.Error()
	}
	ev.Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", status).
		Msg("request failed")
	c.AbortWithStatusJSON(status, gin.H{"error": strings.TrimSpace(errx.MessageOf(err))})
}
