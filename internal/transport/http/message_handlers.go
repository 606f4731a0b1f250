package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/store"
)

// MessageHandlers serves history, unread counts and file downloads.
type MessageHandlers struct {
	router *core.Router
	unread *core.UnreadAggregator
	log    *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(router *core.Router, unread *core.UnreadAggregator, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{router: router, unread: unread, log: logger}
}

// MessageResponse is one history entry. File entries never carry bytes.
type MessageResponse struct {
	ID          int64  `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	IsBroadcast bool   `json:"isBroadcast"`
	Timestamp   string `json:"timestamp"`
	IsRead      bool   `json:"isRead"`
	CreatedAt   string `json:"createdAt"`
	HasFile     bool   `json:"hasFile"`
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
}

// HistoryResponse wraps a conversation.
type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// SenderCountResponse is the unread count for one sender.
type SenderCountResponse struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// UnreadResponse is the unread counts of one user.
type UnreadResponse struct {
	Broadcast int                   `json:"broadcast"`
	Private   []SenderCountResponse `json:"private"`
}

// FileResponse carries the bytes of an attachment.
type FileResponse struct {
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// History returns a conversation and marks the viewer's unread messages read.
// GET /api/messages/:chatId?username=
func (h *MessageHandlers) History(c *gin.Context) {
	chatID := c.Param("chatId")
	username := identity(c, c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username is required"})
		return
	}

	msgs, err := h.router.History(c.Request.Context(), username, chatID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := HistoryResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

// UnreadCounts returns broadcast and per-sender unread counts.
// GET /api/unread-counts/:username
func (h *MessageHandlers) UnreadCounts(c *gin.Context) {
	username := identity(c, c.Param("username"))

	counts, err := h.unread.Counts(c.Request.Context(), username)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := UnreadResponse{
		Broadcast: counts.Broadcast,
		Private:   make([]SenderCountResponse, 0, len(counts.Private)),
	}
	for _, sc := range counts.Private {
		resp.Private = append(resp.Private, SenderCountResponse{Sender: sc.Sender, Count: sc.Count})
	}
	c.JSON(http.StatusOK, resp)
}

// File returns the attachment of a message.
// GET /api/file/:messageId
func (h *MessageHandlers) File(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	ref, data, err := h.router.FetchFile(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, FileResponse{
		FileData: base64.StdEncoding.EncodeToString(data),
		FileName: ref.Name,
		FileType: ref.MimeType,
	})
}

func (h *MessageHandlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrBadRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "file not found"})
	default:
		// Already logged by the router.
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func toMessageResponse(m *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:          m.ID,
		Sender:      m.Sender,
		Recipient:   m.Recipient,
		Message:     m.Body,
		IsBroadcast: m.IsBroadcast,
		Timestamp:   m.ClientTimestamp,
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.HasFile() {
		resp.HasFile = true
		resp.FileName = m.File.Name
		resp.FileType = m.File.MimeType
	}
	return resp
}
