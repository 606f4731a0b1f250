package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store    store.UserStore
	presence *core.Presence
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, presence *core.Presence, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    st,
		presence: presence,
		log:      logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	Username string  `json:"username"`
	LastSeen *string `json:"lastSeen"`
	Online   bool    `json:"online"`
}

// UsersResponse lists every provisioned user.
type UsersResponse struct {
	Users []UserResponse `json:"users"`
}

// ListUsers returns all users with their live status.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := UsersResponse{Users: make([]UserResponse, 0, len(users))}
	for _, u := range users {
		item := UserResponse{
			Username: u.Username,
			Online:   h.presence.IsOnline(u.Username),
		}
		if u.LastSeen != nil {
			ts := u.LastSeen.UTC().Format(time.RFC3339)
			item.LastSeen = &ts
		}
		resp.Users = append(resp.Users, item)
	}

	c.JSON(http.StatusOK, resp)
}
