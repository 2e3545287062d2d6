package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parleychat/parley-server/internal/core"
	"github.com/parleychat/parley-server/internal/store"
)

// RoomHandlers provides HTTP handlers for the room directory.
type RoomHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=50"`
}

// AllowUserRequest represents the allow-user request body.
type AllowUserRequest struct {
	Username string `json:"username" binding:"required"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	OwnerID      int64    `json:"owner_id"`
	AllowedUsers []string `json:"allowed_users"`
	CreatedAt    string   `json:"created_at"`
}

// RoomListResponse lists room names for clients picking a room to join.
type RoomListResponse struct {
	Rooms []string `json:"rooms"`
}

func currentUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	uid, ok := userID.(int64)
	return uid, ok
}

// ListRooms returns every room name.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	names, err := h.store.ListRoomNames(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RoomListResponse{Rooms: names})
}

// CreateRoom creates a room owned by the caller, who is automatically
// put on its allow-list.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if !core.ValidRoomName(req.Name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name format"})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.Name, uid)
	if err != nil {
		// SQLite reports duplicates via the UNIQUE constraint.
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_name", room.Name).Int64("owner_id", uid).Msg("room created successfully")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// AllowUser adds a user to a room's allow-list.
// POST /api/rooms/:name/allow
func (h *RoomHandlers) AllowUser(c *gin.Context) {
	roomName := c.Param("name")

	var req AllowUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if !core.ValidUsername(req.Username) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid username format"})
		return
	}

	exists, err := h.store.FindUser(c.Request.Context(), req.Username)
	if err != nil {
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to check user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}

	if err := h.store.AllowUser(c.Request.Context(), roomName, req.Username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", roomName).Str("username", req.Username).Msg("failed to allow user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DisallowUser removes a user from a room's allow-list.
// DELETE /api/rooms/:name/allow/:username
func (h *RoomHandlers) DisallowUser(c *gin.Context) {
	roomName := c.Param("name")
	username := c.Param("username")

	if err := h.store.DisallowUser(c.Request.Context(), roomName, username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", roomName).Str("username", username).Msg("failed to disallow user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:           room.ID,
		Name:         room.Name,
		OwnerID:      room.OwnerID,
		AllowedUsers: room.AllowedUsers,
		CreatedAt:    room.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
