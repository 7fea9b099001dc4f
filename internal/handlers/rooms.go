package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/airtext/internal/middleware"
	"github.com/mossy-p/airtext/internal/models"
	"github.com/mossy-p/airtext/internal/signaling"
)

// GetRoom reports a room's negotiation state. Malformed and unknown codes
// are indistinguishable.
func (h *Handler) GetRoom(c *gin.Context) {
	room, state, ok := h.coord.Status(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Room not found"})
		return
	}

	c.JSON(http.StatusOK, models.RoomStatus{
		Code:           room.Code,
		State:          string(state),
		CreatedAt:      room.CreatedAt,
		LastActivityAt: room.LastActivityAt,
	})
}

// DeleteRoom closes a room on behalf of its creator.
func (h *Handler) DeleteRoom(c *gin.Context) {
	clientID, ok := middleware.ClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Client not authenticated"})
		return
	}

	err := h.coord.CloseRoom(clientID, c.Param("code"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Room closed"})
	case errors.Is(err, signaling.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Room not found"})
	case errors.Is(err, signaling.ErrUnauthorized):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Only the room creator can close the room"})
	case errors.Is(err, signaling.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, models.ErrorResponse{Error: "rate_limit_exceeded"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to close room"})
	}
}
