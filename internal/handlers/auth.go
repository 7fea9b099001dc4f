package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mossy-p/airtext/internal/middleware"
	"github.com/mossy-p/airtext/internal/models"
	"go.uber.org/zap"
)

// CreateSession issues a session token. A valid bearer token is refreshed
// under the same client id; anything else gets a new id.
func (h *Handler) CreateSession(c *gin.Context) {
	clientID := ""
	if token, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		id, err := middleware.ParseToken(h.secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid token"})
			return
		}
		clientID = id
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	token, expiresAt, err := middleware.IssueToken(h.secret, clientID, h.sessionTTL, h.now())
	if err != nil {
		h.log.Error("issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.SessionResponse{
		Token:     token,
		ClientID:  clientID,
		ExpiresAt: expiresAt.UTC(),
	})
}
