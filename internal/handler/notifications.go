package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
	"sisi-realtime/internal/wire"
)

type NotificationHandler struct {
	Store  *store.Store
	Fanout hub.Fanout
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	c.JSON(http.StatusOK, h.Store.Notifications(userID))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	if !h.Store.MarkNotificationRead(userID, c.Param("id")) {
		abortDetail(c, http.StatusNotFound, "Notification not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// Refresh pushes the current list to every connection of the caller.
func (h *NotificationHandler) Refresh(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	list := h.Store.Notifications(userID)
	push(h.Fanout, wire.NotificationsUpdate{Notifications: list}, userID)
	c.JSON(http.StatusOK, gin.H{"message": "Notifications refreshed", "count": len(list)})
}
