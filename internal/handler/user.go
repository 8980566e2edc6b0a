package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
)

type UserHandler struct {
	Store *store.Store
}

func (h *UserHandler) Me(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	user, ok := h.Store.User(userID)
	if !ok {
		abortDetail(c, http.StatusNotFound, store.ErrUserNotFound.Error())
		return
	}
	c.JSON(http.StatusOK, user)
}

// Search returns at most ten matches; queries shorter than two characters
// match nothing.
func (h *UserHandler) Search(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	c.JSON(http.StatusOK, h.Store.SearchUsers(userID, c.Query("q")))
}
