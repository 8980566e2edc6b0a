package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
)

const messagePageSize = 100

type ChatHandler struct {
	Store *store.Store
}

type createChatBody struct {
	Name         string   `json:"name"`
	ChatType     string   `json:"chat_type"`
	Participants []string `json:"participants"`
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	c.JSON(http.StatusOK, h.Store.Chats(userID))
}

func (h *ChatHandler) Create(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)

	var body createChatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortDetail(c, http.StatusBadRequest, "Invalid request")
		return
	}
	for _, p := range body.Participants {
		if _, ok := h.Store.User(p); !ok {
			abortDetail(c, http.StatusNotFound, store.ErrUserNotFound.Error())
			return
		}
	}

	chat := h.Store.CreateChat(userID, body.Name, body.Participants, time.Now())
	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) Messages(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)

	messages, err := h.Store.Messages(userID, c.Param("id"), messagePageSize)
	if errors.Is(err, store.ErrNotParticipant) {
		abortDetail(c, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, messages)
}
