package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
	"sisi-realtime/internal/wire"
)

type FriendsHandler struct {
	Store  *store.Store
	Fanout hub.Fanout
}

func (h *FriendsHandler) List(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	c.JSON(http.StatusOK, h.Store.Friends(userID))
}

// Add sends a friend request and pushes the notification to the target.
func (h *FriendsHandler) Add(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)

	body := bodyMap(c)
	username := stringField(body, "username")
	if username == "" {
		abortDetail(c, http.StatusNotFound, store.ErrUserNotFound.Error())
		return
	}

	target, note, err := h.Store.AddFriendRequest(userID, username, time.Now())
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		abortDetail(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, store.ErrSelfFriend), errors.Is(err, store.ErrFriendRequestExists):
		abortDetail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		abortDetail(c, http.StatusInternalServerError, "Failed to send friend request")
		return
	}

	push(h.Fanout, wire.NotificationPush{Notification: note}, target.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Friend request sent successfully"})
}

func (h *FriendsHandler) Accept(c *gin.Context) {
	h.resolve(c, true)
}

func (h *FriendsHandler) Decline(c *gin.Context) {
	h.resolve(c, false)
}

// resolve reads the sender id from userId or from_user_id.
func (h *FriendsHandler) resolve(c *gin.Context, accept bool) {
	userID, _ := middleware.UserIDFromContext(c)

	fromID := stringField(bodyMap(c), "userId", "from_user_id")
	if fromID == "" {
		abortDetail(c, http.StatusBadRequest, "Missing user ID")
		return
	}

	var err error
	if accept {
		err = h.Store.AcceptFriendRequest(userID, fromID, time.Now())
	} else {
		err = h.Store.DeclineFriendRequest(userID, fromID)
	}
	if errors.Is(err, store.ErrFriendRequestNotFound) {
		abortDetail(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Failed to update friend request")
		return
	}

	if accept {
		c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted successfully"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend request declined successfully"})
}
