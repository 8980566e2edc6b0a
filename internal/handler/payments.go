package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
	"sisi-realtime/internal/wire"
)

type PaymentHandler struct {
	Store  *store.Store
	Fanout hub.Fanout
}

type paymentBody struct {
	ToUser      string  `json:"to_user"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

func (h *PaymentHandler) Request(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)

	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ToUser == "" {
		abortDetail(c, http.StatusBadRequest, "Invalid request")
		return
	}
	if body.Amount <= 0 {
		abortDetail(c, http.StatusBadRequest, "Amount must be positive")
		return
	}

	payment, err := h.Store.CreatePayment(userID, body.ToUser, body.Amount, body.Description)
	if errors.Is(err, store.ErrUserNotFound) {
		abortDetail(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Failed to create payment")
		return
	}

	push(h.Fanout, wire.PaymentRequest{Payment: payment}, payment.ToUser)
	c.JSON(http.StatusOK, gin.H{"message": "Payment request sent", "payment": payment})
}

func (h *PaymentHandler) List(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c)
	c.JSON(http.StatusOK, h.Store.Payments(userID))
}
