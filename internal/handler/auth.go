package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/auth"
	"sisi-realtime/internal/model"
	"sisi-realtime/internal/store"
)

type AuthHandler struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
}

type registerBody struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortDetail(c, http.StatusBadRequest, "Invalid request")
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		abortDetail(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Registration failed")
		return
	}
	user, err := h.Store.CreateUser(body.Username, body.Email, body.DisplayName, hash)
	if errors.Is(err, store.ErrUserExists) {
		abortDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "Invalid request")
		return
	}
	h.issue(c, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortDetail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	user, hash, ok := h.Store.Credentials(body.Username)
	if !ok || auth.CheckPassword(hash, body.Password) != nil {
		abortDetail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	h.issue(c, user)
}

func (h *AuthHandler) issue(c *gin.Context, user model.User) {
	token, err := auth.IssueToken(user, h.TokenConfig, time.Now())
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "Token creation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}
