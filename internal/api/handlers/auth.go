package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register 注册
func (h *Handler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.auth.Register(c.Request.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		h.respondError(c, err, "Failed to register user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

// Login 登录
func (h *Handler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		h.respondError(c, err, "Failed to login")
		return
	}

	c.JSON(http.StatusOK, pair)
}
