package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whytrade-api/internal/auth"
)

func (s *Server) handleRegister(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationResponse(c, err)
		return
	}

	user, err := s.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationResponse(c, err)
		return
	}

	resp, err := s.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.authSvc.CurrentUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
