package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"whytrade-api/internal/auth"
	"whytrade-api/internal/position"
)

func (s *Server) handleCreateTrade(c *gin.Context) {
	var in position.CreateTradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		validationResponse(c, err)
		return
	}

	trade, err := s.positions.CreateTrade(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

func (s *Server) handleListTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	trades, err := s.positions.ListTrades(c.Request.Context(), auth.UserID(c), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
		"offset": offset,
	})
}

func (s *Server) handleGetTrade(c *gin.Context) {
	trade, err := s.positions.GetTrade(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleUpdateTrade(c *gin.Context) {
	var in position.UpdateTradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		validationResponse(c, err)
		return
	}

	trade, err := s.positions.UpdateTrade(c.Request.Context(), c.Param("id"), auth.UserID(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleDeleteTrade(c *gin.Context) {
	if err := s.positions.DeleteTrade(c.Request.Context(), c.Param("id"), auth.UserID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	var in position.SettleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		validationResponse(c, err)
		return
	}

	exit, err := s.positions.Settle(c.Request.Context(), c.Param("id"), auth.UserID(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exit)
}

func (s *Server) handleGetPositions(c *gin.Context) {
	includeClosed := c.Query("include_closed") == "true"

	positions, err := s.positions.Positions(c.Request.Context(), auth.UserID(c), includeClosed)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleCreateReflection(c *gin.Context) {
	var in position.ReflectionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		validationResponse(c, err)
		return
	}

	ref, err := s.positions.CreateReflection(c.Request.Context(), c.Param("id"), auth.UserID(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (s *Server) handleGetReflection(c *gin.Context) {
	ref, err := s.positions.GetReflection(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (s *Server) handleUpdateReflection(c *gin.Context) {
	var in position.ReflectionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		validationResponse(c, err)
		return
	}

	ref, err := s.positions.UpdateReflection(c.Request.Context(), c.Param("id"), auth.UserID(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}
