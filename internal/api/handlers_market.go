package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) symbolParam(c *gin.Context) (string, bool) {
	symbol := c.Param("symbol")
	if len(symbol) < 1 || len(symbol) > 10 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": "symbol must be 1-10 characters",
		})
		return "", false
	}
	return symbol, true
}

func (s *Server) handleStockPrice(c *gin.Context) {
	if s.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "UPSTREAM_FAILURE",
			"message": "market data feed is disabled",
		})
		return
	}
	symbol, ok := s.symbolParam(c)
	if !ok {
		return
	}

	quote, err := s.market.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) handleStockAnalysis(c *gin.Context) {
	if s.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "UPSTREAM_FAILURE",
			"message": "market data feed is disabled",
		})
		return
	}
	symbol, ok := s.symbolParam(c)
	if !ok {
		return
	}

	analysis, err := s.market.GetAnalysis(c.Request.Context(), symbol)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}
