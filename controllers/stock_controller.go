package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stock_alert_backend/services"
)

// StockController serves on-demand quote lookups through the shared cache
type StockController struct {
	quotes *services.QuoteCache
}

// NewStockController creates a new stock controller
func NewStockController(quotes *services.QuoteCache) *StockController {
	return &StockController{quotes: quotes}
}

// GetQuote returns the latest quote for a symbol
// GET /api/v1/stocks/:symbol/quote
func (sc *StockController) GetQuote(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if !symbolPattern.MatchString(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol must be 1-5 uppercase letters or digits"})
		return
	}

	quote, err := sc.quotes.GetQuote(c.Request.Context(), symbol)
	switch {
	case errors.Is(err, services.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown symbol"})
		return
	case errors.Is(err, services.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Quote provider rate limit reached, try again shortly"})
		return
	case errors.Is(err, services.ErrProviderTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Quote provider timed out"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch quote"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}
