package handlers

import (
	"context"
	"net/http"
	"strings"

	"battle-arena/internal/api/models"
	"battle-arena/internal/model"

	"github.com/gin-gonic/gin"
)

const maxHistoryDays = 365

// PriceReader is the slice of the price source the API needs.
type PriceReader interface {
	Fetch(ctx context.Context) model.MarketSnapshot
	History(ctx context.Context, symbol string, days int) ([]model.PricePoint, error)
}

// PriceHandler serves market data
type PriceHandler struct {
	prices PriceReader
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(prices PriceReader) *PriceHandler {
	return &PriceHandler{prices: prices}
}

// GetPrices handles GET /api/v1/prices
func (h *PriceHandler) GetPrices(c *gin.Context) {
	snap := h.prices.Fetch(c.Request.Context())
	c.JSON(http.StatusOK, models.PricesResponse{
		Timestamp:      snap.Timestamp,
		Prices:         snap.Prices,
		VolatilityHint: snap.VolatilityHint,
	})
}

// GetHistory handles GET /api/v1/prices/history
func (h *PriceHandler) GetHistory(c *gin.Context) {
	var req models.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Days == 0 {
		req.Days = 1
	}
	if req.Days < 0 || req.Days > maxHistoryDays {
		badRequest(c, "INVALID_DAYS", "days must be between 1 and 365")
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	points, err := h.prices.History(c.Request.Context(), symbol, req.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.HistoryResponse{Symbol: symbol, Days: req.Days, Points: points})
}
