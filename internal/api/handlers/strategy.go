package handlers

import (
	"net/http"

	"battle-arena/internal/api/models"
	"battle-arena/internal/model"

	"github.com/gin-gonic/gin"
)

// StrategyHandler describes the configuration participants register with
type StrategyHandler struct{}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler() *StrategyHandler {
	return &StrategyHandler{}
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	focus := []models.FocusInfo{}
	for _, f := range []model.AssetFocus{model.FocusLowVol, model.FocusMidVol, model.FocusHighVol} {
		focus = append(focus, models.FocusInfo{Name: string(f), Assets: f.Candidates()})
	}

	strategies := []models.StrategyInfo{
		{
			Name:        "momentum",
			Description: "Holds at most one position. A frequency gate decides whether a round is considered; an open position closes at +5% take-profit or -3% stop-loss.",
			Parameters: []models.ParameterInfo{
				{
					Name:        "riskLevel",
					Type:        "int",
					Description: "Position size as a share of the 50% exposure cap (clamped to 1..100)",
					Default:     50,
				},
				{
					Name:        "tradeFrequency",
					Type:        "int",
					Description: "Chance in percent that a round is considered at all (clamped to 1..100)",
					Default:     50,
				},
				{
					Name:        "assetFocus",
					Type:        "string",
					Description: "Which assets a BUY may pick from",
					Default:     string(model.FocusLowVol),
					Options:     []string{string(model.FocusLowVol), string(model.FocusMidVol), string(model.FocusHighVol)},
				},
			},
		},
	}

	c.JSON(http.StatusOK, gin.H{"strategies": strategies, "asset_focus": focus})
}
