package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"battle-arena/internal/api/models"
	"battle-arena/internal/backtest"
	"battle-arena/internal/battle"
	"battle-arena/internal/ledger"
	"battle-arena/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BattleHandler serves battle queries and administrative commands
type BattleHandler struct {
	registry *battle.Registry
	// registrar is the ledger write path; nil means participants join the local battle directly.
	registrar ledger.Registrar
	log       *zap.Logger
}

// NewBattleHandler creates a new battle handler
func NewBattleHandler(registry *battle.Registry, registrar ledger.Registrar, logger *zap.Logger) *BattleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleHandler{registry: registry, registrar: registrar, log: logger.Named("api.battles")}
}

// ListBattles handles GET /api/v1/battles
func (h *BattleHandler) ListBattles(c *gin.Context) {
	battles := h.registry.List()
	c.JSON(http.StatusOK, models.BattleListResponse{Battles: battles, Count: len(battles)})
}

// CreateBattle handles POST /api/v1/battles
func (h *BattleHandler) CreateBattle(c *gin.Context) {
	if h.registrar == nil {
		c.JSON(http.StatusNotImplemented, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_SUPPORTED", Message: "no ledger registrar configured"},
		})
		return
	}
	id, err := h.registrar.CreateBattle(c.Request.Context())
	if err != nil {
		respondError(c, &battle.LedgerError{Op: "create_battle", Err: err})
		return
	}
	o, err := h.registry.Sync(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.log.Info("battle created", zap.Uint64("battle_id", id))
	c.JSON(http.StatusCreated, models.CreateBattleResponse{Battle: o.Info()})
}

// CurrentBattle handles GET /api/v1/battles/current
func (h *BattleHandler) CurrentBattle(c *gin.Context) {
	o, err := h.registry.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o.Info())
}

// GetBattle handles GET /api/v1/battles/:id
func (h *BattleHandler) GetBattle(c *gin.Context) {
	o, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, o.Info())
}

// GetLeaderboard handles GET /api/v1/battles/:id/leaderboard
func (h *BattleHandler) GetLeaderboard(c *gin.Context) {
	o, ok := h.lookup(c)
	if !ok {
		return
	}
	info := o.Info()
	c.JSON(http.StatusOK, models.LeaderboardResponse{
		BattleID:    info.ID,
		Phase:       info.Phase,
		TickCount:   info.TickCount,
		Leaderboard: o.Leaderboard(),
		Stats:       backtest.StatsByParticipant(o.Trades()),
	})
}

// GetTradesCSV handles GET /api/v1/battles/:id/trades.csv
func (h *BattleHandler) GetTradesCSV(c *gin.Context) {
	o, ok := h.lookup(c)
	if !ok {
		return
	}
	rows := backtest.BuildRows(o.ID(), o.Trades())
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=battle-%d-trades.csv", o.ID()))
	c.Status(http.StatusOK)
	if err := backtest.WriteTradesCSV(c.Writer, rows); err != nil {
		h.log.Error("write trades csv", zap.Uint64("battle_id", o.ID()), zap.Error(err))
		_ = c.Error(err)
	}
}

// Join handles POST /api/v1/battles/:id/participants
func (h *BattleHandler) Join(c *gin.Context) {
	id, ok := battleID(c)
	if !ok {
		return
	}
	var req models.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := req.Config.Validate(); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	var o *battle.Orchestrator
	if h.registrar != nil {
		if err := h.registrar.Join(ctx, id, req.ParticipantID, req.Config); err != nil {
			respondError(c, &battle.LedgerError{Op: "join", BattleID: id, Err: err})
			return
		}
		var err error
		if o, err = h.registry.Sync(ctx, id); err != nil {
			respondError(c, err)
			return
		}
	} else {
		var err error
		if o, err = h.registry.Get(id); err != nil {
			respondError(c, err)
			return
		}
		if err := o.Join(req.ParticipantID, req.Config); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, o.Info())
}

// Start handles POST /api/v1/battles/:id/start
func (h *BattleHandler) Start(c *gin.Context) {
	id, ok := battleID(c)
	if !ok {
		return
	}
	var req models.StartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			badRequest(c, "INVALID_DURATION", "duration must be a positive Go duration such as 30m")
			return
		}
		duration = d
	}

	o, err := h.registry.StartFromLedger(c.Request.Context(), id, duration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o.Info())
}

// Abort handles POST /api/v1/battles/:id/abort
func (h *BattleHandler) Abort(c *gin.Context) {
	o, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := o.Abort(c.Request.Context()); err != nil {
		// The battle is finalized even when the ledger refused the report.
		if info := o.Info(); info.Phase == model.PhaseFinalized {
			h.log.Warn("abort finalized without report", zap.Uint64("battle_id", info.ID), zap.Error(err))
			c.JSON(http.StatusAccepted, info)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o.Info())
}

// Report handles POST /api/v1/battles/:id/report
func (h *BattleHandler) Report(c *gin.Context) {
	o, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := o.RetryReport(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o.Info())
}

// lookup resolves :id locally and, failing that, from the ledger.
func (h *BattleHandler) lookup(c *gin.Context) (*battle.Orchestrator, bool) {
	id, ok := battleID(c)
	if !ok {
		return nil, false
	}
	o, err := h.registry.Get(id)
	if err != nil {
		o, err = h.registry.Sync(c.Request.Context(), id)
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return o, true
}

func battleID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "INVALID_BATTLE_ID", "battle id must be a positive integer")
		return 0, false
	}
	return id, true
}

func respondBindError(c *gin.Context, err error) {
	if status, code := errorStatus(err); status != http.StatusInternalServerError {
		c.JSON(status, models.ErrorResponse{Error: models.ErrorDetail{Code: code, Message: err.Error()}})
		return
	}
	badRequest(c, "INVALID_REQUEST", err.Error())
}
