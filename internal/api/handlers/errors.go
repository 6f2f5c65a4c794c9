package handlers

import (
	"errors"
	"net/http"

	"battle-arena/internal/api/models"
	"battle-arena/internal/battle"
	"battle-arena/internal/data"
	"battle-arena/internal/ledger"
	"battle-arena/internal/model"

	"github.com/gin-gonic/gin"
)

// errorStatus maps domain errors to an HTTP status and a stable error code.
// Sentinels are checked before LedgerError so a ledger rejection keeps its meaning.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, battle.ErrBattleNotFound), errors.Is(err, ledger.ErrUnknownBattle):
		return http.StatusNotFound, "BATTLE_NOT_FOUND"
	case errors.Is(err, ledger.ErrNoActiveBattle):
		return http.StatusNotFound, "NO_ACTIVE_BATTLE"
	case errors.Is(err, ledger.ErrUnknownParticipant):
		return http.StatusNotFound, "PARTICIPANT_NOT_FOUND"
	case errors.Is(err, battle.ErrDuplicateParticipant), errors.Is(err, ledger.ErrAlreadyJoined):
		return http.StatusConflict, "ALREADY_JOINED"
	case errors.Is(err, battle.ErrBattleExists):
		return http.StatusConflict, "BATTLE_EXISTS"
	case errors.Is(err, battle.ErrNotEnoughParticipants), errors.Is(err, ledger.ErrTooFewParticipants):
		return http.StatusConflict, "NOT_ENOUGH_PARTICIPANTS"
	case errors.Is(err, battle.ErrInvalidPhase),
		errors.Is(err, ledger.ErrAlreadyStarted),
		errors.Is(err, ledger.ErrNotStarted),
		errors.Is(err, ledger.ErrAlreadyFinalized):
		return http.StatusConflict, "INVALID_PHASE"
	case errors.Is(err, battle.ErrInvalidParticipant):
		return http.StatusBadRequest, "INVALID_PARTICIPANT"
	case errors.Is(err, model.ErrInvalidFocus):
		return http.StatusBadRequest, "INVALID_CONFIG"
	case errors.Is(err, battle.ErrInvalidDuration):
		return http.StatusBadRequest, "INVALID_DURATION"
	case errors.Is(err, data.ErrUnknownSymbol):
		return http.StatusBadRequest, "UNKNOWN_SYMBOL"
	}

	var ledgerErr *battle.LedgerError
	if errors.As(err, &ledgerErr) {
		return http.StatusBadGateway, "LEDGER_UNAVAILABLE"
	}
	var cgErr *data.CoinGeckoError
	if errors.As(err, &cgErr) {
		switch cgErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return http.StatusUnauthorized, cgErr.Code
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, cgErr.Code
		}
		return http.StatusBadGateway, cgErr.Code
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	body := models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: err.Error()},
	}
	var ledgerErr *battle.LedgerError
	if errors.As(err, &ledgerErr) {
		body.Error.Details = map[string]interface{}{
			"op":        ledgerErr.Op,
			"battle_id": ledgerErr.BattleID,
		}
	}
	var cgErr *data.CoinGeckoError
	if errors.As(err, &cgErr) {
		body.Error.Message = cgErr.Message
		body.Error.Details = map[string]interface{}{
			"status_code": cgErr.StatusCode,
			"retry_after": cgErr.RetryAfter,
		}
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: message},
	})
}
