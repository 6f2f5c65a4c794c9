package models

import "battle-arena/internal/model"

// JoinRequest is the body of POST /api/v1/battles/:id/participants
type JoinRequest struct {
	ParticipantID string               `json:"participantId" binding:"required"`
	Config        model.StrategyConfig `json:"config"`
}

// StartRequest is the optional body of POST /api/v1/battles/:id/start
type StartRequest struct {
	// Duration is a Go duration string ("30m"); empty uses the server default.
	Duration string `json:"duration,omitempty"`
}

// HistoryRequest binds GET /api/v1/prices/history
type HistoryRequest struct {
	Symbol string `form:"symbol" binding:"required"`
	Days   int    `form:"days,omitempty"` // default: 1
}
