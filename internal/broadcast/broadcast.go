// Package broadcast fans battle updates out to observers.
package broadcast

import (
	"time"

	"battle-arena/internal/model"
)

const (
	TypeLeaderboardUpdate = "LEADERBOARD_UPDATE"
	TypePlayerJoined      = "PLAYER_JOINED"
)

// Broadcaster receives battle updates. Implementations must not block the caller.
type Broadcaster interface {
	PublishRanking(snap model.RankingSnapshot)
	PublishJoin(notice model.JoinNotice)
}

// Message is the wire envelope shared by every transport.
type Message struct {
	Type          string                `json:"type"`
	BattleID      uint64                `json:"battleId"`
	Tick          int                   `json:"tick,omitempty"`
	Final         bool                  `json:"final,omitempty"`
	Ranking       []model.RankEntry     `json:"ranking,omitempty"`
	ParticipantID string                `json:"participantId,omitempty"`
	Config        *model.StrategyConfig `json:"config,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
}

func RankingMessage(snap model.RankingSnapshot) Message {
	ranking := snap.Ranking
	if ranking == nil {
		ranking = []model.RankEntry{}
	}
	return Message{
		Type:      TypeLeaderboardUpdate,
		BattleID:  snap.BattleID,
		Tick:      snap.Tick,
		Final:     snap.Final,
		Ranking:   ranking,
		Timestamp: snap.Timestamp,
	}
}

func JoinMessage(n model.JoinNotice, now time.Time) Message {
	cfg := n.Config
	return Message{
		Type:          TypePlayerJoined,
		BattleID:      n.BattleID,
		ParticipantID: n.ParticipantID,
		Config:        &cfg,
		Timestamp:     now,
	}
}

// Multi forwards to every broadcaster in order.
type Multi []Broadcaster

func (m Multi) PublishRanking(snap model.RankingSnapshot) {
	for _, b := range m {
		b.PublishRanking(snap)
	}
}

func (m Multi) PublishJoin(n model.JoinNotice) {
	for _, b := range m {
		b.PublishJoin(n)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) PublishRanking(model.RankingSnapshot) {}
func (Discard) PublishJoin(model.JoinNotice)         {}
