package broadcast

import (
	"fmt"
	"time"

	"battle-arena/internal/model"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubjectPrefix = "arena.battle"

// NATS publishes updates to <prefix>.<battleId>.ranking and <prefix>.<battleId>.joined.
type NATS struct {
	conn   *nats.Conn
	prefix string
	now    func() time.Time
	log    *zap.Logger
}

func DialNATS(url, prefix string, logger *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("battle-arena"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATS(conn, prefix, logger), nil
}

func NewNATS(conn *nats.Conn, prefix string, logger *zap.Logger) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{conn: conn, prefix: prefix, now: time.Now, log: logger.Named("nats")}
}

func (n *NATS) PublishRanking(snap model.RankingSnapshot) {
	n.publish(Subject(n.prefix, snap.BattleID, "ranking"), RankingMessage(snap))
}

func (n *NATS) PublishJoin(notice model.JoinNotice) {
	n.publish(Subject(n.prefix, notice.BattleID, "joined"), JoinMessage(notice, n.now()))
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *NATS) publish(subject string, msg Message) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		n.log.Error("encode message", zap.String("subject", subject), zap.Error(err))
		return
	}
	// Publish only buffers; the client flushes in the background.
	if err := n.conn.Publish(subject, payload); err != nil {
		n.log.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func Subject(prefix string, battleID uint64, kind string) string {
	return fmt.Sprintf("%s.%d.%s", prefix, battleID, kind)
}
