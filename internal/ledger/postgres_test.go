package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	lockBattleSQL   = `SELECT \* FROM "battles" WHERE id = \$1 .*FOR UPDATE`
	dupJoinSQL      = `SELECT count\(\*\) FROM "battle_participants" WHERE battle_id = \$1 AND participant_id = \$2`
	rosterCountSQL  = `SELECT count\(\*\) FROM "battle_participants" WHERE battle_id = \$1$`
	outcomeCountSQL = `SELECT count\(\*\) FROM "battle_outcomes" WHERE battle_id = \$1`
)

// newMockPostgres skips migration; every test scripts its own statements.
func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock, *EventQueue) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Discard,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	q := NewEventQueue(8)
	return &Postgres{db: db, events: q, log: zap.NewNop()}, mock, q
}

func battleRows(id uint64, started bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "started", "start_time", "created_at"}).
		AddRow(id, started, nil, time.Now())
}

func countRows(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func drain(q *EventQueue) []Event {
	q.Close()
	var got []Event
	q.Run(context.Background(), func(e Event) { got = append(got, e) })
	return got
}

func TestPostgresJoinRejectsDuplicate(t *testing.T) {
	p, mock, q := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, false))
	mock.ExpectQuery(dupJoinSQL).WithArgs(7, "alice").WillReturnRows(countRows(1))
	mock.ExpectRollback()

	err := p.Join(context.Background(), 7, "alice", cfg)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, drain(q))
}

func TestPostgresJoinAfterStart(t *testing.T) {
	p, mock, q := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, true))
	mock.ExpectRollback()

	err := p.Join(context.Background(), 7, "carol", cfg)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, drain(q))
}

func TestPostgresJoinUnknownBattle(t *testing.T) {
	p, mock, _ := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(sqlmock.NewRows([]string{"id", "started", "start_time", "created_at"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, p.Join(context.Background(), 404, "alice", cfg), ErrUnknownBattle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStartNeedsTwoParticipants(t *testing.T) {
	p, mock, q := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, false))
	mock.ExpectQuery(rosterCountSQL).WillReturnRows(countRows(1))
	mock.ExpectRollback()

	assert.ErrorIs(t, p.StartBattle(context.Background(), 7), ErrTooFewParticipants)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, drain(q))
}

func TestPostgresStartLocksAndPublishes(t *testing.T) {
	p, mock, q := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, false))
	mock.ExpectQuery(rosterCountSQL).WillReturnRows(countRows(2))
	mock.ExpectExec(`UPDATE "battles" SET .* WHERE id = `).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.StartBattle(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())

	events := drain(q)
	require.Len(t, events, 1)
	assert.Equal(t, EventBattleStarted, events[0].Kind)
	assert.EqualValues(t, 7, events[0].BattleID)
	assert.Equal(t, 2, events[0].RosterSize)
	assert.False(t, events[0].StartTime.IsZero())
}

func TestPostgresStartTwice(t *testing.T) {
	p, mock, _ := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, true))
	mock.ExpectRollback()

	assert.ErrorIs(t, p.StartBattle(context.Background(), 7), ErrAlreadyStarted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReportOutcomeOnce(t *testing.T) {
	p, mock, _ := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, true))
	mock.ExpectQuery(outcomeCountSQL).WillReturnRows(countRows(1))
	mock.ExpectRollback()

	err := p.ReportOutcome(context.Background(), 7, "alice", 120)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.True(t, Permanent(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReportOutcomeBeforeStart(t *testing.T) {
	p, mock, _ := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBattleSQL).WillReturnRows(battleRows(7, false))
	mock.ExpectRollback()

	assert.ErrorIs(t, p.ReportOutcome(context.Background(), 7, "alice", 120), ErrNotStarted)
	require.NoError(t, mock.ExpectationsWereMet())
}
