package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"battle-arena/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Option locates the ledger database. URL, when set, wins over the other fields.
type Option struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type battleRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Started   bool
	StartTime *time.Time
	CreatedAt time.Time
}

func (battleRow) TableName() string { return "battles" }

type participantRow struct {
	BattleID       uint64 `gorm:"primaryKey;uniqueIndex:idx_battle_join_order,priority:1"`
	ParticipantID  string `gorm:"primaryKey;size:128"`
	JoinIndex      int    `gorm:"uniqueIndex:idx_battle_join_order,priority:2"`
	RiskLevel      int
	TradeFrequency int
	AssetFocus     string `gorm:"size:16"`
	CreatedAt      time.Time
}

func (participantRow) TableName() string { return "battle_participants" }

type outcomeRow struct {
	BattleID   uint64 `gorm:"primaryKey"`
	Winner     string `gorm:"size:128"`
	PnLBps     int64
	ReportedAt time.Time
}

func (outcomeRow) TableName() string { return "battle_outcomes" }

// Postgres persists the ledger with gorm. Writes emit the same events as Memory.
type Postgres struct {
	db     *gorm.DB
	events *EventQueue
	log    *zap.Logger
}

// OpenPostgres connects and migrates the ledger tables.
func OpenPostgres(opt Option, events *EventQueue, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgres(db, events, log)
}

// NewPostgres wraps an existing connection and migrates the ledger tables.
func NewPostgres(db *gorm.DB, events *EventQueue, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&battleRow{}, &participantRow{}, &outcomeRow{}); err != nil {
		return nil, fmt.Errorf("migrate ledger tables: %w", err)
	}
	return &Postgres{db: db, events: events, log: log.Named("ledger")}, nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) CreateBattle(ctx context.Context) (uint64, error) {
	row := battleRow{}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	p.log.Info("battle created", zap.Uint64("battle_id", row.ID))
	return row.ID, nil
}

func (p *Postgres) Join(ctx context.Context, battleID uint64, participantID string, cfg model.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := lockBattle(tx, battleID)
		if err != nil {
			return err
		}
		if b.Started {
			return fmt.Errorf("%w: %d", ErrAlreadyStarted, battleID)
		}
		var dup int64
		if err := tx.Model(&participantRow{}).
			Where("battle_id = ? AND participant_id = ?", battleID, participantID).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyJoined, participantID)
		}
		var count int64
		if err := tx.Model(&participantRow{}).Where("battle_id = ?", battleID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Create(&participantRow{
			BattleID:       battleID,
			ParticipantID:  participantID,
			JoinIndex:      int(count),
			RiskLevel:      cfg.RiskLevel,
			TradeFrequency: cfg.TradeFrequency,
			AssetFocus:     string(cfg.AssetFocus),
		}).Error
	})
	if err != nil {
		return err
	}
	p.publish(Event{Kind: EventParticipantJoined, BattleID: battleID, ParticipantID: participantID, Config: cfg})
	return nil
}

func (p *Postgres) ActiveBattleID(ctx context.Context) (uint64, error) {
	var row battleRow
	err := p.db.WithContext(ctx).Order("id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNoActiveBattle
	}
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (p *Postgres) Roster(ctx context.Context, battleID uint64) ([]string, error) {
	db := p.db.WithContext(ctx)
	if _, err := loadBattle(db, battleID); err != nil {
		return nil, err
	}
	var ids []string
	err := db.Model(&participantRow{}).
		Where("battle_id = ?", battleID).
		Order("join_index asc").
		Pluck("participant_id", &ids).Error
	return ids, err
}

func (p *Postgres) Config(ctx context.Context, battleID uint64, participantID string) (model.StrategyConfig, error) {
	var row participantRow
	err := p.db.WithContext(ctx).
		Where("battle_id = ? AND participant_id = ?", battleID, participantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StrategyConfig{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	if err != nil {
		return model.StrategyConfig{}, err
	}
	return model.StrategyConfig{
		RiskLevel:      row.RiskLevel,
		TradeFrequency: row.TradeFrequency,
		AssetFocus:     model.AssetFocus(row.AssetFocus),
	}, nil
}

func (p *Postgres) StartBattle(ctx context.Context, battleID uint64) error {
	var ev Event
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := lockBattle(tx, battleID)
		if err != nil {
			return err
		}
		if b.Started {
			return fmt.Errorf("%w: %d", ErrAlreadyStarted, battleID)
		}
		var count int64
		if err := tx.Model(&participantRow{}).Where("battle_id = ?", battleID).Count(&count).Error; err != nil {
			return err
		}
		if count < MinParticipants {
			return fmt.Errorf("%w: have %d", ErrTooFewParticipants, count)
		}
		now := time.Now().UTC()
		if err := tx.Model(&battleRow{}).Where("id = ?", battleID).
			Updates(map[string]any{"started": true, "start_time": now}).Error; err != nil {
			return err
		}
		ev = Event{Kind: EventBattleStarted, BattleID: battleID, StartTime: now, RosterSize: int(count)}
		return nil
	})
	if err != nil {
		return err
	}
	p.publish(ev)
	return nil
}

func (p *Postgres) ReportOutcome(ctx context.Context, battleID uint64, winner string, pnlBps int64) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := lockBattle(tx, battleID)
		if err != nil {
			return err
		}
		if !b.Started {
			return fmt.Errorf("%w: %d", ErrNotStarted, battleID)
		}
		var existing int64
		if err := tx.Model(&outcomeRow{}).Where("battle_id = ?", battleID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: %d", ErrAlreadyFinalized, battleID)
		}
		if err := tx.Create(&outcomeRow{
			BattleID:   battleID,
			Winner:     winner,
			PnLBps:     pnlBps,
			ReportedAt: time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		p.log.Info("outcome recorded",
			zap.Uint64("battle_id", battleID), zap.String("winner", winner), zap.Int64("pnl_bps", pnlBps))
		return nil
	})
}

func loadBattle(db *gorm.DB, id uint64) (battleRow, error) {
	var row battleRow
	err := db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, fmt.Errorf("%w: %d", ErrUnknownBattle, id)
	}
	return row, err
}

// lockBattle loads the battle row FOR UPDATE so concurrent joins and starts
// on the same battle serialize inside their transactions.
func lockBattle(tx *gorm.DB, id uint64) (battleRow, error) {
	return loadBattle(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (p *Postgres) publish(ev Event) {
	if err := p.events.TryPublish(ev); err != nil {
		p.log.Warn("event dropped", zap.String("kind", string(ev.Kind)), zap.Uint64("battle_id", ev.BattleID), zap.Error(err))
	}
}

func (opt Option) dsn() string {
	if opt.URL != "" {
		return opt.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cmp.Or(opt.Host, "localhost"), strconv.Itoa(cmp.Or(opt.Port, 5432))),
	}
	if opt.User != "" {
		u.User = url.User(opt.User)
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	u.RawQuery = url.Values{"sslmode": {cmp.Or(opt.SSLMode, "disable")}}.Encode()
	return u.String()
}
