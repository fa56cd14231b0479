package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/lab-whiteboard/pkg/types"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

// roomRecord is the rooms table row. The scene is kept as one jsonb blob;
// it is only ever read and written whole.
type roomRecord struct {
	ID        string    `gorm:"primaryKey;size:32"`
	Name      string    `gorm:"not null;default:''"`
	State     []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (roomRecord) TableName() string { return "rooms" }

type Gorm struct {
	db *gorm.DB
}

// OpenPostgres connects with the given DSN and migrates the rooms table.
func OpenPostgres(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGorm(db)
}

func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&roomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) CreateRoom(ctx context.Context, id, name string) error {
	blob, err := json.Marshal(types.EmptyState())
	if err != nil {
		return err
	}
	err = g.db.WithContext(ctx).Create(&roomRecord{ID: id, Name: name, State: blob}).Error
	if isUniqueViolation(err) {
		return ErrRoomExists
	}
	return err
}

func (g *Gorm) GetRoom(ctx context.Context, id string) (Room, error) {
	var rec roomRecord
	err := g.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, err
	}
	st, err := decodeState(rec.State)
	if err != nil {
		return Room{}, fmt.Errorf("room %s: %w", id, err)
	}
	return Room{ID: rec.ID, Name: rec.Name, State: st, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}, nil
}

func (g *Gorm) SaveState(ctx context.Context, id string, st types.State) error {
	blob, err := encodeState(st)
	if err != nil {
		return err
	}
	rec := roomRecord{ID: id, State: blob}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&rec).Error
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encodeState(st types.State) ([]byte, error) {
	if st.Items == nil {
		st.Items = []types.Item{}
	}
	if st.Connections == nil {
		st.Connections = []types.Connection{}
	}
	return json.Marshal(st)
}

func decodeState(blob []byte) (types.State, error) {
	st := types.EmptyState()
	if len(blob) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(blob, &st); err != nil {
		return types.State{}, err
	}
	if st.Items == nil {
		st.Items = []types.Item{}
	}
	if st.Connections == nil {
		st.Connections = []types.Connection{}
	}
	return st, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
