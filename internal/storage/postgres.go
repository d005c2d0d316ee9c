package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// recordRow is the straddle_records table. The ordinal column plays the role
// of the chronological index; only rows with indexed=true are ranged over.
// Series carries the key prefix so several instruments can share a table.
type recordRow struct {
	ID                  uint      `gorm:"primaryKey"`
	Series              string    `gorm:"size:64;not null;default:'';uniqueIndex:idx_straddle_records_series_date,priority:1"`
	Date                time.Time `gorm:"type:date;not null;uniqueIndex:idx_straddle_records_series_date,priority:2"`
	Ordinal             int64     `gorm:"not null;index"`
	Symbol              string    `gorm:"size:16"`
	UnderlyingPriceOpen *float64
	Strike              *float64
	UpperLegPrice       *float64
	LowerLegPrice       *float64
	Cost                *float64
	Status              string `gorm:"size:16;not null"`
	ErrorMessage        string
	ComputedAt          *time.Time
	Indexed             bool `gorm:"not null;index"`
	UpdatedAt           time.Time
}

func (recordRow) TableName() string { return "straddle_records" }

func rowFromRecord(series string, rec *models.StraddleRecord) recordRow {
	return recordRow{
		Series:              series,
		Date:                models.CivilDate(rec.Date),
		Ordinal:             models.DateOrdinal(rec.Date),
		Symbol:              rec.Symbol,
		UnderlyingPriceOpen: rec.UnderlyingPriceOpen,
		Strike:              rec.Strike,
		UpperLegPrice:       rec.UpperLegPrice,
		LowerLegPrice:       rec.LowerLegPrice,
		Cost:                rec.Cost,
		Status:              string(rec.Status),
		ErrorMessage:        rec.ErrorMessage,
		ComputedAt:          rec.ComputedAt,
		Indexed:             rec.Status == models.StatusAvailable,
	}
}

func (r recordRow) record() models.StraddleRecord {
	return models.StraddleRecord{
		Date:                models.DateFromOrdinal(r.Ordinal),
		Symbol:              r.Symbol,
		UnderlyingPriceOpen: r.UnderlyingPriceOpen,
		Strike:              r.Strike,
		UpperLegPrice:       r.UpperLegPrice,
		LowerLegPrice:       r.LowerLegPrice,
		Cost:                r.Cost,
		Status:              models.Status(r.Status),
		ErrorMessage:        r.ErrorMessage,
		ComputedAt:          r.ComputedAt,
	}
}

// legacyDateIndex is the date-only unique index of tables created before
// rows were keyed by series.
const legacyDateIndex = "idx_straddle_records_date"

// PostgresStorage stores records in PostgreSQL through GORM.
type PostgresStorage struct {
	db     *gorm.DB
	series string
}

// NewPostgresStorage connects with dsn and migrates the schema. Rows are
// scoped to series, the key prefix of the other backends.
func NewPostgresStorage(dsn, series string) (*PostgresStorage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, unavailable("connecting to postgres", err)
	}
	return NewPostgresStorageWithDB(db, series)
}

// NewPostgresStorageWithDB uses an existing connection and migrates the schema.
func NewPostgresStorageWithDB(db *gorm.DB, series string) (*PostgresStorage, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrating straddle_records: %w", err)
	}
	if m := db.Migrator(); m.HasIndex(&recordRow{}, legacyDateIndex) {
		if err := m.DropIndex(&recordRow{}, legacyDateIndex); err != nil {
			return nil, fmt.Errorf("dropping %s: %w", legacyDateIndex, err)
		}
	}
	p := newPostgresStorage(db, series)
	// rows written before the series column existed belong to this series
	if err := db.Model(&recordRow{}).Where("series = ?", "").Update("series", p.series).Error; err != nil {
		return nil, fmt.Errorf("assigning series to existing rows: %w", err)
	}
	return p, nil
}

func newPostgresStorage(db *gorm.DB, series string) *PostgresStorage {
	return &PostgresStorage{db: db, series: Keys{Prefix: series}.prefix()}
}

// scoped restricts a query to this storage's series.
func (p *PostgresStorage) scoped(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx).Where("series = ?", p.series)
}

// Put implements Interface as an upsert on (series, date).
func (p *PostgresStorage) Put(ctx context.Context, rec *models.StraddleRecord) error {
	if err := checkPut(rec); err != nil {
		return err
	}
	row := rowFromRecord(p.series, rec)
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "series"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return unavailable("writing record "+models.FormatDate(rec.Date), err)
	}
	return nil
}

// Get implements Interface.
func (p *PostgresStorage) Get(ctx context.Context, date time.Time) (*models.StraddleRecord, error) {
	var row recordRow
	err := p.scoped(ctx).Where("ordinal = ?", models.DateOrdinal(date)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("reading record "+models.FormatDate(date), err)
	}
	rec := row.record()
	return &rec, nil
}

// Range implements Interface.
func (p *PostgresStorage) Range(ctx context.Context, start, end time.Time) ([]models.StraddleRecord, error) {
	var rows []recordRow
	err := p.scoped(ctx).
		Where("indexed = ? AND ordinal BETWEEN ? AND ?", true, models.DateOrdinal(start), models.DateOrdinal(end)).
		Order("ordinal ASC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("reading range", err)
	}
	out := make([]models.StraddleRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.record()
		if rec.IsAvailable() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// PurgeOlderThan implements Interface.
func (p *PostgresStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res := p.scoped(ctx).Where("ordinal < ?", models.DateOrdinal(cutoff)).Delete(&recordRow{})
	if res.Error != nil {
		return 0, unavailable("purging records", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Ping implements Interface.
func (p *PostgresStorage) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close implements Interface.
func (p *PostgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
