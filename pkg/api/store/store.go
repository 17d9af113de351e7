// Package store provides persistence for the leaderboard API.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/simracing-tools/laptrack/pkg/config"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides persistence for API resources.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Leaderboards.
	GetLeaderboard(ctx context.Context, track string) (*Leaderboard, error)
	UpsertLeaderboard(ctx context.Context, lb *Leaderboard) error
	DeleteLeaderboard(ctx context.Context, track string) error
	ListLeaderboards(ctx context.Context) ([]Leaderboard, error)
	SeedLeaderboards(ctx context.Context, seeds []config.LeaderboardSeed) error

	// Lap times. SubmitLapTime reports whether the submission improved
	// the stored best.
	SubmitLapTime(ctx context.Context, lap *LapTime) (bool, error)
	TopTimes(ctx context.Context, track string, limit int) ([]LapTime, error)

	// Auth sessions.
	CreateAuthSession(ctx context.Context, session *AuthSession) error
	GetAuthSessionByToken(ctx context.Context, token string) (*AuthSession, error)
	DeleteAuthSession(ctx context.Context, token string) error

	// Blacklist.
	IsBlacklisted(ctx context.Context, driverID string) (bool, error)
	Blacklist(ctx context.Context, driverID, reason string) error
	Unblacklist(ctx context.Context, driverID string) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.APIDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Leaderboard{},
		&LapTime{},
		&AuthSession{},
		&BlacklistEntry{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Leaderboards ---

func (s *store) GetLeaderboard(
	ctx context.Context, track string,
) (*Leaderboard, error) {
	var lb Leaderboard
	if err := s.db.WithContext(ctx).
		Where("track = ?", track).
		First(&lb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}

	return &lb, nil
}

func (s *store) UpsertLeaderboard(
	ctx context.Context, lb *Leaderboard,
) error {
	var existing Leaderboard

	err := s.db.WithContext(ctx).
		Where("track = ?", lb.Track).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(lb).Error; err != nil {
			return fmt.Errorf("creating leaderboard: %w", err)
		}
	case err != nil:
		return fmt.Errorf("looking up leaderboard: %w", err)
	default:
		lb.ID = existing.ID
		lb.CreatedAt = existing.CreatedAt

		if err := s.db.WithContext(ctx).Save(lb).Error; err != nil {
			return fmt.Errorf("updating leaderboard: %w", err)
		}
	}

	s.log.WithField("track", lb.Track).Debug("Leaderboard saved")

	return nil
}

// DeleteLeaderboard removes a leaderboard and all its lap times.
func (s *store) DeleteLeaderboard(ctx context.Context, track string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track = ?", track).
			Delete(&LapTime{}).Error; err != nil {
			return fmt.Errorf("deleting lap times: %w", err)
		}

		if err := tx.Where("track = ?", track).
			Delete(&Leaderboard{}).Error; err != nil {
			return fmt.Errorf("deleting leaderboard: %w", err)
		}

		return nil
	})
}

func (s *store) ListLeaderboards(ctx context.Context) ([]Leaderboard, error) {
	var lbs []Leaderboard
	if err := s.db.WithContext(ctx).
		Order("track ASC").
		Find(&lbs).Error; err != nil {
		return nil, fmt.Errorf("listing leaderboards: %w", err)
	}

	return lbs, nil
}

// SeedLeaderboards upserts the configured leaderboards at startup.
func (s *store) SeedLeaderboards(
	ctx context.Context, seeds []config.LeaderboardSeed,
) error {
	for _, seed := range seeds {
		lb := &Leaderboard{
			Track:          seed.Track,
			DiscordChannel: seed.DiscordChannel,
			Weather: gamedata.RequiredWeather{
				Condition:   seed.Weather.Condition,
				Temperature: seed.Weather.Temperature,
				Rain:        seed.Weather.Rain,
				GripLevel:   seed.Weather.GripLevel,
			},
			Classes:       seed.Classes,
			ShowTechnical: seed.ShowTechnical,
			TimeOfDay:     seed.TimeOfDay,
			FixedSetup:    seed.FixedSetup,
		}

		if err := s.UpsertLeaderboard(ctx, lb); err != nil {
			return fmt.Errorf("seeding leaderboard %s: %w", seed.Track, err)
		}
	}

	if len(seeds) > 0 {
		s.log.WithField("count", len(seeds)).Info("Leaderboards seeded")
	}

	return nil
}

// --- Lap times ---

// SubmitLapTime applies the monotonic improvement rule: the stored lap
// time for a (track, driver) never increases. The improving update is a
// single conditional statement so concurrent submissions cannot both
// win against the same stale best.
func (s *store) SubmitLapTime(
	ctx context.Context, lap *LapTime,
) (bool, error) {
	updates := map[string]any{
		"driver_name": lap.DriverName,
		"car":         lap.Car,
		"car_class":   lap.CarClass,
		"lap_time":    lap.LapTime,
		"sector1":     lap.Sector1,
		"sector2":     lap.Sector2,
	}

	res := s.db.WithContext(ctx).Model(&LapTime{}).
		Where("track = ? AND driver_id = ? AND (lap_time IS NULL OR lap_time = 0 OR lap_time > ?)",
			lap.Track, lap.DriverID, lap.LapTime).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("updating lap time: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&LapTime{}).
		Where("track = ? AND driver_id = ?", lap.Track, lap.DriverID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting lap times: %w", err)
	}

	if count > 0 {
		// Existing best is at least as fast.
		return false, nil
	}

	if err := s.db.WithContext(ctx).Create(lap).Error; err != nil {
		// A concurrent first submission may have won the insert; fall
		// back to the conditional update once.
		retry := s.db.WithContext(ctx).Model(&LapTime{}).
			Where("track = ? AND driver_id = ? AND (lap_time IS NULL OR lap_time = 0 OR lap_time > ?)",
				lap.Track, lap.DriverID, lap.LapTime).
			Updates(updates)
		if retry.Error != nil {
			return false, fmt.Errorf("creating lap time: %w", err)
		}

		return retry.RowsAffected > 0, nil
	}

	return true, nil
}

func (s *store) TopTimes(
	ctx context.Context, track string, limit int,
) ([]LapTime, error) {
	var times []LapTime

	q := s.db.WithContext(ctx).
		Where("track = ?", track).
		Order("lap_time ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&times).Error; err != nil {
		return nil, fmt.Errorf("listing lap times: %w", err)
	}

	return times, nil
}

// --- Auth sessions ---

func (s *store) CreateAuthSession(
	ctx context.Context, session *AuthSession,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating auth session: %w", err)
	}

	return nil
}

func (s *store) GetAuthSessionByToken(
	ctx context.Context, token string,
) (*AuthSession, error) {
	var session AuthSession
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting auth session: %w", err)
	}

	return &session, nil
}

func (s *store) DeleteAuthSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&AuthSession{}).Error; err != nil {
		return fmt.Errorf("deleting auth session: %w", err)
	}

	return nil
}

// --- Blacklist ---

func (s *store) IsBlacklisted(
	ctx context.Context, driverID string,
) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&BlacklistEntry{}).
		Where("driver_id = ?", driverID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking blacklist: %w", err)
	}

	return count > 0, nil
}

func (s *store) Blacklist(
	ctx context.Context, driverID, reason string,
) error {
	entry := &BlacklistEntry{DriverID: driverID, Reason: reason}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("blacklisting driver: %w", err)
	}

	return nil
}

func (s *store) Unblacklist(ctx context.Context, driverID string) error {
	if err := s.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Delete(&BlacklistEntry{}).Error; err != nil {
		return fmt.Errorf("removing blacklist entry: %w", err)
	}

	return nil
}
