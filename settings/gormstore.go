package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warden-social/warden/bus"
)

// GormStore persists settings in sqlite or postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&FloodPolicy{},
		&BlacklistEntry{},
		&Trigger{},
		&CaptchaPolicy{},
		&Greeting{},
		&ChatFlags{},
		&Permission{},
	); err != nil {
		return nil, fmt.Errorf("migrating settings schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// OpenDatabase connects to the database indicated by a URL, either
// "sqlite://<path>" or "postgres://...".
func OpenDatabase(dburl string, maxConns int) (*gorm.DB, error) {
	var dial gorm.Dialector
	openConns := maxConns
	isSqlite := false
	switch {
	case strings.HasPrefix(dburl, "sqlite://"):
		sqliteSuffix := dburl[len("sqlite://"):]
		// if this isn't ":memory:", ensure the parent directory exists
		if !strings.Contains(sqliteSuffix, ":?") {
			_ = os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm)
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgresql://"), strings.HasPrefix(dburl, "postgres://"):
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	default:
		return nil, fmt.Errorf("unsupported or unrecognized database URL scheme")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxIdleConns(80)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}

func (s *GormStore) GetFloodPolicy(ctx context.Context, chatID string) (*FloodPolicy, error) {
	var pol FloodPolicy
	err := s.db.WithContext(ctx).First(&pol, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading flood policy: %w", err)
	}
	return &pol, nil
}

func (s *GormStore) PutFloodPolicy(ctx context.Context, pol *FloodPolicy) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(pol).Error; err != nil {
		return fmt.Errorf("writing flood policy: %w", err)
	}
	return nil
}

func (s *GormStore) ListBlacklist(ctx context.Context, chatID string) ([]BlacklistEntry, error) {
	var out []BlacklistEntry
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing blacklist: %w", err)
	}
	return out, nil
}

func (s *GormStore) AddBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("adding blacklist entry: %w", err)
	}
	return nil
}

func (s *GormStore) RemoveBlacklistEntry(ctx context.Context, chatID, pattern string) (bool, error) {
	res := s.db.WithContext(ctx).Where("chat_id = ? AND pattern = ?", chatID, pattern).Delete(&BlacklistEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("removing blacklist entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ListTriggers(ctx context.Context, chatID string) ([]Trigger, error) {
	var out []Trigger
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing triggers: %w", err)
	}
	return out, nil
}

func (s *GormStore) AddTrigger(ctx context.Context, trig *Trigger) error {
	if err := s.db.WithContext(ctx).Create(trig).Error; err != nil {
		return fmt.Errorf("adding trigger: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateTriggerResponse(ctx context.Context, chatID, keyword, response string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Trigger{}).
		Where("chat_id = ? AND keyword = ?", chatID, keyword).
		Update("response", response)
	if res.Error != nil {
		return false, fmt.Errorf("updating trigger: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) RemoveTrigger(ctx context.Context, chatID, keyword string) (bool, error) {
	res := s.db.WithContext(ctx).Where("chat_id = ? AND keyword = ?", chatID, keyword).Delete(&Trigger{})
	if res.Error != nil {
		return false, fmt.Errorf("removing trigger: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetCaptchaPolicy(ctx context.Context, chatID string) (*CaptchaPolicy, error) {
	var pol CaptchaPolicy
	err := s.db.WithContext(ctx).First(&pol, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading captcha policy: %w", err)
	}
	return &pol, nil
}

func (s *GormStore) PutCaptchaPolicy(ctx context.Context, pol *CaptchaPolicy) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(pol).Error; err != nil {
		return fmt.Errorf("writing captcha policy: %w", err)
	}
	return nil
}

func (s *GormStore) GetGreeting(ctx context.Context, chatID string) (*Greeting, error) {
	var g Greeting
	err := s.db.WithContext(ctx).First(&g, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	return &g, nil
}

func (s *GormStore) PutGreeting(ctx context.Context, g *Greeting) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(g).Error; err != nil {
		return fmt.Errorf("writing greeting: %w", err)
	}
	return nil
}

func (s *GormStore) GetChatFlags(ctx context.Context, chatID string) (*ChatFlags, error) {
	var f ChatFlags
	err := s.db.WithContext(ctx).First(&f, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chat flags: %w", err)
	}
	return &f, nil
}

func (s *GormStore) PutChatFlags(ctx context.Context, f *ChatFlags) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(f).Error; err != nil {
		return fmt.Errorf("writing chat flags: %w", err)
	}
	return nil
}

func (s *GormStore) GetRole(ctx context.Context, chatID, userID string) (bus.Role, error) {
	var p Permission
	err := s.db.WithContext(ctx).First(&p, "chat_id = ? AND user_id = ?", chatID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bus.RoleNone, nil
	}
	if err != nil {
		return bus.RoleNone, fmt.Errorf("reading role: %w", err)
	}
	return p.Role, nil
}

func (s *GormStore) SetRole(ctx context.Context, chatID, userID string, role bus.Role) error {
	p := Permission{ChatID: chatID, UserID: userID, Role: role}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&p).Error; err != nil {
		return fmt.Errorf("writing role: %w", err)
	}
	return nil
}
