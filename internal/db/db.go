package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pokerjest/animerss/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store wraps the gorm handle with the queries the pipeline needs.
type Store struct {
	db *gorm.DB
}

// Open 打开数据库并自动迁移
func Open(storagePath string) (*Store, error) {
	if storagePath != ":memory:" {
		dir := filepath.Dir(storagePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(storagePath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// sqlite 单写者；内存库必须共享同一个连接
	sqlDB.SetMaxOpenConns(1)

	err = gdb.AutoMigrate(
		&model.Subscription{},
		&model.Anime{},
		&model.SubscriptionAnime{},
		&model.NotificationChannel{},
		&model.GlobalConfig{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: gdb}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ---- subscriptions ----

func (s *Store) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.State == "" {
		sub.State = model.StateIdle
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("subscription %q: %w", sub.Name, ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, name string) (*model.Subscription, error) {
	var sub model.Subscription
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).Order("id asc").Find(&subs).Error
	return subs, err
}

// SaveSubscription persists every editable column of an existing subscription.
func (s *Store) SaveSubscription(ctx context.Context, sub *model.Subscription) error {
	err := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"name":        sub.Name,
			"url":         sub.URL,
			"source_type": sub.SourceType,
			"cron":        sub.Cron,
		}).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("subscription %q: %w", sub.Name, ErrConflict)
	}
	return err
}

func (s *Store) SetState(ctx context.Context, id uint, state model.SubscriptionState) error {
	return s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", id).
		Update("state", state).Error
}

// ResetStuck 把上次进程退出时遗留的 refreshing 状态改回 idle
func (s *Store) ResetStuck(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("state = ?", model.StateRefreshing).
		Update("state", model.StateIdle)
	return res.RowsAffected, res.Error
}

// FinishRefresh 结束一次刷新：状态回到 idle，记录时间，仅在成功时计数 +1
func (s *Store) FinishRefresh(ctx context.Context, id uint, at time.Time, success bool) error {
	updates := map[string]interface{}{
		"state":        model.StateIdle,
		"refreshed_at": at,
	}
	if success {
		updates["refresh_count"] = gorm.Expr("refresh_count + ?", 1)
	}
	return s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteSubscription removes the subscription, its associations, and every
// release that is left without any association.
func (s *Store) DeleteSubscription(ctx context.Context, name string) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.Subscription
		if err := tx.Where("name = ?", name).First(&sub).Error; err != nil {
			return notFound(err)
		}

		var animeIDs []uint
		if err := tx.Model(&model.SubscriptionAnime{}).
			Where("subscription_id = ?", sub.ID).
			Pluck("anime_id", &animeIDs).Error; err != nil {
			return err
		}

		if err := tx.Where("subscription_id = ?", sub.ID).Delete(&model.SubscriptionAnime{}).Error; err != nil {
			return err
		}

		if len(animeIDs) > 0 {
			res := tx.Where("id IN ? AND id NOT IN (?)", animeIDs, liveLinks(tx)).Delete(&model.Anime{})
			if res.Error != nil {
				return res.Error
			}
			removed = res.RowsAffected
		}

		return tx.Delete(&sub).Error
	})
	return removed, err
}

// ---- animes ----

func (s *Store) FindAnimeByHash(ctx context.Context, hash string) (*model.Anime, error) {
	var a model.Anime
	if err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// subscriptionExists 防止已删除订阅上仍在进行的刷新继续写入
func subscriptionExists(tx *gorm.DB, subID uint) error {
	var n int64
	if err := tx.Model(&model.Subscription{}).Where("id = ?", subID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subscription %d: %w", subID, ErrNotFound)
	}
	return nil
}

// liveLinks selects anime ids referenced by a subscription that still exists.
func liveLinks(tx *gorm.DB) *gorm.DB {
	return tx.Model(&model.SubscriptionAnime{}).
		Select("anime_id").
		Where("subscription_id IN (?)", tx.Model(&model.Subscription{}).Select("id"))
}

// LinkAnime is idempotent. It returns ErrNotFound once the subscription is gone.
func (s *Store) LinkAnime(ctx context.Context, subID, animeID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := subscriptionExists(tx, subID); err != nil {
			return err
		}
		link := model.SubscriptionAnime{SubscriptionID: subID, AnimeID: animeID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
	})
}

// CreateAnime inserts a release and links it in one transaction. A hash
// collision returns ErrConflict and leaves nothing behind; a deleted
// subscription returns ErrNotFound.
func (s *Store) CreateAnime(ctx context.Context, subID uint, a *model.Anime) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := subscriptionExists(tx, subID); err != nil {
			return err
		}
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		return tx.Create(&model.SubscriptionAnime{SubscriptionID: subID, AnimeID: a.ID}).Error
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("anime %q: %w", a.Hash, ErrConflict)
	}
	return err
}

func (s *Store) ListAnimes(ctx context.Context, subID uint) ([]model.Anime, error) {
	var animes []model.Anime
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_animes sa ON sa.anime_id = animes.id").
		Where("sa.subscription_id = ?", subID).
		Order("animes.id desc").
		Find(&animes).Error
	return animes, err
}

func (s *Store) CountAnimes(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Anime{}).Count(&n).Error
	return n, err
}

// DeleteOrphans removes releases that no existing subscription references,
// together with join rows left behind by deleted subscriptions.
func (s *Store) DeleteOrphans(ctx context.Context) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id NOT IN (?)", liveLinks(tx)).Delete(&model.Anime{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Where("subscription_id NOT IN (?)", tx.Model(&model.Subscription{}).Select("id")).
			Delete(&model.SubscriptionAnime{}).Error
	})
	return removed, err
}

// ---- notification channels ----

func (s *Store) CreateChannel(ctx context.Context, ch *model.NotificationChannel) error {
	if err := s.db.WithContext(ctx).Create(ch).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("channel %q: %w", ch.Name, ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context) ([]model.NotificationChannel, error) {
	var chs []model.NotificationChannel
	err := s.db.WithContext(ctx).Order("id asc").Find(&chs).Error
	return chs, err
}

func (s *Store) ListEnabledChannels(ctx context.Context) ([]model.NotificationChannel, error) {
	var chs []model.NotificationChannel
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id asc").Find(&chs).Error
	return chs, err
}

func (s *Store) DeleteChannel(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.NotificationChannel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- global config ----

// GetConfig returns "" for a missing key.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var cfg model.GlobalConfig
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&model.GlobalConfig{Key: key, Value: value}).Error
}

func (s *Store) AllConfig(ctx context.Context) (map[string]string, error) {
	var rows []model.GlobalConfig
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
