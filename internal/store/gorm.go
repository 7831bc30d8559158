package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/easyisp/backend/internal/database"
	"github.com/easyisp/backend/internal/models"
)

// GormStore implements Store on PostgreSQL via GORM, with a Redis
// read-through cache on the subscriber hot path.
type GormStore struct {
	db    *gorm.DB
	cache *database.SubscriberCache
}

// NewGormStore wraps the connections; cache may be nil
func NewGormStore(db *gorm.DB, cache *database.SubscriberCache) *GormStore {
	return &GormStore{db: db, cache: cache}
}

func (s *GormStore) FindNasByAddress(ctx context.Context, host string) (*models.Nas, error) {
	var nas models.Nas
	err := s.db.WithContext(ctx).
		Where("ip_address = ? OR vpn_ip_address = ?", host, host).
		First(&nas).Error
	if err != nil {
		return nil, translate(err)
	}
	return &nas, nil
}

func (s *GormStore) FindNasByID(ctx context.Context, id uint) (*models.Nas, error) {
	var nas models.Nas
	if err := s.db.WithContext(ctx).First(&nas, id).Error; err != nil {
		return nil, translate(err)
	}
	return &nas, nil
}

func (s *GormStore) FindSubscriberByUsername(ctx context.Context, tenantID uint, username string) (*models.Subscriber, error) {
	// models.Subscriber hides Password from JSON, so the cached entry carries
	// it alongside the row
	type cachedSubscriber struct {
		Subscriber models.Subscriber `json:"subscriber"`
		Password   string            `json:"password"`
	}

	var cached cachedSubscriber
	if s.cache.Get(ctx, tenantID, username, &cached) {
		cached.Subscriber.Password = cached.Password
		return &cached.Subscriber, nil
	}

	var sub models.Subscriber
	err := s.db.WithContext(ctx).
		Preload("Package").
		Where("tenant_id = ? AND username = ?", tenantID, username).
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}

	s.cache.Set(ctx, tenantID, username, &cachedSubscriber{Subscriber: sub, Password: sub.Password})
	return &sub, nil
}

func (s *GormStore) TouchSubscriberSeen(ctx context.Context, id uint, ip, mac string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_ip_address": ip,
			"last_mac":        mac,
			"last_seen":       now,
		}).Error
}

func (s *GormStore) UpsertSessionStart(ctx context.Context, sess *models.Session) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Session
		err := tx.Where("session_id = ?", sess.SessionID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(sess).Error
		case err != nil:
			return err
		}

		// NAS reconnect re-emitting Start with a known id: re-open the row
		return tx.Model(&models.Session{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"tenant_id":          sess.TenantID,
				"subscriber_id":      sess.SubscriberID,
				"nas_id":             sess.NasID,
				"username":           sess.Username,
				"framed_ip_address":  sess.FramedIPAddress,
				"calling_station_id": sess.CallingStationID,
				"start_time":         sess.StartTime,
				"stop_time":          nil,
				"session_time":       0,
				"input_octets":       0,
				"output_octets":      0,
				"terminate_cause":    "",
			}).Error
	})
}

func (s *GormStore) UpdateSessionInterim(ctx context.Context, sessionID, framedIP string, in, out, seconds int64) (bool, error) {
	updates := map[string]interface{}{
		"session_time":  seconds,
		"input_octets":  in,
		"output_octets": out,
	}
	if framedIP != "" {
		updates["framed_ip_address"] = framedIP
	}

	// The stop_time guard keeps a late Interim from reviving a stopped session
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("session_id = ? AND stop_time IS NULL", sessionID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CloseSession(ctx context.Context, sessionID string, stop time.Time, in, out, seconds int64, cause string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("session_id = ? AND stop_time IS NULL", sessionID).
		Updates(map[string]interface{}{
			"stop_time":       stop,
			"session_time":    seconds,
			"input_octets":    in,
			"output_octets":   out,
			"terminate_cause": cause,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CloseAllSessionsForNas(ctx context.Context, nasID uint, stop time.Time, cause string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("nas_id = ? AND stop_time IS NULL", nasID).
		Updates(map[string]interface{}{
			"stop_time":       stop,
			"terminate_cause": cause,
		})
	return res.RowsAffected, res.Error
}

func (s *GormStore) TouchNas(ctx context.Context, id uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.Nas{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    models.NasStatusOnline,
			"last_seen": now,
		}).Error
}

func (s *GormStore) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("stop_time IS NULL").
		Count(&count).Error
	return count, err
}

func (s *GormStore) FindActiveSessionByUsername(ctx context.Context, tenantID uint, username string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND username = ? AND stop_time IS NULL", tenantID, username).
		Order("start_time DESC").
		First(&sess).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
