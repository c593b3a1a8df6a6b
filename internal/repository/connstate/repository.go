package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetdesk/whatsapp-gateway/internal/cache"
	"github.com/fleetdesk/whatsapp-gateway/internal/domain"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const snapshotKey = "wa:connection"

type Repository interface {
	UpsertState(ctx context.Context, rec domain.ConnectionState) error
	CacheSnapshot(ctx context.Context, rec domain.ConnectionState) error
	MarkRelayed(ctx context.Context, msgID string, at time.Time) error
	RecentlyRelayed(ctx context.Context, msgID string) (bool, error)
}

type repo struct {
	db    *gorm.DB
	cache cache.Cache
}

func NewConnStateRepository(db *gorm.DB, cache cache.Cache) Repository {
	return &repo{db: db, cache: cache}
}

// UpsertState writes the single connection row, inserting it on first
// use and replacing all mirrored fields afterwards.
func (r *repo) UpsertState(ctx context.Context, rec domain.ConnectionState) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// CacheSnapshot mirrors the connection row into redis so pollers can
// read it without touching the database.
func (r *repo) CacheSnapshot(ctx context.Context, rec domain.ConnectionState) error {
	jsonVal, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, snapshotKey, string(jsonVal), 0)
}

// MarkRelayed records that a message id was forwarded to the webhook.
// Expire after 24 hours to keep memory clean.
func (r *repo) MarkRelayed(ctx context.Context, msgID string, at time.Time) error {
	key := fmt.Sprintf("relayed_msg:%s", msgID)

	value := map[string]any{
		"messageId": msgID,
		"relayedAt": at,
	}

	jsonVal, _ := json.Marshal(value)
	return r.cache.Set(ctx, key, string(jsonVal), 24*time.Hour)
}

// RecentlyRelayed reports whether a message id was already forwarded
// within the marker window.
func (r *repo) RecentlyRelayed(ctx context.Context, msgID string) (bool, error) {
	_, err := r.cache.Get(ctx, fmt.Sprintf("relayed_msg:%s", msgID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
