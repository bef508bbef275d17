package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediMeet/business/doctors"
	"mediMeet/domain"

	"github.com/redis/go-redis/v9"
)

const (
	ViewDoctors      = "view:doctors"
	ViewAppointments = "view:appointments"
)

type PageCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageCacheRepository(client *redis.Client, ttl time.Duration) *PageCacheRepository {
	return &PageCacheRepository{
		client: client,
		ttl:    ttl,
	}
}

// GetDoctorListing reads the cached doctor list for a specialty. Listings are
// stored as hash fields under one view key so invalidation is a single DEL.
func (r *PageCacheRepository) GetDoctorListing(ctx context.Context, specialty string) ([]domain.User, error) {
	val, err := r.client.HGet(ctx, ViewDoctors, field(specialty)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, doctors.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read doctor listing from Redis: %w", err)
	}

	var doctors []domain.User
	if err := json.Unmarshal([]byte(val), &doctors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal doctor listing: %w", err)
	}

	return doctors, nil
}

func (r *PageCacheRepository) SetDoctorListing(ctx context.Context, specialty string, doctors []domain.User) error {
	raw, err := json.Marshal(doctors)
	if err != nil {
		return fmt.Errorf("failed to marshal doctor listing: %w", err)
	}

	if err := r.client.HSet(ctx, ViewDoctors, field(specialty), raw).Err(); err != nil {
		return fmt.Errorf("failed to store doctor listing in Redis: %w", err)
	}

	if err := r.client.Expire(ctx, ViewDoctors, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set listing TTL: %w", err)
	}

	return nil
}

// InvalidateViews drops cached pages after a balance mutation. Best effort:
// callers log a failure and move on, the views re-fill with a short TTL.
func (r *PageCacheRepository) InvalidateViews(ctx context.Context, views ...string) error {
	if len(views) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, views...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate views: %w", err)
	}

	return nil
}

func field(specialty string) string {
	if specialty == "" {
		return "all"
	}

	return specialty
}
