package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Socially/internal/domain/models"
	domrepo "Socially/internal/domain/repository"
	"Socially/pkg/cache"
)

// UserStore is the durable user record.
type UserStore struct {
	cache cache.Service
}

func NewUserStore(c cache.Service) *UserStore {
	return &UserStore{cache: c}
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if err := s.cache.Set(ctx, cache.GenerateKey("user", u.ID), u, 0); err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, s.cache, cache.GenerateKey("user", id))
}

// UserCache is the short-lived copy written synchronously at signup.
type UserCache struct {
	cache cache.Service
	ttl   time.Duration
}

func NewUserCache(c cache.Service, ttl time.Duration) *UserCache {
	return &UserCache{cache: c, ttl: ttl}
}

func (c *UserCache) Save(ctx context.Context, u *models.User) error {
	if err := c.cache.Set(ctx, cache.GenerateKey("users", u.ID), u, c.ttl); err != nil {
		return fmt.Errorf("cache user %s: %w", u.ID, err)
	}
	return nil
}

func (c *UserCache) Get(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, c.cache, cache.GenerateKey("users", id))
}

func getUser(ctx context.Context, c cache.Service, key string) (*models.User, error) {
	var u models.User
	if err := c.Get(ctx, key, &u); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &u, nil
}

var (
	_ domrepo.UserStore = (*UserStore)(nil)
	_ domrepo.UserCache = (*UserCache)(nil)
)
