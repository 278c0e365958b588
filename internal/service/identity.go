package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/qs3c/iris_server/internal/repository"
)

// IdentityResolver 判断用户是否存在，不存在时返回 ErrUserNotFound
type IdentityResolver interface {
	ResolveUser(ctx context.Context, userID int64) error
}

const identityCacheSize = 4096

// UserIdentity 以 users 表为身份来源。用户不会被删除，因此只缓存命中结果。
type UserIdentity struct {
	userRepo *repository.UserRepository
	known    *lru.Cache[int64, struct{}]
}

func NewUserIdentity(userRepo *repository.UserRepository) *UserIdentity {
	cache, _ := lru.New[int64, struct{}](identityCacheSize)
	return &UserIdentity{
		userRepo: userRepo,
		known:    cache,
	}
}

// ResolveUser 检查用户是否存在
func (i *UserIdentity) ResolveUser(ctx context.Context, userID int64) error {
	if i.known.Contains(userID) {
		return nil
	}

	exists, err := i.userRepo.ExistsByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: resolve user: %w", ErrPersistence, err)
	}
	if !exists {
		return ErrUserNotFound
	}

	i.known.Add(userID, struct{}{})
	return nil
}
