package service

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/model/dto"
	"github.com/qs3c/iris_server/internal/pkg/storage"
	"github.com/qs3c/iris_server/internal/repository"
)

const avatarPrefix = "avatars"

type UserService struct {
	userRepo      *repository.UserRepository
	store         storage.ObjectStore
	maxAvatarSize int64
}

func NewUserService(userRepo *repository.UserRepository, store storage.ObjectStore, maxAvatarSize int64) *UserService {
	if maxAvatarSize <= 0 {
		maxAvatarSize = 5 * 1024 * 1024
	}
	return &UserService{
		userRepo:      userRepo,
		store:         store,
		maxAvatarSize: maxAvatarSize,
	}
}

// GetProfile 获取用户详情
func (s *UserService) GetProfile(userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return buildUserInfo(user), nil
}

// UpdateProfile 更新用户信息
func (s *UserService) UpdateProfile(userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.Website != nil {
		user.Website = *req.Website
	}
	if req.Company != nil {
		user.Company = *req.Company
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}

	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}

	return buildUserInfo(user), nil
}

// UploadAvatar 上传头像并更新用户头像 URL，不计费
func (s *UserService) UploadAvatar(ctx context.Context, userID int64, data []byte) (string, error) {
	if s.store == nil {
		return "", ErrStorageUnavailable
	}
	if int64(len(data)) > s.maxAvatarSize {
		return "", ErrImageTooLarge
	}

	contentType := http.DetectContentType(data)
	if !storage.IsImageType(contentType) {
		return "", ErrInvalidImage
	}

	avatarURL, err := s.store.Put(ctx, storage.ObjectKey(avatarPrefix, userID, contentType), data, contentType)
	if err != nil {
		return "", err
	}

	if err := s.userRepo.UpdateFields(userID, map[string]interface{}{
		"avatar_url": avatarURL,
	}); err != nil {
		return "", err
	}

	return avatarURL, nil
}
