package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/config"
	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/model/dto"
	"github.com/qs3c/iris_server/internal/pkg/jwt"
	"github.com/qs3c/iris_server/internal/pkg/oauth"
	"github.com/qs3c/iris_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
)

const (
	providerLocal  = "local"
	providerGoogle = "google"
)

// GoogleProvider Google 登录
type GoogleProvider interface {
	GetAuthURL(state string) string
	Login(ctx context.Context, code string) (*oauth.GoogleUser, error)
}

type AuthService struct {
	userRepo *repository.UserRepository
	credits  *CreditService
	google   GoogleProvider
	cfg      *config.JWTConfig
}

func NewAuthService(userRepo *repository.UserRepository, credits *CreditService, google GoogleProvider, cfg *config.JWTConfig) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		credits:  credits,
		google:   google,
		cfg:      cfg,
	}
}

// Register 邮箱注册，成功后直接登录
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.LoginResponse, error) {
	exists, err := s.userRepo.ExistsByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	passwordStr := string(hashedPassword)

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: &passwordStr,
		Provider:     providerLocal,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	s.openLedger(ctx, user.ID)
	return s.issue(user)
}

// Login 邮箱密码登录
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// GetGoogleAuthURL 获取 Google 授权 URL
func (s *AuthService) GetGoogleAuthURL(state string) string {
	return s.google.GetAuthURL(state)
}

// GoogleCallback 处理 Google OAuth 回调。已有同邮箱的本地账号时直接关联。
func (s *AuthService) GoogleCallback(ctx context.Context, code string) (*dto.LoginResponse, error) {
	googleUser, err := s.google.Login(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to login with google: %w", err)
	}

	user, err := s.userRepo.GetByProviderID(providerGoogle, googleUser.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if user != nil {
		return s.issue(user)
	}

	user, err = s.userRepo.GetByEmail(googleUser.Email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if user != nil {
		providerID := googleUser.ID
		user.Provider = providerGoogle
		user.ProviderID = &providerID
		if user.AvatarURL == "" {
			user.AvatarURL = googleUser.Picture
		}
		if err := s.userRepo.Update(user); err != nil {
			return nil, err
		}
		return s.issue(user)
	}

	providerID := googleUser.ID
	user = &model.User{
		Email:      googleUser.Email,
		Name:       googleUser.Name,
		AvatarURL:  googleUser.Picture,
		Provider:   providerGoogle,
		ProviderID: &providerID,
	}
	if user.Name == "" {
		user.Name = googleUser.Email
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.openLedger(ctx, user.ID)
	return s.issue(user)
}

// GetUserByID 根据 ID 获取用户
func (s *AuthService) GetUserByID(id int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return buildUserInfo(user), nil
}

// openLedger 新用户立即拥有 free 账本；失败时首次访问会再创建
func (s *AuthService) openLedger(ctx context.Context, userID int64) {
	if s.credits == nil {
		return
	}
	_, _ = s.credits.GetPlan(ctx, userID)
}

func (s *AuthService) issue(user *model.User) (*dto.LoginResponse, error) {
	token, err := jwt.GenerateToken(user.ID, s.cfg.Secret, s.cfg.ExpireHours)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	return &dto.UserInfo{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Bio:       user.Bio,
		Location:  user.Location,
		Website:   user.Website,
		Company:   user.Company,
		Phone:     user.Phone,
		Provider:  user.Provider,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}
