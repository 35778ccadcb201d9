// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"askmynotes-go/internal/model"
	"askmynotes-go/internal/repository"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/hash"
	"askmynotes-go/pkg/log"
	"askmynotes-go/pkg/token"
)

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(name, email, password string) (*model.User, error)
	Login(email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	Logout(ctx context.Context, tokenString string) error
	IsTokenBlacklisted(ctx context.Context, tokenString string) bool
	GetByID(userID uint) (*model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	redis      *redis.Client
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, redisClient *redis.Client) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		redis:      redisClient,
	}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, apperr.Validationf("name, email and password are required")
	}

	// 1. 检查邮箱是否已被注册
	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, apperr.Validationf("email '%s' is already registered", email)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.WrapInfra("failed to look up user", err)
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户
	newUser := &model.User{
		Name:     name,
		Email:    email,
		Password: hashedPassword,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, apperr.WrapInfra("failed to create user", err)
	}

	log.Infof("[UserService] 新用户注册成功, email: %s, id: %d", email, newUser.ID)
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(email, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", apperr.Validationf("invalid credentials")
		}
		return "", "", apperr.WrapInfra("failed to look up user", err)
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", apperr.Validationf("invalid credentials")
	}

	// 3. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// RefreshToken 校验 refresh token 并签发新的一对 token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", apperr.WrapValidation("invalid refresh token", err)
	}
	if s.IsTokenBlacklisted(context.Background(), refreshTokenString) {
		return "", "", apperr.Validationf("refresh token has been revoked")
	}

	newAccessToken, err = s.jwtManager.GenerateToken(claims.UserID, claims.Email)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(claims.UserID, claims.Email)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// Logout 将 token 加入 Redis 黑名单，剩余有效期作为黑名单条目的过期时间。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return apperr.WrapValidation("invalid token", err)
	}
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, "blacklist:"+tokenString, "true", expiration).Err(); err != nil {
		return apperr.WrapInfra("failed to blacklist token", err)
	}
	return nil
}

// IsTokenBlacklisted 判断 token 是否已被登出拉黑。
func (s *userService) IsTokenBlacklisted(ctx context.Context, tokenString string) bool {
	exists, err := s.redis.Exists(ctx, "blacklist:"+tokenString).Result()
	if err != nil {
		// Redis 故障时放行，认证仍由签名与有效期保证
		log.Warnf("[UserService] 查询 token 黑名单失败: %v", err)
		return false
	}
	return exists > 0
}

// GetByID 根据用户 ID 获取用户信息。
func (s *userService) GetByID(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validationf("user not found")
		}
		return nil, apperr.WrapInfra("failed to look up user", err)
	}
	return user, nil
}
