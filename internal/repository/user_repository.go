// Package repository 负责模型对象在 MySQL 与 Redis 中的持久化。
package repository

import (
	"gorm.io/gorm"

	"askmynotes-go/internal/model"
)

// UserRepository 定义了用户记录的持久化操作。
// 查找方法在记录不存在时原样返回 gorm.ErrRecordNotFound，由调用方判定。
type UserRepository interface {
	Create(user *model.User) error
	FindByEmail(email string) (*model.User, error)
	FindByID(userID uint) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建基于 GORM 的 UserRepository。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 插入一条用户记录，邮箱唯一索引冲突时返回数据库错误。
func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByEmail 按邮箱查找用户，邮箱是登录与注册查重的主键。
func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID 按主键查找用户。
func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
