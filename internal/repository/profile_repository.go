package repository

import (
	"errors"

	"gorm.io/gorm"

	"askmynotes-go/internal/model"
)

// ProfileRepository 接口定义了学科档案的持久化操作。
type ProfileRepository interface {
	FindByUserID(userID uint) (*model.Profile, error)
	Upsert(profile *model.Profile) error
}

// profileRepository 是 ProfileRepository 接口的 GORM 实现。
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建一个新的 ProfileRepository 实例。
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// FindByUserID 根据用户 ID 查找学科档案。
func (r *profileRepository) FindByUserID(userID uint) (*model.Profile, error) {
	var profile model.Profile
	if err := r.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Upsert 创建或更新用户的学科档案，每个用户最多一条。
func (r *profileRepository) Upsert(profile *model.Profile) error {
	var existing model.Profile
	err := r.db.Where("user_id = ?", profile.UserID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(profile).Error
	}
	if err != nil {
		return err
	}

	existing.Subject1 = profile.Subject1
	existing.Subject2 = profile.Subject2
	existing.Subject3 = profile.Subject3
	if err := r.db.Save(&existing).Error; err != nil {
		return err
	}
	*profile = existing
	return nil
}
