package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"askmynotes-go/internal/model"
	"askmynotes-go/internal/repository"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/log"
)

// ProfileService 接口定义了学科档案相关的业务操作。
// 档案登记的三门学科是摄取与问答两条管线做归属校验的唯一依据。
type ProfileService interface {
	Upsert(userID uint, subject1, subject2, subject3 string) (*model.Profile, error)
	Get(userID uint) (*model.Profile, error)
	// ValidateSubject 校验学科是否登记在用户档案中，
	// 档案缺失或学科未登记均返回 validation 错误。
	ValidateSubject(userID uint, subject string) error
}

// profileService 是 ProfileService 接口的实现。
type profileService struct {
	profileRepo repository.ProfileRepository
}

// NewProfileService 创建一个新的 ProfileService 实例。
func NewProfileService(profileRepo repository.ProfileRepository) ProfileService {
	return &profileService{profileRepo: profileRepo}
}

// Upsert 创建或更新用户的学科档案，三门学科都必须非空。
func (s *profileService) Upsert(userID uint, subject1, subject2, subject3 string) (*model.Profile, error) {
	subject1 = strings.TrimSpace(subject1)
	subject2 = strings.TrimSpace(subject2)
	subject3 = strings.TrimSpace(subject3)
	if subject1 == "" || subject2 == "" || subject3 == "" {
		return nil, apperr.Validationf("all three subjects are required")
	}

	profile := &model.Profile{
		UserID:   userID,
		Subject1: subject1,
		Subject2: subject2,
		Subject3: subject3,
	}
	if err := s.profileRepo.Upsert(profile); err != nil {
		return nil, apperr.WrapInfra("failed to save profile", err)
	}

	log.Infof("[ProfileService] 学科档案已保存, userID: %d, subjects: [%s, %s, %s]",
		userID, subject1, subject2, subject3)
	return profile, nil
}

// Get 获取用户的学科档案。
func (s *profileService) Get(userID uint) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validationf("user profile not found")
		}
		return nil, apperr.WrapInfra("failed to load profile", err)
	}
	return profile, nil
}

// ValidateSubject 校验学科归属。
func (s *profileService) ValidateSubject(userID uint, subject string) error {
	profile, err := s.Get(userID)
	if err != nil {
		return err
	}
	if !profile.HasSubject(subject) {
		return apperr.Validationf("subject '%s' is not associated with the user", subject)
	}
	return nil
}
