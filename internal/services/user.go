package services

import (
	"context"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/database"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"gorm.io/gorm/clause"
)

// UserService reads and updates the profile fields this API owns.
type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DefaultRadiusKm returns the user's preferred search radius, or 0 when
// the user has none set or cannot be loaded.
func (s *UserService) DefaultRadiusKm(ctx context.Context, id uint) float64 {
	var user models.User
	if err := s.db.WithContext(ctx).Select("default_radius_km").First(&user, id).Error; err != nil {
		return 0
	}
	if user.DefaultRadiusKm == nil {
		return 0
	}
	return *user.DefaultRadiusKm
}

func (s *UserService) UpdateDefaultRadius(ctx context.Context, id uint, radiusKm float64) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("default_radius_km", radiusKm).Error
}

// RegisterDevice upserts an FCM token for push delivery. Re-registering
// an existing token moves it to the current user and reactivates it.
func (s *UserService) RegisterDevice(ctx context.Context, userID uint, token, platform string) error {
	device := models.FCMDevice{
		UserID:   userID,
		Token:    token,
		Platform: platform,
		IsActive: true,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":   userID,
			"platform":  platform,
			"is_active": true,
		}),
	}).Create(&device).Error
}

// UnregisterDevice deactivates a token so pushes stop without losing the
// registration history.
func (s *UserService) UnregisterDevice(ctx context.Context, userID uint, token string) error {
	return s.db.WithContext(ctx).Model(&models.FCMDevice{}).
		Where("user_id = ? AND token = ?", userID, token).
		Update("is_active", false).Error
}
