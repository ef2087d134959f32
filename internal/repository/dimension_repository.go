package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos/eidos-fraud/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

// DimensionRepository 用户/卡/设备维度仓储
type DimensionRepository struct {
	*Repository
}

// NewDimensionRepository 创建维度仓储
func NewDimensionRepository(db *gorm.DB) *DimensionRepository {
	return &DimensionRepository{Repository: NewRepository(db)}
}

// EnsureUser 幂等创建用户，已存在时不修改
func (r *DimensionRepository) EnsureUser(ctx context.Context, user *model.User) error {
	return r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user).Error
}

// EnsureCard 幂等创建卡
func (r *DimensionRepository) EnsureCard(ctx context.Context, card *model.Card) error {
	return r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(card).Error
}

// EnsureDevice 幂等创建设备
func (r *DimensionRepository) EnsureDevice(ctx context.Context, device *model.Device) error {
	return r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(device).Error
}

// GetUser 获取用户
func (r *DimensionRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		First(&user).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateHomeCountry 更新常驻国家及刷新时间
func (r *DimensionRepository) UpdateHomeCountry(ctx context.Context, userID, country string, refreshedAt int64) error {
	result := r.DB(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"home_country":              country,
			"home_country_refreshed_at": refreshedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsersAfter 按 user_id 升序游标分页
func (r *DimensionRepository) ListUsersAfter(ctx context.Context, afterUserID string, limit int) ([]*model.User, error) {
	var users []*model.User
	err := r.DB(ctx).
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
