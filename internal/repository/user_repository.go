package repository

import (
	"context"
	"errors"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) WithContext(ctx context.Context) *UserRepository {
	return &UserRepository{DB: r.DB.WithContext(ctx)}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{DB: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return &user, err
}

func (r *UserRepository) FindStudentByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.Where("id = ? AND role = ?", id, model.Student).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrStudentNotFound
	}
	return &user, err
}

// FindByIdentifier looks a user up by email or phone.
func (r *UserRepository) FindByIdentifier(identifier string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ? OR phone = ?", identifier, identifier).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return &user, err
}

func (r *UserRepository) EmailTaken(email string, excludeID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.User{}).Where("email = ? AND id <> ?", email, excludeID).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) PhoneTaken(phone string, excludeID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.User{}).Where("phone = ? AND id <> ?", phone, excludeID).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) Update(user *model.User) error {
	return r.DB.Save(user).Error
}

func (r *UserRepository) Delete(id uint) error {
	return r.DB.Delete(&model.User{}, id).Error
}

func (r *UserRepository) CountByRole(role model.UserRole) (int64, error) {
	var count int64
	err := r.DB.Model(&model.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

func (r *UserRepository) ListStudents(page, limit int, search string) ([]model.User, int64, error) {
	query := r.DB.Model(&model.User{}).Where("role = ?", model.Student)
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR email LIKE ? OR phone LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var users []model.User
	err := query.Order("id asc").Offset((page - 1) * limit).Limit(limit).Find(&users).Error
	return users, total, err
}

// StudentIDsAfter returns up to limit student ids greater than cursor, ascending.
func (r *UserRepository) StudentIDsAfter(cursor uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.User{}).
		Where("role = ? AND id > ?", model.Student, cursor).
		Order("id asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *UserRepository) UpdateTotals(userID uint, totalScore int, percentage float64, completed int) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"total_score":        totalScore,
		"overall_percentage": percentage,
		"completed_exams":    completed,
	}).Error
}

// FindStudentsByIDs silently skips ids that are not students.
func (r *UserRepository) FindStudentsByIDs(ids []uint) ([]model.User, error) {
	var users []model.User
	err := r.DB.Where("id IN ? AND role = ?", ids, model.Student).Find(&users).Error
	return users, err
}
