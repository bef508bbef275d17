package postgres

import (
	"context"
	"errors"

	"mediMeet/domain"

	"gorm.io/gorm"
)

type DoctorRepository struct {
	DB *gorm.DB
}

func NewDoctorRepository(db *gorm.DB) *DoctorRepository {
	return &DoctorRepository{
		DB: db,
	}
}

func (r *DoctorRepository) FindDoctorByID(ctx context.Context, id uint) (domain.User, error) {
	var doctor domain.User

	err := r.DB.WithContext(ctx).
		Where("id = ? AND role = ?", id, domain.RoleDoctor).
		First(&doctor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrDoctorNotFound
		}
		return domain.User{}, err
	}

	return doctor, nil
}

func (r *DoctorRepository) ListVerifiedDoctors(ctx context.Context, specialty string) ([]domain.User, error) {
	var doctors []domain.User

	query := r.DB.WithContext(ctx).
		Where("role = ? AND verified = ?", domain.RoleDoctor, true)
	if specialty != "" {
		query = query.Where("specialty = ?", specialty)
	}

	if err := query.Order("full_name").Find(&doctors).Error; err != nil {
		return nil, err
	}

	return doctors, nil
}
