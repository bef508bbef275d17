package postgres

import (
	"context"
	"errors"
	"time"

	"mediMeet/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		DB: db,
	}
}

// FindByExternalID loads a user by the auth provider's identifier together
// with the most recent CREDIT_PURCHASE row of the current calendar month, so
// the allocator does not need a second round-trip.
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (domain.User, *domain.CreditTransaction, error) {
	var user domain.User

	err := r.DB.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, nil, domain.ErrUserNotFound
		}
		return domain.User{}, nil, err
	}

	latest, err := r.latestPurchaseThisMonth(ctx, user.ID)
	if err != nil {
		return domain.User{}, nil, err
	}

	return user, latest, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (domain.User, error) {
	var user domain.User

	err := r.DB.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}

	return user, nil
}

// CreateWithLedgerMarker inserts the user and a zero-amount free_user
// CREDIT_PURCHASE marker row in one transaction. A unique-index conflict on
// external_id surfaces as domain.ErrDuplicateUser so the caller can re-fetch.
func (r *UserRepository) CreateWithLedgerMarker(ctx context.Context, user *domain.User) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateUser
			}
			return err
		}

		packageID := domain.PlanFreeUser
		marker := domain.CreditTransaction{
			ReferenceID: uuid.NewString(),
			UserID:      user.ID,
			Amount:      0,
			Type:        domain.TxTypeCreditPurchase,
			PackageID:   &packageID,
		}

		if err := tx.Create(&marker).Error; err != nil {
			return err
		}

		return nil
	})
}

func (r *UserRepository) latestPurchaseThisMonth(ctx context.Context, userID uint) (*domain.CreditTransaction, error) {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var latest domain.CreditTransaction
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, domain.TxTypeCreditPurchase, monthStart).
		Order("created_at DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &latest, nil
}
